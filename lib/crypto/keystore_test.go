package crypto

import (
	"testing"

	"github.com/canopy-network/mocknet/lib"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptPrivateKey(t *testing.T) {
	for _, scheme := range Schemes {
		t.Run(string(scheme), func(t *testing.T) {
			kg, err := GenerateKeyPair(scheme, NewSeededReader(21))
			require.NoError(t, err)
			// encrypt the private key
			encrypted, err := EncryptPrivateKey(kg.PrivateKey, []byte("password"))
			require.NoError(t, err)
			require.Equal(t, scheme, encrypted.Scheme)
			require.Equal(t, kg.PublicKey.String(), encrypted.PublicKey)
			// decrypt with the right password
			got, err := DecryptPrivateKey(encrypted, []byte("password"))
			require.NoError(t, err)
			require.True(t, kg.PrivateKey.Equals(got))
			// the wrong password fails
			_, err = DecryptPrivateKey(encrypted, []byte("wrong"))
			require.True(t, lib.HasCode(err, lib.CryptoModule, lib.CodeDecryption))
		})
	}
}

func TestEncryptedKeyBoundToPublicKey(t *testing.T) {
	kg, err := GenerateKeyPair(Ed25519, NewSeededReader(1))
	require.NoError(t, err)
	other, err := GenerateKeyPair(Ed25519, NewSeededReader(2))
	require.NoError(t, err)
	encrypted, err := EncryptPrivateKey(kg.PrivateKey, []byte("password"))
	require.NoError(t, err)
	// swapping the public key breaks authentication
	encrypted.PublicKey = other.PublicKey.String()
	_, err = DecryptPrivateKey(encrypted, []byte("password"))
	require.True(t, lib.HasCode(err, lib.CryptoModule, lib.CodeDecryption))
}

func TestKeystore(t *testing.T) {
	kg, err := GenerateKeyPair(Ed25519Extended, NewSeededReader(3))
	require.NoError(t, err)
	// create a new in-memory keystore
	ks := NewKeystoreInMemory()
	_, err = ks.Import(kg, "password", "alice")
	require.NoError(t, err)
	// lookup by public key
	got, err := ks.GetKeyGroup(kg.PublicKey.String(), "password")
	require.NoError(t, err)
	require.True(t, kg.PrivateKey.Equals(got.PrivateKey))
	// lookup by nickname
	got, err = ks.GetKeyGroup("alice", "password")
	require.NoError(t, err)
	require.True(t, kg.PublicKey.Equals(got.PublicKey))
	// an empty password is refused
	_, err = ks.GetKeyGroup("alice", "")
	require.Error(t, err)
	// persist and reload
	dir := t.TempDir()
	require.NoError(t, ks.SaveToFile(dir))
	loaded, err := NewKeystoreFromFile(dir)
	require.NoError(t, err)
	require.Len(t, loaded.List(), 1)
	got, err = loaded.GetKeyGroup("alice", "password")
	require.NoError(t, err)
	require.True(t, kg.PrivateKey.Equals(got.PrivateKey))
	// delete by nickname removes both indices
	loaded.DeleteKey("alice")
	require.Empty(t, loaded.List())
	require.Empty(t, loaded.ByNickname)
	// a missing file gives an empty keystore
	empty, err := NewKeystoreFromFile(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, empty.List())
}
