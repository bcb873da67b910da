package crypto

import (
	"encoding/json"
	"testing"

	"github.com/canopy-network/mocknet/lib"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairDeterministic(t *testing.T) {
	for _, scheme := range Schemes {
		t.Run(string(scheme), func(t *testing.T) {
			// generate twice from the same seed
			k1, err := GenerateKeyPair(scheme, NewSeededReader(7))
			require.NoError(t, err)
			k2, err := GenerateKeyPair(scheme, NewSeededReader(7))
			require.NoError(t, err)
			// identical seeds give identical keys
			require.True(t, k1.PrivateKey.Equals(k2.PrivateKey))
			require.Equal(t, k1.PublicKey.Bytes(), k2.PublicKey.Bytes())
			// a different seed gives a different key
			k3, err := GenerateKeyPair(scheme, NewSeededReader(8))
			require.NoError(t, err)
			require.NotEqual(t, k1.PublicKey.Bytes(), k3.PublicKey.Bytes())
			// the scheme is carried by both halves
			require.Equal(t, scheme, k1.Scheme())
			require.Equal(t, scheme, k1.PublicKey.Scheme())
		})
	}
}

func TestGenerateKeyPairRandom(t *testing.T) {
	k1, err := GenerateKeyPair(Ed25519, nil)
	require.NoError(t, err)
	k2, err := GenerateKeyPair(Ed25519, nil)
	require.NoError(t, err)
	require.False(t, k1.PublicKey.Equals(k2.PublicKey))
}

func TestGenerateKeyPairUnknownScheme(t *testing.T) {
	_, err := GenerateKeyPair("rsa", nil)
	require.True(t, lib.HasCode(err, lib.CryptoModule, lib.CodeUnknownScheme))
}

func TestSignVerify(t *testing.T) {
	msg := []byte("hello world")
	for _, scheme := range Schemes {
		t.Run(string(scheme), func(t *testing.T) {
			kg, err := GenerateKeyPair(scheme, NewSeededReader(1))
			require.NoError(t, err)
			// sign the message and verify it
			sig := Sign(msg, kg.PrivateKey)
			require.True(t, Verify(kg.PublicKey, msg, sig))
			// a different message fails
			require.False(t, Verify(kg.PublicKey, []byte("hello world!"), sig))
			// a different key fails
			other, err := GenerateKeyPair(scheme, NewSeededReader(2))
			require.NoError(t, err)
			require.False(t, Verify(other.PublicKey, msg, sig))
			// garbage fails
			require.False(t, Verify(kg.PublicKey, msg, []byte("not a signature")))
		})
	}
}

func TestExtendedSignatureIsStandardEd25519(t *testing.T) {
	kg, err := GenerateKeyPair(Ed25519Extended, NewSeededReader(3))
	require.NoError(t, err)
	sig := kg.PrivateKey.Sign([]byte("msg"))
	require.Len(t, sig, Ed25519SignatureSize)
	// a plain ed25519 public key over the same point accepts it
	plain, e := BytesToED25519Public(kg.PublicKey.Bytes())
	require.NoError(t, e)
	require.True(t, plain.VerifyBytes([]byte("msg"), sig))
}

func TestKeysFromBytes(t *testing.T) {
	for _, scheme := range Schemes {
		t.Run(string(scheme), func(t *testing.T) {
			kg, err := GenerateKeyPair(scheme, NewSeededReader(4))
			require.NoError(t, err)
			// private key roundtrip
			private, err := NewPrivateKeyFromBytes(scheme, kg.PrivateKey.Bytes())
			require.NoError(t, err)
			require.True(t, kg.PrivateKey.Equals(private))
			require.Equal(t, kg.PublicKey.Bytes(), private.PublicKey().Bytes())
			// hex string roundtrip
			private, err = NewPrivateKeyFromString(scheme, kg.PrivateKey.String())
			require.NoError(t, err)
			require.True(t, kg.PrivateKey.Equals(private))
			// public key roundtrip
			public, err := NewPublicKeyFromBytes(scheme, kg.PublicKey.Bytes())
			require.NoError(t, err)
			require.True(t, kg.PublicKey.Equals(public))
		})
	}
}

func TestKeysFromBadBytes(t *testing.T) {
	_, err := NewPrivateKeyFromBytes(Ed25519, []byte{1, 2, 3})
	require.True(t, lib.HasCode(err, lib.CryptoModule, lib.CodeInvalidPrivateKey))
	_, err = NewPublicKeyFromBytes(SECP256K1, make([]byte, 10))
	require.True(t, lib.HasCode(err, lib.CryptoModule, lib.CodeInvalidPublicKey))
	_, err = NewPrivateKeyFromString(BLS12381, "zz")
	require.True(t, lib.HasCode(err, lib.CryptoModule, lib.CodeInvalidPrivateKey))
}

func TestKeyGroupJSON(t *testing.T) {
	kg, err := GenerateKeyPair(SECP256K1, NewSeededReader(5))
	require.NoError(t, err)
	bz, e := json.Marshal(kg)
	require.NoError(t, e)
	got := new(KeyGroup)
	require.NoError(t, json.Unmarshal(bz, got))
	require.True(t, kg.PrivateKey.Equals(got.PrivateKey))
	require.True(t, kg.PublicKey.Equals(got.PublicKey))
}

func TestSeededReaderDerive(t *testing.T) {
	a, b := make([]byte, 32), make([]byte, 32)
	_, _ = Derive(9, "keys").Read(a)
	_, _ = Derive(9, "load").Read(b)
	require.NotEqual(t, a, b)
	_, _ = Derive(9, "keys").Read(b)
	require.Equal(t, a, b)
}
