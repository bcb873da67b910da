package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/canopy-network/mocknet/lib"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeyStoreName = "keystore.json"
	saltSize     = 16
)

// Keystore represents a lightweight database of encrypted private keys, indexed by public key and by nickname
type Keystore struct {
	ByPublicKey map[string]*EncryptedPrivateKey `json:"byPublicKey"`
	ByNickname  map[string]string               `json:"byNickname"` // nickname -> public key
}

// NewKeystoreInMemory() creates a new in memory keystore
func NewKeystoreInMemory() *Keystore {
	return &Keystore{
		ByPublicKey: make(map[string]*EncryptedPrivateKey),
		ByNickname:  make(map[string]string),
	}
}

// NewKeystoreFromFile() creates a new keystore object from a file, or an empty one if the file doesn't exist
func NewKeystoreFromFile(dataDirPath string) (*Keystore, lib.ErrorI) {
	path := filepath.Join(dataDirPath, KeyStoreName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewKeystoreInMemory(), nil
	}
	ks := NewKeystoreInMemory()
	if err := lib.NewObjectFromFile(ks, path); err != nil {
		return nil, err
	}
	return ks, nil
}

// Import() encrypts the key group with the password and stores it under its public key (and nickname if set)
func (ks *Keystore) Import(kg *KeyGroup, password, nickname string) (*EncryptedPrivateKey, lib.ErrorI) {
	encrypted, err := EncryptPrivateKey(kg.PrivateKey, []byte(password))
	if err != nil {
		return nil, err
	}
	encrypted.Nickname = nickname
	ks.ByPublicKey[encrypted.PublicKey] = encrypted
	if nickname != "" {
		ks.ByNickname[nickname] = encrypted.PublicKey
	}
	return encrypted, nil
}

// GetKeyGroup() decrypts the key stored under the public key hex or the nickname
func (ks *Keystore) GetKeyGroup(publicKeyOrNickname, password string) (*KeyGroup, lib.ErrorI) {
	if pub, ok := ks.ByNickname[publicKeyOrNickname]; ok {
		publicKeyOrNickname = pub
	}
	v, ok := ks.ByPublicKey[publicKeyOrNickname]
	if !ok {
		return nil, lib.ErrDecryption(errors.New("key not found"))
	}
	if password == "" {
		return nil, lib.ErrDecryption(errors.New("invalid password"))
	}
	pk, err := DecryptPrivateKey(v, []byte(password))
	if err != nil {
		return nil, err
	}
	return NewKeyGroup(pk), nil
}

// DeleteKey() removes a key given its public key hex or nickname
func (ks *Keystore) DeleteKey(publicKeyOrNickname string) {
	if pub, ok := ks.ByNickname[publicKeyOrNickname]; ok {
		delete(ks.ByNickname, publicKeyOrNickname)
		publicKeyOrNickname = pub
	}
	if v, ok := ks.ByPublicKey[publicKeyOrNickname]; ok && v.Nickname != "" {
		delete(ks.ByNickname, v.Nickname)
	}
	delete(ks.ByPublicKey, publicKeyOrNickname)
}

// List() returns the stored entries ordered by public key
func (ks *Keystore) List() (list []*EncryptedPrivateKey) {
	for _, v := range ks.ByPublicKey {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PublicKey < list[j].PublicKey })
	return
}

// SaveToFile() persists the keystore to the data directory
func (ks *Keystore) SaveToFile(dataDirPath string) lib.ErrorI {
	return lib.SaveJSONToFile(ks, dataDirPath, KeyStoreName)
}

// EncryptedPrivateKey represents an encrypted form of a private key, including its scheme, the public key,
// salt used in key derivation, and the sealed private key itself
type EncryptedPrivateKey struct {
	Scheme    Scheme `json:"scheme"`
	PublicKey string `json:"publicKey"`
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
	Nickname  string `json:"nickname,omitempty"`
}

// EncryptPrivateKey creates an encrypted private key by generating a random salt,
// deriving an encryption key with the KDF, and finally sealing the key with chacha20poly1305
func EncryptPrivateKey(privateKey PrivateKeyI, password []byte) (*EncryptedPrivateKey, lib.ErrorI) {
	// generate random 16 bytes salt
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, lib.ErrEncryption(err)
	}
	aead, nonce, err := kdf(password, salt)
	if err != nil {
		return nil, lib.ErrEncryption(err)
	}
	publicKey := privateKey.PublicKey().Bytes()
	return &EncryptedPrivateKey{
		Scheme:    privateKey.Scheme(),
		PublicKey: hex.EncodeToString(publicKey),
		Salt:      hex.EncodeToString(salt),
		// the public key is authenticated with the secret so the pair can't be swapped
		Encrypted: hex.EncodeToString(aead.Seal(nil, nonce, privateKey.Bytes(), publicKey)),
	}, nil
}

// DecryptPrivateKey takes an EncryptedPrivateKey and decrypts it to a PrivateKeyI interface using the password
func DecryptPrivateKey(epk *EncryptedPrivateKey, password []byte) (PrivateKeyI, lib.ErrorI) {
	salt, err := hex.DecodeString(epk.Salt)
	if err != nil {
		return nil, lib.ErrDecryption(err)
	}
	encrypted, err := hex.DecodeString(epk.Encrypted)
	if err != nil {
		return nil, lib.ErrDecryption(err)
	}
	publicKey, err := hex.DecodeString(epk.PublicKey)
	if err != nil {
		return nil, lib.ErrDecryption(err)
	}
	aead, nonce, err := kdf(password, salt)
	if err != nil {
		return nil, lib.ErrDecryption(err)
	}
	plainText, err := aead.Open(nil, nonce, encrypted, publicKey)
	if err != nil {
		return nil, lib.ErrDecryption(err)
	}
	return NewPrivateKeyFromBytes(epk.Scheme, plainText)
}

// String() returns the json form of the encrypted key
func (e *EncryptedPrivateKey) String() string {
	bz, _ := json.Marshal(e)
	return string(bz)
}

// kdf derives a chacha20poly1305 key and nonce from a password and salt using Argon2id key derivation
func kdf(password, salt []byte) (aead cipher.AEAD, nonce []byte, err error) {
	// derive the 32 byte key followed by the 12 byte nonce
	out := argon2.IDKey(password, salt, 3, 32*1024, 4, chacha20poly1305.KeySize+chacha20poly1305.NonceSize)
	c, err := chacha20poly1305.New(out[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, nil, err
	}
	return c, out[chacha20poly1305.KeySize:], nil
}
