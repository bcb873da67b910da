package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20"
)

var _ io.Reader = &SeededReader{}

// SeededReader is a deterministic randomness source: a chacha20 keystream keyed by the hash of a seed.
// Identical seeds produce identical byte streams, which makes key generation and load replayable
type SeededReader struct {
	mu     sync.Mutex
	cipher *chacha20.Cipher
}

// NewSeededReader() creates a deterministic reader for the seed
func NewSeededReader(seed int64) *SeededReader {
	var seedBz [8]byte
	binary.BigEndian.PutUint64(seedBz[:], uint64(seed))
	return NewSeededReaderFromBytes(seedBz[:])
}

// NewSeededReaderFromBytes() creates a deterministic reader keyed by an arbitrary seed
func NewSeededReaderFromBytes(seed []byte) *SeededReader {
	key := sha256.Sum256(seed)
	// a fixed nonce is fine: every distinct seed yields a distinct key
	c, err := chacha20.NewUnauthenticatedCipher(key[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		panic(err)
	}
	return &SeededReader{cipher: c}
}

// Read() fills p with the next bytes of the keystream
func (s *SeededReader) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range p {
		p[i] = 0
	}
	s.cipher.XORKeyStream(p, p)
	return len(p), nil
}

// Derive() returns an independent reader for a labeled sub-stream, so that consumers of one seed
// don't shift each other's output
func Derive(seed int64, label string) *SeededReader {
	var seedBz [8]byte
	binary.BigEndian.PutUint64(seedBz[:], uint64(seed))
	return NewSeededReaderFromBytes(append(seedBz[:], label...))
}
