package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndString(t *testing.T) {
	// generate arbitrary data
	msg := make([]byte, 100)
	_, err := rand.Read(msg)
	require.NoError(t, err)
	// hash the data using the hasher
	hasher := Hasher()
	_, err = hasher.Write(msg)
	require.NoError(t, err)
	byHasher := hasher.Sum(nil)
	// hash the data directly
	hash := Hash(msg)
	// check equivalence
	require.Equal(t, hash, byHasher)
	// ensure size is correct
	require.Len(t, hash, HashSize)
	require.Len(t, ShortHash(msg), ShortHashSize)
	// validate string
	require.Equal(t, hex.EncodeToString(hash), HashString(msg))
}

func TestBlake2b256(t *testing.T) {
	// variadic input hashes the concatenation
	require.Equal(t, Blake2b256([]byte("ab"), []byte("cd")), Blake2b256([]byte("abcd")))
	require.Len(t, Blake2b256(), Blake2bSize)
	require.NotEqual(t, Blake2b256([]byte("a")), Blake2b256([]byte("b")))
}

func TestMerkleTree(t *testing.T) {
	a, b, c := []byte("a"), []byte("b"), []byte("c")
	root, store := MerkleTree([][]byte{a, b, c})
	// 3 leaves round up to 4, 7 entries total
	require.Len(t, store, 7)
	left := Blake2b256(Blake2b256(a), Blake2b256(b))
	right := Blake2b256(Blake2b256(c), Blake2b256(c))
	require.Equal(t, Blake2b256(left, right), root)
	// order matters
	swapped, _ := MerkleTree([][]byte{b, a, c})
	require.NotEqual(t, root, swapped)
	// empty input has a stable root
	empty, _ := MerkleTree(nil)
	require.Equal(t, Blake2b256(), empty)
}
