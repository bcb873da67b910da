package lib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddFragmentFeeOrdering(t *testing.T) {
	mempool := NewMempool(DefaultMempoolConfig())
	require.NoError(t, mempool.AddFragment("b", []byte("b"), 1000))
	require.NoError(t, mempool.AddFragment("c", []byte("c"), 1000))
	require.NoError(t, mempool.AddFragment("a", []byte("a"), 1001))
	require.NoError(t, mempool.AddFragment("e", []byte("e"), 1))
	require.NoError(t, mempool.AddFragment("d", []byte("d"), 1000))
	result := ""
	for _, item := range mempool.Items() {
		result += item.ID
	}
	require.Equal(t, "abcde", result)
	require.Equal(t, 5, mempool.Count())
	require.Equal(t, 5, mempool.Bytes())
}

func TestAddFragmentLimits(t *testing.T) {
	mempool := NewMempool(MempoolConfig{
		MaxTotalBytes:             8,
		MaxFragmentCount:          2,
		IndividualMaxFragmentSize: 4,
	})
	// individual size
	err := mempool.AddFragment("big", []byte("12345"), 1)
	require.True(t, HasCode(err, MempoolModule, CodeMaxFragmentSize))
	// duplicate
	require.NoError(t, mempool.AddFragment("a", []byte("1234"), 1))
	err = mempool.AddFragment("a", []byte("1234"), 1)
	require.True(t, HasCode(err, MempoolModule, CodeFragmentInPool))
	// count
	require.NoError(t, mempool.AddFragment("b", []byte("1"), 1))
	err = mempool.AddFragment("c", []byte("1"), 100)
	require.True(t, HasCode(err, MempoolModule, CodePoolFull))
	// the rejected fragment did not displace anything
	require.True(t, mempool.Contains("a"))
	require.True(t, mempool.Contains("b"))
	require.False(t, mempool.Contains("c"))
}

func TestGetAndDeleteFragments(t *testing.T) {
	mempool := NewMempool(DefaultMempoolConfig())
	require.NoError(t, mempool.AddFragment("a", []byte("aaaa"), 3))
	require.NoError(t, mempool.AddFragment("b", []byte("bbbb"), 2))
	require.NoError(t, mempool.AddFragment("c", []byte("cccc"), 1))
	// count limit
	got := mempool.GetFragments(2, 100)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "b", got[1].ID)
	// byte limit
	require.Len(t, mempool.GetFragments(10, 9), 2)
	// delete
	mempool.DeleteFragment("a")
	mempool.DeleteFragment("unknown")
	require.False(t, mempool.Contains("a"))
	require.Equal(t, 8, mempool.Bytes())
	mempool.Clear()
	require.Zero(t, mempool.Count())
	require.Zero(t, mempool.Bytes())
}
