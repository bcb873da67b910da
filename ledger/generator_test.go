package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterministic(t *testing.T) {
	state, wallets := newTestLedger(t, 1000, 1000, 1000)
	ids := func(seed uint64) (ids []FragmentID) {
		g, err := NewGenerator(state, wallets, TxOnly, seed)
		require.NoError(t, err)
		fragments, err := g.Batch(20)
		require.NoError(t, err)
		for _, f := range fragments {
			ids = append(ids, f.ID())
		}
		return
	}
	// the same seed replays the same stream
	first := ids(42)
	require.Len(t, first, 20)
	require.Equal(t, first, ids(42))
	// a different seed does not
	require.NotEqual(t, first, ids(43))
}

func TestGeneratorTxOnly(t *testing.T) {
	state, wallets := newTestLedger(t, 500, 500)
	g, err := NewGenerator(state, wallets, TxOnly, 1)
	require.NoError(t, err)
	var fees uint64
	next := state
	for i := 0; i < 50; i++ {
		f, sender, err := g.Next()
		require.NoError(t, err)
		require.Equal(t, KindTransaction, f.Kind())
		require.True(t, f.Transaction.Inputs[0].Address.Equals(sender.Address))
		// the stream is valid in order against an independent replay
		next, err = next.Apply(f)
		require.NoError(t, err)
		fees += f.Fee()
	}
	require.True(t, next.Equals(g.State()))
	require.Equal(t, state.TotalValue()-fees, next.TotalValue())
}

func TestGeneratorAllFragments(t *testing.T) {
	state, wallets := newTestLedger(t, 1000, 1000)
	g, err := NewGenerator(state, wallets, AllFragments, 7)
	require.NoError(t, err)
	// every kind is possible in turn: a pool to delegate to and retire, a committee wallet to post a plan
	var kinds []FragmentKind
	for range FragmentKinds {
		f, _, err := g.Next()
		require.NoError(t, err)
		kinds = append(kinds, f.Kind())
	}
	require.Equal(t, FragmentKinds, kinds)
	require.Empty(t, g.State().Pools())
	require.Len(t, g.State().VotePlans(), 1)
}

func TestGeneratorFallsBackToTransfers(t *testing.T) {
	// the committee member is not among the generator's wallets, so plans and votes fall back
	state, wallets := newTestLedger(t, 1000, 1000, 1000)
	g, err := NewGenerator(state, wallets[1:], AllFragments, 7)
	require.NoError(t, err)
	fragments, err := g.Batch(len(FragmentKinds))
	require.NoError(t, err)
	require.Len(t, fragments, len(FragmentKinds))
	for _, f := range fragments {
		require.NotEqual(t, KindVotePlan, f.Kind())
		require.NotEqual(t, KindVoteCast, f.Kind())
	}
	require.Empty(t, g.State().VotePlans())
}

func TestNewGeneratorInvalid(t *testing.T) {
	state, wallets := newTestLedger(t, 1000)
	_, err := NewGenerator(state, wallets, TxOnly, 1)
	require.Error(t, err)
	mode, ok := ParseLoadMode("all")
	require.True(t, ok)
	require.Equal(t, AllFragments, mode)
	_, ok = ParseLoadMode("everything")
	require.False(t, ok)
}
