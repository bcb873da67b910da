package mocknode

import (
	"fmt"
	"testing"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// newTestGenesis() funds one wallet per value
func newTestGenesis(t *testing.T, funds ...uint64) (*ledger.State, []*ledger.Wallet) {
	config := ledger.DefaultGenesisConfig()
	var wallets []*ledger.Wallet
	for i, value := range funds {
		w, err := ledger.NewWallet(fmt.Sprintf("w%d", i), 1, crypto.Test)
		require.NoError(t, err)
		config = config.Fund(w.Address, value)
		wallets = append(wallets, w)
	}
	genesis, err := ledger.NewGenesis(config)
	require.NoError(t, err)
	return genesis, wallets
}

// newTestNode() starts an isolated in-memory node on a fake clock
func newTestNode(t *testing.T, genesis *ledger.State, config Config) *Node {
	if config.Alias == "" {
		config.Alias = "node-0"
	}
	n, err := New(config, genesis, clockwork.NewFakeClock(), lib.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start(nil))
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func TestSubmitAccepted(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	n := newTestNode(t, genesis, Config{})
	f, err := wallets[0].Transfer(genesis, wallets[1].Address, 100)
	require.NoError(t, err)
	result := n.Submit(f.Bytes())
	require.True(t, result.IsAccepted(), result.Message)
	require.Equal(t, f.ID(), result.ID)
	// the record is pending and came from a client
	l, found := n.FragmentLog(f.ID())
	require.True(t, found)
	require.Equal(t, rpc.StatusPending, l.Status)
	require.Equal(t, rpc.FromRest, l.Origin)
	require.Equal(t, ledger.KindTransaction, l.Kind)
	// the pending state already reflects the transfer
	acc, e := n.Account(wallets[1].Address.String())
	require.NoError(t, e)
	require.Equal(t, uint64(100), acc.Value)
	stats := n.Stats()
	require.Equal(t, 1, stats.PoolCount)
	require.Equal(t, uint64(1), stats.FragmentsReceived)
	require.Equal(t, "running", stats.State)
}

func TestSubmitRejected(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	n := newTestNode(t, genesis, Config{})
	first, err := wallets[0].Transfer(genesis, wallets[1].Address, 500)
	require.NoError(t, err)
	// spends the same counter as the first transfer
	second, err := wallets[0].Transfer(genesis, wallets[1].Address, 600)
	require.NoError(t, err)
	require.True(t, n.Submit(first.Bytes()).IsAccepted())
	result := n.Submit(second.Bytes())
	require.Equal(t, rpc.Rejected, result.Status)
	require.Equal(t, rpc.ValidationFailed, result.Reason)
	l, found := n.FragmentLog(second.ID())
	require.True(t, found)
	require.Equal(t, rpc.StatusRejected, l.Status)
	require.NotEmpty(t, l.Reason)
	// a duplicate is rejected without a second record
	require.Equal(t, rpc.Rejected, n.Submit(first.Bytes()).Status)
	require.Len(t, n.FragmentLogs(), 2)
	// garbage never decodes
	require.Equal(t, rpc.ValidationFailed, n.Submit([]byte{0xff, 0x01}).Reason)
}

func TestSubmitPoolFull(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	mempool := lib.DefaultMempoolConfig()
	mempool.MaxFragmentCount = 1
	n := newTestNode(t, genesis, Config{Mempool: mempool})
	first, err := wallets[0].Transfer(genesis, wallets[1].Address, 10)
	require.NoError(t, err)
	next, err := genesis.Apply(first)
	require.NoError(t, err)
	second, err := wallets[0].Transfer(next, wallets[1].Address, 10)
	require.NoError(t, err)
	require.True(t, n.Submit(first.Bytes()).IsAccepted())
	result := n.Submit(second.Bytes())
	require.Equal(t, rpc.Rejected, result.Status)
	require.Equal(t, rpc.PoolFull, result.Reason)
	// the ledger did not take the refused fragment
	require.Equal(t, uint64(10), n.State().Balance(wallets[1].Address))
}

func TestPausedNodeRefusesSubmissions(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	n := newTestNode(t, genesis, Config{})
	f, err := wallets[0].Transfer(genesis, wallets[1].Address, 10)
	require.NoError(t, err)
	n.Pause()
	require.True(t, n.Paused())
	require.Equal(t, "paused", n.Stats().State)
	result := n.Submit(f.Bytes())
	require.Equal(t, rpc.ConnRefused, result.Reason)
	// gossip is buffered while paused and processed after the resume
	require.True(t, n.Deliver(1, f.Bytes()))
	time.Sleep(20 * time.Millisecond)
	_, found := n.FragmentLog(f.ID())
	require.False(t, found)
	n.Resume()
	require.Eventually(t, func() bool {
		l, ok := n.FragmentLog(f.ID())
		return ok && l.Origin == rpc.FromNetwork
	}, time.Second, 5*time.Millisecond)
}

func TestDeferredSpendingCounter(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	n := newTestNode(t, genesis, Config{})
	first, err := wallets[0].Transfer(genesis, wallets[1].Address, 10)
	require.NoError(t, err)
	next, err := genesis.Apply(first)
	require.NoError(t, err)
	second, err := wallets[0].Transfer(next, wallets[1].Address, 20)
	require.NoError(t, err)
	// the second transfer overtakes the first on the network
	require.True(t, n.Deliver(1, second.Bytes()))
	require.True(t, n.Deliver(2, first.Bytes()))
	require.Eventually(t, func() bool {
		_, a := n.FragmentLog(first.ID())
		_, b := n.FragmentLog(second.ID())
		return a && b
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, uint64(30), n.State().Balance(wallets[1].Address))
}

func TestProduceBlock(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	n := newTestNode(t, genesis, Config{})
	require.Equal(t, lib.HexBytes(genesis.GenesisHash()), n.Tip().Hash)
	f, err := wallets[0].Transfer(genesis, wallets[1].Address, 10)
	require.NoError(t, err)
	require.True(t, n.Submit(f.Bytes()).IsAccepted())
	date := ledger.BlockDate{Epoch: 1, Slot: 2}
	n.produceBlock(date)
	tip := n.Tip()
	require.Equal(t, uint64(genesis.Parameters().SlotsPerEpoch)+3, tip.Height)
	require.Equal(t, date, tip.Date)
	require.Equal(t, uint64(1), tip.FragmentCount)
	require.NotEqual(t, lib.HexBytes(genesis.GenesisHash()), tip.Hash)
	l, _ := n.FragmentLog(f.ID())
	require.Equal(t, rpc.StatusInABlock, l.Status)
	require.Equal(t, &rpc.BlockRef{Height: tip.Height, Date: date}, l.Block)
	require.Zero(t, n.Stats().PoolCount)
	// an empty slot advances the date but keeps the hash
	n.produceBlock(date.Next(genesis.Parameters().SlotsPerEpoch))
	require.Equal(t, tip.Hash, n.Tip().Hash)
	require.Equal(t, tip.Height+1, n.Tip().Height)
	// a stale date is ignored
	n.produceBlock(date)
	require.Equal(t, tip.Height+1, n.Tip().Height)
}

func TestTipIndependentOfBlockCuts(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	first, err := wallets[0].Transfer(genesis, wallets[1].Address, 10)
	require.NoError(t, err)
	next, err := genesis.Apply(first)
	require.NoError(t, err)
	second, err := wallets[0].Transfer(next, wallets[1].Address, 20)
	require.NoError(t, err)
	a := newTestNode(t, genesis, Config{Alias: "a"})
	b := newTestNode(t, genesis, Config{Alias: "b"})
	// a commits both fragments in one block
	require.True(t, a.Submit(first.Bytes()).IsAccepted())
	require.True(t, a.Submit(second.Bytes()).IsAccepted())
	a.produceBlock(ledger.BlockDate{Slot: 1})
	// b commits them one per block
	require.True(t, b.Submit(first.Bytes()).IsAccepted())
	b.produceBlock(ledger.BlockDate{Slot: 0})
	require.True(t, b.Submit(second.Bytes()).IsAccepted())
	b.produceBlock(ledger.BlockDate{Slot: 1})
	require.Equal(t, a.Tip(), b.Tip())
}

func TestReplay(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	n, err := New(Config{Alias: "node-0", DataDirPath: dir}, genesis, clock, lib.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start(nil))
	first, e := wallets[0].Transfer(genesis, wallets[1].Address, 10)
	require.NoError(t, e)
	next, e := genesis.Apply(first)
	require.NoError(t, e)
	second, e := wallets[0].Transfer(next, wallets[1].Address, 20)
	require.NoError(t, e)
	require.True(t, n.Submit(first.Bytes()).IsAccepted())
	n.produceBlock(ledger.BlockDate{Slot: 3})
	require.True(t, n.Submit(second.Bytes()).IsAccepted())
	tip := n.Tip()
	require.NoError(t, n.Stop())
	// a restarted node picks up where it left off
	restarted, err := New(Config{Alias: "node-0", DataDirPath: dir}, genesis, clock, lib.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, restarted.Start(nil))
	defer func() { _ = restarted.Stop() }()
	require.Equal(t, tip, restarted.Tip())
	l, found := restarted.FragmentLog(first.ID())
	require.True(t, found)
	require.Equal(t, rpc.StatusInABlock, l.Status)
	l, found = restarted.FragmentLog(second.ID())
	require.True(t, found)
	require.Equal(t, rpc.StatusPending, l.Status)
	require.Equal(t, 1, restarted.Stats().PoolCount)
	require.Equal(t, uint64(30), restarted.State().Balance(wallets[1].Address))
}

func TestStartStop(t *testing.T) {
	genesis, _ := newTestGenesis(t, 1000)
	n, err := New(Config{Alias: "node-0"}, genesis, clockwork.NewFakeClock(), lib.NewNullLogger())
	require.NoError(t, err)
	require.False(t, n.Healthy())
	require.NoError(t, n.Start(nil))
	require.True(t, n.Healthy())
	require.True(t, lib.HasCode(n.Start(nil), lib.StartupModule, lib.CodeAlreadyStarted))
	require.NoError(t, n.Stop())
	require.NoError(t, n.Stop())
	require.False(t, n.Healthy())
	require.Equal(t, rpc.ConnRefused, n.Submit(nil).Reason)
	_, err = New(Config{}, nil, nil, lib.NewNullLogger())
	require.Error(t, err)
}

func TestFailedStartReleasesStore(t *testing.T) {
	genesis, _ := newTestGenesis(t, 1000)
	dir := t.TempDir()
	// a corrupt fragment log fails the replay
	db, err := store.New(dir, lib.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, db.Set(fragmentKey(0), []byte("not a stored fragment")))
	require.NoError(t, db.Close())
	n, err := New(Config{Alias: "node-0", DataDirPath: dir}, genesis, clockwork.NewFakeClock(), lib.NewNullLogger())
	require.NoError(t, err)
	require.Error(t, n.Start(nil))
	require.False(t, n.Healthy())
	require.NoError(t, n.Stop())
	// the directory lock is free again
	db, err = store.New(dir, lib.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, db.Close())
	// a node that never started releases its store on stop
	unstarted, err := New(Config{Alias: "node-1", DataDirPath: dir}, genesis, clockwork.NewFakeClock(), lib.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, unstarted.Stop())
	db, err = store.New(dir, lib.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
