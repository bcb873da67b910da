package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"testing"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/canopy-network/mocknet/mocknode"
	"github.com/canopy-network/mocknet/topology"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// nodeProcessEnv turns the test binary into a mock node process
const nodeProcessEnv = "MOCKNET_TEST_NODE_PROCESS"

func TestMain(m *testing.M) {
	if os.Getenv(nodeProcessEnv) != "" {
		os.Exit(runNodeProcess(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// runNodeProcess() serves a mock node with the flags the process launcher passes until interrupted
func runNodeProcess(args []string) int {
	var (
		config mocknode.ProcessConfig
		id     int
	)
	cmd := &cobra.Command{
		Use:           "mocknode",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			config.ID, config.Timeout = topology.NodeID(id), time.Second
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if err := mocknode.Run(ctx, config, lib.NewNullLogger()); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "")
	cmd.Flags().StringVar(&config.Alias, "alias", "", "")
	cmd.Flags().StringVar(&config.GenesisPath, "genesis", "", "")
	cmd.Flags().StringVar(&config.RESTAddress, "rest", "", "")
	cmd.Flags().StringVar(&config.GRPCAddress, "grpc", "", "")
	cmd.Flags().StringVar(&config.DataDirPath, "data-dir", "", "")
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// freeAddress() returns a local address nothing listens on
func freeAddress(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().String()
}

func TestProcessLauncher(t *testing.T) {
	exe, e := os.Executable()
	require.NoError(t, e)
	t.Setenv(nodeProcessEnv, "1")
	dir := t.TempDir()
	// the genesis is shared with the node process as a file
	config := ledger.DefaultGenesisConfig()
	var wallets []*ledger.Wallet
	for i, value := range []uint64{1000, 0} {
		w, err := ledger.NewWallet(fmt.Sprintf("w%d", i), 1, crypto.Test)
		require.NoError(t, err)
		config = config.Fund(w.Address, value)
		wallets = append(wallets, w)
	}
	require.NoError(t, lib.SaveJSONToFile(config, dir, lib.GenesisFilePath))
	genesis, err := ledger.NewGenesis(config)
	require.NoError(t, err)
	top, err := topology.New(2, topology.FullMesh(), 1)
	require.NoError(t, err)
	identities := make(map[topology.NodeID]Identity)
	for i := 0; i < 2; i++ {
		alias := fmt.Sprintf("node-%d", i)
		identities[topology.NodeID(i)] = Identity{
			ID:          topology.NodeID(i),
			Alias:       alias,
			RESTAddress: freeAddress(t),
			GRPCAddress: freeAddress(t),
			DataDirPath: filepath.Join(dir, alias),
		}
	}
	view := View{Genesis: genesis, GenesisPath: filepath.Join(dir, lib.GenesisFilePath), Topology: top, Identities: identities}
	nodeConfig := lib.NodeConfig{
		Launcher:         lib.ProcessLauncher,
		BinaryPath:       exe,
		StartupTimeoutMS: 10_000,
		MaxStartAttempts: 2,
		HealthPollMS:     20,
		RequestTimeoutMS: 2_000,
		StopTimeoutMS:    5_000,
		QueryRetries:     1,
	}
	launcher := NewProcessLauncher(nodeConfig, lib.NewNullLogger())
	defer launcher.Close()
	c := NewController(nodeConfig, launcher, nil, lib.NewNullLogger())
	ctx := context.Background()
	// start waits for the health endpoint
	h, err := c.Start(ctx, identities[0], view)
	require.NoError(t, err)
	require.Equal(t, Running, h.State())
	_, err = h.ChainTip(ctx)
	require.NoError(t, err)
	f, err := wallets[0].Transfer(genesis, wallets[1].Address, 100)
	require.NoError(t, err)
	result, err := h.SubmitFragment(ctx, f)
	require.NoError(t, err)
	require.True(t, result.IsAccepted(), result.Message)
	found, err := h.HasFragment(ctx, f.ID())
	require.NoError(t, err)
	require.True(t, found)
	// peers follow the newest snapshot, an older one arriving late is ignored
	next, _, err := top.DropEdge(0, 1)
	require.NoError(t, err)
	require.NoError(t, launcher.SetTopology(ctx, next))
	require.NoError(t, launcher.SetTopology(ctx, top))
	require.Equal(t, next.Version(), launcher.current.Version())
	// stop releases the process and invalidates the handle
	require.NoError(t, h.Stop(ctx))
	require.Equal(t, Stopped, h.State())
	launcher.mu.Lock()
	s := launcher.procs[0]
	launcher.mu.Unlock()
	require.True(t, s.done())
	_, err = h.ChainTip(ctx)
	require.True(t, lib.HasCode(err, lib.NodeModule, lib.CodeHandleInvalid))
	_, err = h.SubmitFragment(ctx, f)
	require.True(t, lib.HasCode(err, lib.NodeModule, lib.CodeHandleInvalid))
}
