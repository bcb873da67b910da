package harness

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/node"
	"github.com/canopy-network/mocknet/report"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/stretchr/testify/require"
)

// fakeInspectable reports fixed logs and fails when down
type fakeInspectable struct {
	alias string
	logs  []rpc.FragmentLog
	down  bool
}

func (f *fakeInspectable) Alias() string { return f.alias }

func (f *fakeInspectable) ChainTip(context.Context) (rpc.BlockID, lib.ErrorI) {
	if f.down {
		return rpc.BlockID{}, lib.ErrConnRefused(f.alias)
	}
	return rpc.BlockID{Height: 7, Date: ledger.BlockDate{Epoch: 0, Slot: 6}}, nil
}

func (f *fakeInspectable) FragmentLogs(context.Context) ([]rpc.FragmentLog, lib.ErrorI) {
	if f.down {
		return nil, lib.ErrConnRefused(f.alias)
	}
	return f.logs, nil
}

func (f *fakeInspectable) Stats(context.Context) (rpc.NodeStats, lib.ErrorI) {
	if f.down {
		return rpc.NodeStats{}, lib.ErrConnRefused(f.alias)
	}
	return rpc.NodeStats{State: "running", Peers: 2, PoolCount: len(f.logs)}, nil
}

func (f *fakeInspectable) Logs(filter lib.LogFilter) []string {
	return filter.Apply([]string{"INFO: started", "ERROR: boom", "INFO: block 1"})
}

func TestInspector(t *testing.T) {
	now := time.Now()
	i := NewInspector(
		&fakeInspectable{alias: "node-0", logs: []rpc.FragmentLog{
			{ID: "bb", Status: rpc.StatusInABlock, ReceivedAt: now.Add(time.Second)},
			{ID: "aa", Status: rpc.StatusPending, ReceivedAt: now},
			{ID: "cc", Status: rpc.StatusRejected, ReceivedAt: now.Add(2 * time.Second), Reason: "bad\nsignature"},
		}},
		&fakeInspectable{alias: "node-1", down: true},
	)
	ctx := context.Background()
	// one down node does not hide the others
	counts, err := i.FragmentCount(ctx, "")
	require.Error(t, err)
	require.True(t, lib.HasCode(err, lib.NetworkModule, lib.CodeConnRefused))
	require.Equal(t, FragmentCounts{{Alias: "node-0", Pending: 1, InABlock: 1, Rejected: 1}}, counts)
	require.Equal(t, 3, counts[0].Total())
	fragments, err := i.Fragments(ctx, "node-0")
	require.NoError(t, err)
	require.Equal(t, ledger.FragmentID("aa"), fragments[0].Fragments[0].ID)
	heights, err := i.BlockHeight(ctx, "node-0")
	require.NoError(t, err)
	require.Equal(t, BlockHeights{{Alias: "node-0", Height: 7, Date: "0.6"}}, heights)
	statuses, err := i.Status(ctx, "node-0")
	require.NoError(t, err)
	require.Equal(t, "running", statuses[0].State)
	stats, err := i.Stats(ctx, "node-0")
	require.NoError(t, err)
	require.Equal(t, "node-0", stats[0].Alias)
	_, err = i.Status(ctx, "node-9")
	require.True(t, lib.HasCode(err, lib.NodeModule, lib.CodeUnknownAlias))
	logs := i.Logs("", lib.LogFilter{OnlyErrors: true})
	require.Len(t, logs, 2)
	require.Equal(t, []string{"ERROR: boom"}, logs[0].Lines)
	require.Equal(t, []string{"INFO: block 1"}, i.Logs("node-1", lib.LogFilter{Tail: 1})[0].Lines)
	// every view renders as a table
	var buf bytes.Buffer
	require.NoError(t, fragments.Table().Render(&buf))
	require.Contains(t, buf.String(), "bad")
	require.NotContains(t, buf.String(), "signature")
	require.NoError(t, report.Write(&buf, report.FormatJSON, counts, counts.Table))
}

func TestRemoteInspectorReadsKeys(t *testing.T) {
	dir := t.TempDir()
	identities := []node.Identity{{ID: 0, Alias: "node-0", RESTAddress: "127.0.0.1:1", DataDirPath: filepath.Join(dir, "nodes", "node-0")}}
	require.NoError(t, lib.SaveJSONToFile(identities, dir, lib.KeysFilePath))
	logDir := filepath.Join(identities[0].DataDirPath, lib.LogDirectory)
	require.NoError(t, os.MkdirAll(logDir, os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, lib.LogFileName), []byte("INFO: up\nERROR: down\n"), os.ModePerm))
	i, closer, err := NewRemoteInspector(dir, 100*time.Millisecond)
	require.NoError(t, err)
	defer closer()
	logs := i.Logs("node-0", lib.LogFilter{Contains: "down"})
	require.Equal(t, []string{"ERROR: down"}, logs[0].Lines)
	// nothing listens on the port
	_, e := i.BlockHeight(context.Background(), "node-0")
	require.Error(t, e)
}
