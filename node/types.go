package node

import (
	"context"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/topology"
)

// State is the lifecycle stage of a node handle
type State int

const (
	Configured State = iota // identity assigned, nothing launched
	Starting                // launched, waiting for the health endpoint
	Running                 // healthy
	Degraded                // launched but failing queries or exited on its own
	Stopping                // release in progress
	Stopped                 // released; the handle is invalid
)

var stateNames = map[State]string{
	Configured: "configured",
	Starting:   "starting",
	Running:    "running",
	Degraded:   "degraded",
	Stopping:   "stopping",
	Stopped:    "stopped",
}

// String() returns the name of the state
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// transitions enumerates the legal moves of the lifecycle
var transitions = map[State][]State{
	Configured: {Starting, Stopped},
	Starting:   {Running, Stopping, Stopped},
	Running:    {Degraded, Stopping},
	Degraded:   {Running, Stopping},
	Stopping:   {Stopped},
}

// CanTransition() reports whether the lifecycle allows from -> to
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Identity is a logical peer of the network
type Identity struct {
	ID          topology.NodeID  `json:"id"`
	Alias       string           `json:"alias"`
	Keys        *crypto.KeyGroup `json:"-"`
	Address     *crypto.Address  `json:"address"`
	RESTAddress string           `json:"restAddress"` // host:port, used by external nodes
	GRPCAddress string           `json:"grpcAddress"` // host:port, used by external nodes
	DataDirPath string           `json:"dataDirPath"` // fragment log location, empty keeps it in memory
}

// View is the part of the network a node needs to start
type View struct {
	Genesis     *ledger.State                // block 0 of the chain
	GenesisPath string                       // the same genesis as a file, for external nodes
	Topology    *topology.Topology           // the current peer graph
	Identities  map[topology.NodeID]Identity // every peer, to resolve neighbor addresses
}

// Client is the capability set of a node connection; REST and in-memory nodes both provide it
type Client interface {
	Health(ctx context.Context) lib.ErrorI
	Submit(ctx context.Context, bz []byte) (rpc.SubmitResult, lib.ErrorI)
	Tip(ctx context.Context) (rpc.BlockID, lib.ErrorI)
	FragmentLogs(ctx context.Context) ([]rpc.FragmentLog, lib.ErrorI)
	FragmentLog(ctx context.Context, id ledger.FragmentID) (rpc.FragmentLog, bool, lib.ErrorI)
	Stats(ctx context.Context) (rpc.NodeStats, lib.ErrorI)
	Account(ctx context.Context, address string) (rpc.AccountState, lib.ErrorI)
	Pause(ctx context.Context) lib.ErrorI
	Resume(ctx context.Context) lib.ErrorI
	Close()
}

var _ Client = &rpc.Client{}

// Process is a launched node
type Process interface {
	Client() Client
	Logs() []string                              // captured output, oldest first
	Exited() <-chan struct{}                     // closed when the node terminates
	Resources() (cpuPercent float64, rss uint64) // OS usage, zero for in-memory nodes
	Stop(ctx context.Context) lib.ErrorI         // graceful stop, forced at the ctx deadline
	Kill() lib.ErrorI                            // immediate termination
}

// Launcher starts nodes and rewires them when the topology changes
type Launcher interface {
	Launch(ctx context.Context, identity Identity, view View) (Process, lib.ErrorI)
	SetTopology(ctx context.Context, t *topology.Topology) lib.ErrorI
	Close()
}
