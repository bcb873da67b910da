package harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/canopy-network/mocknet/node"
	"github.com/canopy-network/mocknet/topology"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

/*
	A Network composes N node identities, a topology and the handles of the running nodes. Faults change only
	the harness's view of the network (which edges exist, which nodes are frozen), never chain data
*/

// Network is a set of nodes wired by a topology
type Network struct {
	config        lib.Config
	genesisConfig *ledger.GenesisConfig
	genesis       *ledger.State
	genesisPath   string
	history       *topology.History
	identities    []node.Identity // indexed by node id
	controller    *node.Controller
	metrics       *lib.Metrics
	clock         clockwork.Clock
	log           lib.LoggerI

	mu      sync.RWMutex
	handles map[topology.NodeID]*node.Handle

	topologyMu sync.Mutex // a topology change and its delivery to the launcher happen together
}

// NewLauncher() creates the launcher the config selects
func NewLauncher(config lib.Config, clock clockwork.Clock, log lib.LoggerI) (node.Launcher, lib.ErrorI) {
	switch config.Launcher {
	case lib.InMemoryLauncher:
		return node.NewInMemoryLauncher(node.MemoryConfig{
			Gossip:   config.GossipConfig,
			Mempool:  config.MempoolConfig,
			LogLevel: config.GetLogLevel(),
			LogJSON:  config.LogJSON,
		}, clock, log), nil
	case lib.ProcessLauncher:
		return node.NewProcessLauncher(config.NodeConfig, log), nil
	}
	return nil, lib.ErrUnknownLauncher(config.Launcher)
}

// NewNetwork() derives the identities and topology of a network; nothing is started
func NewNetwork(config lib.Config, genesisConfig *ledger.GenesisConfig, launcher node.Launcher, metrics *lib.Metrics, log lib.LoggerI) (*Network, lib.ErrorI) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	genesis, err := ledger.NewGenesis(genesisConfig)
	if err != nil {
		return nil, err
	}
	strategy, err := topology.ParseStrategy(config.TopologyConfig)
	if err != nil {
		return nil, err
	}
	t, err := topology.New(config.NodeCount, strategy, uint64(config.Seed))
	if err != nil {
		return nil, err
	}
	n := &Network{
		config:        config,
		genesisConfig: genesisConfig,
		genesis:       genesis,
		history:       topology.NewHistory(t),
		controller:    node.NewController(config.NodeConfig, launcher, metrics, log),
		metrics:       metrics,
		clock:         clockwork.NewRealClock(),
		log:           log,
		handles:       make(map[topology.NodeID]*node.Handle),
	}
	for i := 0; i < config.NodeCount; i++ {
		identity, e := n.newIdentity(topology.NodeID(i), genesis.Parameters().Discrimination)
		if e != nil {
			return nil, e
		}
		n.identities = append(n.identities, identity)
	}
	return n, nil
}

// newIdentity() derives the keys, alias and addresses of node id from the seed
func (n *Network) newIdentity(id topology.NodeID, discrimination crypto.Discrimination) (identity node.Identity, err lib.ErrorI) {
	identity.ID = id
	identity.Alias = n.config.AliasPrefix + strconv.Itoa(int(id))
	identity.Keys, err = crypto.GenerateKeyPair(crypto.Ed25519, crypto.Derive(n.config.Seed, "node/"+identity.Alias))
	if err != nil {
		return
	}
	if identity.Address, err = identity.Keys.Address(discrimination, crypto.Single); err != nil {
		return
	}
	if n.config.DataDirPath != "" {
		identity.DataDirPath = filepath.Join(n.nodesDir(), identity.Alias)
	}
	if n.config.Launcher == lib.ProcessLauncher {
		port := n.config.BasePort + 2*int(id)
		identity.RESTAddress = net.JoinHostPort(n.config.Host, strconv.Itoa(port))
		identity.GRPCAddress = net.JoinHostPort(n.config.Host, strconv.Itoa(port+1))
	}
	return
}

// nodesDir() holds the fragment logs of every node, empty keeps them in memory
func (n *Network) nodesDir() string {
	if n.config.DataDirPath == "" {
		return ""
	}
	return filepath.Join(n.config.DataDirPath, "nodes")
}

// Start() starts every node concurrently and returns all startup failures joined, never only the first
func (n *Network) Start(ctx context.Context) error {
	// a run starts from genesis, restarts within it replay the logs
	if dir := n.nodesDir(); dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return lib.ErrWriteFile(err)
		}
	}
	if n.config.Launcher == lib.ProcessLauncher {
		if err := lib.SaveJSONToFile(n.genesisConfig, n.config.DataDirPath, lib.GenesisFilePath); err != nil {
			return err
		}
		n.genesisPath = filepath.Join(n.config.DataDirPath, lib.GenesisFilePath)
		if err := lib.SaveJSONToFile(n.identities, n.config.DataDirPath, lib.KeysFilePath); err != nil {
			return err
		}
	}
	view := n.view()
	errs := make([]error, len(n.identities))
	var g errgroup.Group
	for i, identity := range n.identities {
		g.Go(func() error {
			h, err := n.controller.Start(ctx, identity, view)
			if err != nil {
				errs[i] = err
				return nil
			}
			n.mu.Lock()
			n.handles[identity.ID] = h
			n.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if err := n.controller.Launcher().SetTopology(ctx, n.history.Current()); err != nil {
		return err
	}
	n.log.Infof("Network of %d nodes started on a %s topology", len(n.identities), n.history.Current().Strategy())
	return nil
}

// Stop() releases every node, even the ones that failed, and closes the launcher
func (n *Network) Stop(ctx context.Context) error {
	handles := n.Handles()
	errs := make([]error, len(handles))
	var g errgroup.Group
	for i, h := range handles {
		g.Go(func() error {
			if err := h.Stop(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", h.Alias(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	n.controller.Launcher().Close()
	return errors.Join(errs...)
}

// view() is what a starting node needs to know about the network
func (n *Network) view() node.View {
	identities := make(map[topology.NodeID]node.Identity, len(n.identities))
	for _, identity := range n.identities {
		identities[identity.ID] = identity
	}
	return node.View{Genesis: n.genesis, GenesisPath: n.genesisPath, Topology: n.history.Current(), Identities: identities}
}

// Genesis() returns block 0
func (n *Network) Genesis() *ledger.State { return n.genesis }

// Topology() returns the current snapshot
func (n *Network) Topology() *topology.Topology { return n.history.Current() }

// History() returns every snapshot and transition so far
func (n *Network) History() *topology.History { return n.history }

// Identities() returns the identities in id order
func (n *Network) Identities() []node.Identity { return slices.Clone(n.identities) }

// Aliases() returns every node alias in id order
func (n *Network) Aliases() (aliases []string) {
	for _, identity := range n.identities {
		aliases = append(aliases, identity.Alias)
	}
	return
}

// Handles() returns the started nodes in id order
func (n *Network) Handles() (handles []*node.Handle) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, identity := range n.identities {
		if h, ok := n.handles[identity.ID]; ok {
			handles = append(handles, h)
		}
	}
	return
}

// Handle() returns the node with the alias
func (n *Network) Handle(alias string) (*node.Handle, lib.ErrorI) {
	identity, err := n.Identity(alias)
	if err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.handles[identity.ID]
	if !ok {
		return nil, lib.ErrUnknownAlias(alias)
	}
	return h, nil
}

// Identity() returns the identity with the alias
func (n *Network) Identity(alias string) (node.Identity, lib.ErrorI) {
	for _, identity := range n.identities {
		if identity.Alias == alias {
			return identity, nil
		}
	}
	return node.Identity{}, lib.ErrUnknownAlias(alias)
}

// PauseNode() freezes a node: it keeps its state, refuses submissions and buffers gossip
func (n *Network) PauseNode(ctx context.Context, alias string) lib.ErrorI {
	h, err := n.Handle(alias)
	if err != nil {
		return err
	}
	return h.Pause(ctx)
}

// ResumeNode() unfreezes a node
func (n *Network) ResumeNode(ctx context.Context, alias string) lib.ErrorI {
	h, err := n.Handle(alias)
	if err != nil {
		return err
	}
	return h.Resume(ctx)
}

// DropEdge() removes the gossip edge a-b from the network
func (n *Network) DropEdge(ctx context.Context, a, b string) (topology.Transition, lib.ErrorI) {
	return n.changeEdge(ctx, a, b, n.history.DropEdge)
}

// RestoreEdge() adds the gossip edge a-b back
func (n *Network) RestoreEdge(ctx context.Context, a, b string) (topology.Transition, lib.ErrorI) {
	return n.changeEdge(ctx, a, b, n.history.AddEdge)
}

func (n *Network) changeEdge(ctx context.Context, a, b string, change func(a, b topology.NodeID) (*topology.Topology, topology.Transition, lib.ErrorI)) (topology.Transition, lib.ErrorI) {
	ia, err := n.Identity(a)
	if err != nil {
		return topology.Transition{}, err
	}
	ib, err := n.Identity(b)
	if err != nil {
		return topology.Transition{}, err
	}
	n.topologyMu.Lock()
	defer n.topologyMu.Unlock()
	next, transition, err := change(ia.ID, ib.ID)
	if err != nil {
		return topology.Transition{}, err
	}
	n.log.Infof("Topology %s", transition)
	return transition, n.controller.Launcher().SetTopology(ctx, next)
}

// KillNode() terminates a node without a graceful shutdown
func (n *Network) KillNode(alias string) lib.ErrorI {
	h, err := n.Handle(alias)
	if err != nil {
		return err
	}
	return h.Kill()
}

// RestartNode() stops the node if needed and starts it again with the same identity and data
func (n *Network) RestartNode(ctx context.Context, alias string) lib.ErrorI {
	h, err := n.Handle(alias)
	if err != nil {
		return err
	}
	if err = h.Stop(ctx); err != nil {
		return err
	}
	restarted, err := n.controller.Start(ctx, h.Identity(), n.view())
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.handles[h.Identity().ID] = restarted
	n.mu.Unlock()
	n.topologyMu.Lock()
	defer n.topologyMu.Unlock()
	return n.controller.Launcher().SetTopology(ctx, n.history.Current())
}
