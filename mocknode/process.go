package mocknode

import (
	"context"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/topology"
)

// ProcessConfig is the configuration of a mock node running as its own process
type ProcessConfig struct {
	Config
	GenesisPath string        // genesis json or yaml
	RESTAddress string        // host:port of the REST interface
	GRPCAddress string        // host:port of the grpc health service
	Gossip      lib.GossipConfig
	Timeout     time.Duration // request timeout of the server and the gossip client
}

// Run() serves a mock node until ctx is cancelled
func Run(ctx context.Context, config ProcessConfig, log lib.LoggerI) lib.ErrorI {
	genesisConfig, err := ledger.NewGenesisConfigFromFile(config.GenesisPath)
	if err != nil {
		return err
	}
	genesis, err := ledger.NewGenesis(genesisConfig)
	if err != nil {
		return err
	}
	node, err := New(config.Config, genesis, nil, log)
	if err != nil {
		return err
	}
	gossip := NewHTTPGossiper(config.ID, config.Gossip, config.Timeout, log)
	if err = node.Start(gossip); err != nil {
		return err
	}
	server := rpc.NewServer(node, rpc.ServerConfig{RESTAddress: config.RESTAddress, GRPCAddress: config.GRPCAddress, Timeout: config.Timeout}, log)
	if err = server.Start(); err != nil {
		_ = node.Stop()
		return err
	}
	<-ctx.Done()
	log.Infof("Shutting down mock node %s", config.Alias)
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Stop(stopCtx)
	return node.Stop()
}

// PeersOf() lists the REST urls of id's neighbors in t
func PeersOf(t *topology.Topology, id topology.NodeID, urlOf func(topology.NodeID) string) []rpc.Peer {
	neighbors := t.Neighbors(id)
	peers := make([]rpc.Peer, 0, len(neighbors))
	for _, n := range neighbors {
		peers = append(peers, rpc.Peer{ID: int64(n), URL: urlOf(n)})
	}
	return peers
}
