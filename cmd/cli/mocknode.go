package cli

import (
	"log"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/mocknode"
	"github.com/canopy-network/mocknet/topology"
	"github.com/spf13/cobra"
)

// mocknodeCommand is the command the process launcher invokes
const mocknodeCommand = "mocknode"

var mocknodeCmd = &cobra.Command{
	Use:   mocknodeCommand + " --id=0 --alias=node-0 --genesis=genesis.json --rest=127.0.0.1:52000 --grpc=127.0.0.1:52001",
	Short: "run a single mock node, as started by the process launcher",
	Run: func(cmd *cobra.Command, args []string) {
		config := lib.DefaultConfig()
		if configPath != "" {
			c, err := lib.NewConfigFromFile(configPath)
			if err != nil {
				log.Fatal(err)
			}
			config = c
		}
		l = lib.NewLogger(lib.LoggerConfig{
			Level:  config.GetLogLevel(),
			JSON:   config.LogJSON,
			Prefix: nodeAlias,
		}, DataDir)
		ctx, cancel := killContext()
		defer cancel()
		err := mocknode.Run(ctx, mocknode.ProcessConfig{
			Config: mocknode.Config{
				ID:          topology.NodeID(nodeID),
				Alias:       nodeAlias,
				DataDirPath: DataDir,
				Mempool:     config.MempoolConfig,
				QueueSize:   config.QueueSize,
			},
			GenesisPath: nodeGenesis,
			RESTAddress: restAddress,
			GRPCAddress: grpcAddress,
			Gossip:      config.GossipConfig,
			Timeout:     config.RequestTimeout(),
		}, l)
		if err != nil {
			l.Fatal(err.Error())
		}
	},
}

var (
	nodeID                                           = 0
	nodeAlias, nodeGenesis, restAddress, grpcAddress = "", "", "", ""
)

func init() {
	mocknodeCmd.Flags().IntVar(&nodeID, "id", 0, "node id in the topology")
	mocknodeCmd.Flags().StringVar(&nodeAlias, "alias", "", "node alias")
	mocknodeCmd.Flags().StringVar(&nodeGenesis, "genesis", lib.GenesisFilePath, "genesis file (json or yaml)")
	mocknodeCmd.Flags().StringVar(&restAddress, "rest", "127.0.0.1:52000", "REST listen address")
	mocknodeCmd.Flags().StringVar(&grpcAddress, "grpc", "127.0.0.1:52001", "grpc health listen address")
}
