package cli

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/canopy-network/mocknet/harness"
	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/report"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// reportsDirectory holds the json result of every run under the data directory
const reportsDirectory = "reports"

var (
	genesisPath = ""
	nodeCount   = 0
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, startCmd} {
		cmd.Flags().StringVar(&genesisPath, "genesis", "", "genesis file (json or yaml), defaults to the built in test genesis")
		cmd.Flags().IntVar(&nodeCount, "nodes", 0, "number of nodes, 0 keeps the configured count")
	}
	runCmd.Flags().StringVar(&launcher, "launcher", "", "memory or process, empty keeps the configured launcher")
}

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "run a scenario file against a fresh mock network",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := loadConfig()
		format, err := report.ParseFormat(outputFormat)
		if err != nil {
			log.Fatal(err)
		}
		l = newLogger(config)
		scenario, err := harness.LoadScenario(args[0])
		if err != nil {
			l.Fatal(err.Error())
		}
		metrics := lib.NewMetrics(config.MetricsConfig, l)
		metrics.Start()
		ctx, cancel := killContext()
		result := harness.NewRunner(config, loadGenesis(), metrics, l).Run(ctx, scenario)
		cancel()
		metrics.Stop()
		if e := lib.SaveJSONToFile(result, filepath.Join(config.DataDirPath, reportsDirectory), result.RunID+".json"); e != nil {
			l.Errorf("Saving the report failed with err: %s", e.Error())
		}
		if e := report.RenderResult(os.Stdout, format, result); e != nil {
			l.Fatal(e.Error())
		}
		if !result.Passed() {
			os.Exit(1)
		}
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start a mock network of node processes and keep it up for the show commands",
	Run: func(cmd *cobra.Command, args []string) {
		launcher = lib.ProcessLauncher
		config := loadConfig()
		l = newLogger(config)
		genesis := loadGenesis()
		if genesis.Block0Time == 0 {
			genesis.Block0Time = time.Now().Unix()
		}
		metrics := lib.NewMetrics(config.MetricsConfig, l)
		metrics.Start()
		defer metrics.Stop()
		ctx, cancel := killContext()
		defer cancel()
		network, err := newNetwork(config, genesis, metrics)
		if err != nil {
			l.Fatal(err.Error())
		}
		defer func() {
			if e := network.Stop(context.WithoutCancel(ctx)); e != nil {
				l.Errorf("Stopping the network failed with err: %s", e.Error())
			}
		}()
		if e := network.Start(ctx); e != nil {
			l.Errorf("Starting the network failed with err: %s", e.Error())
			return
		}
		l.Infof("Network is up, inspect it with `mocknet show --data-dir %s`", config.DataDirPath)
		<-ctx.Done()
	},
}

// newNetwork() wires the launcher the config selects to a new network
func newNetwork(config lib.Config, genesis *ledger.GenesisConfig, metrics *lib.Metrics) (*harness.Network, lib.ErrorI) {
	nodes, err := harness.NewLauncher(config, clockwork.NewRealClock(), l)
	if err != nil {
		return nil, err
	}
	return harness.NewNetwork(config, genesis, nodes, metrics, l)
}

// loadGenesis() reads the genesis flag or returns the built in test genesis
func loadGenesis() *ledger.GenesisConfig {
	if genesisPath == "" {
		return ledger.DefaultGenesisConfig()
	}
	genesis, err := ledger.NewGenesisConfigFromFile(genesisPath)
	if err != nil {
		l.Fatal(err.Error())
	}
	return genesis
}
