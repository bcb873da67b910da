package cli

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/canopy-network/mocknet/harness"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/report"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "inspect the nodes of a network started with `mocknet start`",
}

var (
	alias, contains = "", ""
	onlyErrors      = false
	tail            = 0
	showTimeout     = 3 * time.Second
)

func init() {
	showCmd.PersistentFlags().StringVar(&alias, "alias", "", "only show the node with this alias")
	showCmd.PersistentFlags().DurationVar(&showTimeout, "timeout", showTimeout, "per request timeout")
	showLogsCmd.Flags().BoolVar(&onlyErrors, "only-errors", false, "only show error lines")
	showLogsCmd.Flags().StringVar(&contains, "contains", "", "only show lines containing the text")
	showLogsCmd.Flags().IntVar(&tail, "tail", 0, "only show the last n lines, 0 shows all")
	showCmd.AddCommand(showStatusCmd)
	showCmd.AddCommand(showFragmentCountCmd)
	showCmd.AddCommand(showFragmentsCmd)
	showCmd.AddCommand(showBlockHeightCmd)
	showCmd.AddCommand(showStatsCmd)
	showCmd.AddCommand(showLogsCmd)
}

var (
	showStatusCmd = &cobra.Command{
		Use:   "status --alias=node-0",
		Short: "show the state, tip and peers of every node",
		Run: func(cmd *cobra.Command, args []string) {
			inspect(func(ctx context.Context, i *harness.Inspector) (tabler, error) {
				return i.Status(ctx, alias)
			})
		},
	}

	showFragmentCountCmd = &cobra.Command{
		Use:   "fragment-count --alias=node-0",
		Short: "show the pending, in a block and rejected fragment counts of every node",
		Run: func(cmd *cobra.Command, args []string) {
			inspect(func(ctx context.Context, i *harness.Inspector) (tabler, error) {
				return i.FragmentCount(ctx, alias)
			})
		},
	}

	showFragmentsCmd = &cobra.Command{
		Use:   "fragments --alias=node-0",
		Short: "show the fragment logs of every node",
		Run: func(cmd *cobra.Command, args []string) {
			inspect(func(ctx context.Context, i *harness.Inspector) (tabler, error) {
				return i.Fragments(ctx, alias)
			})
		},
	}

	showBlockHeightCmd = &cobra.Command{
		Use:   "block-height --alias=node-0",
		Short: "show the chain tip height of every node",
		Run: func(cmd *cobra.Command, args []string) {
			inspect(func(ctx context.Context, i *harness.Inspector) (tabler, error) {
				return i.BlockHeight(ctx, alias)
			})
		},
	}

	showStatsCmd = &cobra.Command{
		Use:   "stats --alias=node-0",
		Short: "show the process and pool statistics of every node",
		Run: func(cmd *cobra.Command, args []string) {
			inspect(func(ctx context.Context, i *harness.Inspector) (tabler, error) {
				return i.Stats(ctx, alias)
			})
		},
	}

	showLogsCmd = &cobra.Command{
		Use:   "logs --alias=node-0 --only-errors --contains=fragment --tail=20",
		Short: "show the log lines of every node",
		Run: func(cmd *cobra.Command, args []string) {
			inspect(func(_ context.Context, i *harness.Inspector) (tabler, error) {
				return i.Logs(alias, lib.LogFilter{OnlyErrors: onlyErrors, Contains: contains, Tail: tail}), nil
			})
		},
	}
)

// tabler is a view that renders as a table
type tabler interface {
	Table() report.Table
}

// inspect() runs one query against the network of the data directory and prints whatever came back;
// unreachable nodes are reported after the rows of the reachable ones
func inspect(query func(ctx context.Context, i *harness.Inspector) (tabler, error)) {
	format, e := report.ParseFormat(outputFormat)
	if e != nil {
		log.Fatal(e)
	}
	i, closer, e := harness.NewRemoteInspector(DataDir, showTimeout)
	if e != nil {
		log.Fatal(e)
	}
	defer closer()
	ctx, cancel := context.WithTimeout(context.Background(), 2*showTimeout)
	defer cancel()
	v, err := query(ctx, i)
	if v != nil {
		if er := report.Write(os.Stdout, format, v, v.Table); er != nil {
			log.Fatal(er)
		}
	}
	if err != nil {
		closer()
		log.Fatal(err)
	}
}
