package cmd

import (
	"errors"
	"path/filepath"

	"github.com/sarchlab/cachesim/mem/workload"
	"github.com/sarchlab/cachesim/simulation"
	"github.com/spf13/cobra"
)

type runOptions struct {
	trace string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [program]",
	Short: "Replay an access trace through the memory system.",
	Long: "`run trace.txt` replays the accesses of trace.txt. Each line of " +
		"the trace is `<F|L|S> <hex address> <size> [hex data]`; `#` starts " +
		"a comment.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := runOpts.trace
		if len(args) == 1 {
			path = args[0]
		}

		if path == "" {
			return errors.New("no trace given, pass a program or --trace")
		}

		reqs, err := workload.ReadTraceFile(path)
		if err != nil {
			return err
		}

		return simulate(cmd, workload.NewSliceSource(reqs),
			simulation.RunOptions{
				Name:  filepath.Base(path),
				Total: uint64(len(reqs)),
			})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runOpts.trace, "trace", "",
		"access trace to replay")
}
