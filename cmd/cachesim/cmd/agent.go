package cmd

import (
	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/mem/workload"
	"github.com/sarchlab/cachesim/simulation"
	"github.com/spf13/cobra"
)

type agentOptions struct {
	reads      int
	writes     int
	maxAddress string
	seed       int64
}

var agentOpts agentOptions

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run random loads and stores and verify every load.",
	Long: "`agent` stores random values to random addresses and loads them " +
		"back, failing on the first load that does not return the value " +
		"last stored.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		maxAddress, err := config.ParseSize(agentOpts.maxAddress)
		if err != nil {
			return err
		}

		agent := workload.MakeAgentBuilder().
			WithMaxAddress(maxAddress).
			WithReadLeft(agentOpts.reads).
			WithWriteLeft(agentOpts.writes).
			WithSeed(agentOpts.seed).
			Build()

		return simulate(cmd, agent, simulation.RunOptions{
			Name:  "agent",
			Total: uint64(agentOpts.reads + agentOpts.writes),
		})
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)

	flags := agentCmd.Flags()
	flags.IntVar(&agentOpts.reads, "reads", 10000, "number of loads")
	flags.IntVar(&agentOpts.writes, "writes", 10000, "number of stores")
	flags.StringVar(&agentOpts.maxAddress, "max-address", "1MB",
		"end of the address range used")
	flags.Int64Var(&agentOpts.seed, "seed", 1, "random seed")
}
