package cmd

import (
	"fmt"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/hierarchy"
	"github.com/spf13/cobra"
)

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List the built-in configurations.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()

		for _, name := range hierarchy.ConfigNames() {
			c, _ := hierarchy.ConfigByName(name)

			fmt.Fprintf(out, "%s: %s clock, %s memory, latency %d, bus %d\n",
				name, c.Clock, config.FormatSize(c.MemRange.Size),
				c.MemLatency, c.BusLatency)
			fmt.Fprintf(out, "  icache: %s\n", describeCache(c.ICache))
			fmt.Fprintf(out, "  dcache: %s\n", describeCache(c.DCache))

			if c.VictimCache != nil {
				fmt.Fprintf(out, "  victim: %s\n", describeCache(*c.VictimCache))
			}
		}
	},
}

func describeCache(c cache.Config) string {
	s := fmt.Sprintf("%s %d-way %dB blocks, latency %d/%d/%d, %d MSHRs x %d",
		config.FormatSize(c.Size), c.Assoc, c.BlockSize,
		c.TagLatency, c.DataLatency, c.ResponseLatency,
		c.MSHRs, c.TargetsPerMSHR)

	if c.Prefetcher != nil {
		s += ", stride prefetcher"
	}

	if c.UseVictimCache {
		s += ", victim cache"
	}

	if c.WritebackClean {
		s += ", writeback clean"
	}

	return s
}

func init() {
	rootCmd.AddCommand(configsCmd)
}
