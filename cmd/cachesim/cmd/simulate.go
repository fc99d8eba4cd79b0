package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/mem/hierarchy"
	"github.com/sarchlab/cachesim/mem/workload"
	"github.com/sarchlab/cachesim/sim"
	"github.com/sarchlab/cachesim/simulation"
	"github.com/spf13/cobra"
)

func loadConfig() (hierarchy.Config, error) {
	if rootOpts.configFile != "" {
		return config.LoadFile(rootOpts.configFile)
	}

	return hierarchy.ConfigByName(rootOpts.config)
}

func buildSimulation(cmd *cobra.Command) (*simulation.Simulation, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, err
	}

	b := simulation.MakeBuilder().WithConfig(c)

	if rootOpts.db != "" {
		b = b.WithRecording().WithOutputFileName(rootOpts.db)
	} else if rootOpts.record {
		b = b.WithRecording()
	}

	if rootOpts.monitor || rootOpts.openBrowser {
		b = b.WithMonitoring().WithMonitorPort(rootOpts.monitorPort)
	}

	if rootOpts.verbose {
		b = b.WithLogTracer(log.New(cmd.ErrOrStderr(), "", 0))
	}

	s, err := b.Build()
	if err != nil {
		return nil, err
	}

	if rootOpts.openBrowser {
		if err := browser.OpenURL(s.MonitorURL()); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Cannot open browser: %v\n", err)
		}
	}

	return s, nil
}

// simulate runs the source to completion and prints the report.
func simulate(
	cmd *cobra.Command,
	source workload.Source,
	opts simulation.RunOptions,
) error {
	s, err := buildSimulation(cmd)
	if err != nil {
		return err
	}

	opts.MaxRequests = rootOpts.maxRequests
	opts.MaxTick = sim.Cycle(rootOpts.maxTick)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Beginning simulation!")

	res := s.Run(ctx, source, opts)

	fmt.Fprintf(out, "Exiting @ tick %d because %s\n", res.Now, res.Cause)
	printReport(out, s)

	if err := s.Terminate(); err != nil {
		return err
	}

	return res.Err
}
