// Package simulation ties a memory system to the services around a run: the
// data recorder, the tracers and the monitor.
package simulation

import (
	"context"
	"strconv"

	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem/hierarchy"
	"github.com/sarchlab/cachesim/mem/trace"
	"github.com/sarchlab/cachesim/mem/workload"
	"github.com/sarchlab/cachesim/monitoring"
	"github.com/sarchlab/cachesim/sim"
)

// A Simulation provides the services required to run a memory system.
type Simulation struct {
	id     string
	system *hierarchy.Hierarchy

	dataRecorder datarecording.DataRecorder
	runRecorder  *datarecording.RunRecorder
	monitor      *monitoring.Monitor
	monitorURL   string

	latency *trace.LatencyTracer
	events  *trace.EventCountTracer
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// System returns the simulated memory system.
func (s *Simulation) System() *hierarchy.Hierarchy {
	return s.system
}

// DataRecorder returns the data recorder, or nil when recording is off.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Monitor returns the monitor, or nil when monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns where the monitor is served, or an empty string.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// Latency returns the latency of the requests served so far, by level.
func (s *Simulation) Latency() *trace.LatencyTracer {
	return s.latency
}

// Events returns the block events counted so far, by cache.
func (s *Simulation) Events() *trace.EventCountTracer {
	return s.events
}

// RunOptions bound a run.
type RunOptions struct {
	// Name labels the progress bar and the run record.
	Name string

	// Total is the number of requests expected, if known.
	Total uint64

	MaxRequests uint64
	MaxTick     sim.Cycle
}

// Run serves the requests of the source until it ends, a limit is reached or
// a request fails.
func (s *Simulation) Run(
	ctx context.Context,
	source workload.Source,
	opts RunOptions,
) workload.Result {
	runner := &workload.Runner{
		System:      s.system,
		Source:      source,
		MaxRequests: opts.MaxRequests,
		MaxTick:     opts.MaxTick,
	}

	if s.monitor != nil {
		bar := s.monitor.CreateProgressBar(opts.Name, opts.Total)
		defer s.monitor.CompleteProgressBar(bar)

		runner.Progress = bar
	}

	res := runner.Run(ctx)

	if s.runRecorder != nil {
		s.runRecorder.Set("Workload", opts.Name)
		s.runRecorder.Set("Configuration", s.system.Config().Name)
		s.runRecorder.Set("Requests", strconv.FormatUint(res.Requests, 10))
		s.runRecorder.Set("End Tick", strconv.FormatUint(uint64(res.Now), 10))
		s.runRecorder.Set("Exit Cause", res.Cause)
	}

	return res
}

// Terminate writes the run record and closes the data recorder.
func (s *Simulation) Terminate() error {
	if s.dataRecorder == nil {
		return nil
	}

	s.runRecorder.End()

	return s.dataRecorder.Close()
}
