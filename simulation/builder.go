package simulation

import (
	"log"

	"github.com/rs/xid"
	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem/hierarchy"
	"github.com/sarchlab/cachesim/mem/trace"
	"github.com/sarchlab/cachesim/monitoring"
)

// Builder can be used to build a simulation.
type Builder struct {
	config         hierarchy.Config
	systemName     string
	monitorOn      bool
	monitorPort    int
	recordOn       bool
	outputFileName string
	logger         *log.Logger
}

// MakeBuilder creates a new builder for the baseline system, with neither
// monitoring nor recording.
func MakeBuilder() Builder {
	return Builder{
		config:     hierarchy.BaselineConfig(),
		systemName: "System",
	}
}

// WithConfig sets the memory system to simulate.
func (b Builder) WithConfig(config hierarchy.Config) Builder {
	b.config = config
	return b
}

// WithSystemName sets the name of the memory system.
func (b Builder) WithSystemName(name string) Builder {
	b.systemName = name
	return b
}

// WithMonitoring starts a monitoring server with the simulation.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithRecording records every transaction into a SQLite database.
func (b Builder) WithRecording() Builder {
	b.recordOn = true
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithLogTracer prints every transaction to the logger.
func (b Builder) WithLogTracer(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordOn && b.outputFileName != "" {
		panic("output file cannot be set when recording is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	s := &Simulation{id: xid.New().String()}

	system, err := hierarchy.MakeBuilder().
		WithConfig(b.config).
		WithLogger(b.logger).
		Build(b.systemName)
	if err != nil {
		return nil, err
	}

	s.system = system
	s.latency = trace.NewLatencyTracer()
	s.events = trace.NewEventCountTracer()
	trace.Attach(system, s.latency)
	trace.Attach(system, s.events)

	if b.logger != nil {
		trace.Attach(system, trace.NewLogTracer(b.logger))
	}

	if b.recordOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "cachesim_" + s.id
		}

		s.dataRecorder, err = datarecording.New(outputPath)
		if err != nil {
			return nil, err
		}

		trace.Attach(system, trace.NewDBTracer(s.dataRecorder))

		s.runRecorder = datarecording.NewRunRecorder(s.dataRecorder)
		s.runRecorder.Start()
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithPortNumber(b.monitorPort)
		s.monitor.RegisterHierarchy(system)
		s.monitorURL = s.monitor.StartServer()
	}

	return s, nil
}
