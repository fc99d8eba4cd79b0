package datarecording

import (
	"os"
	"strings"
	"time"
)

const runInfoTable = "exec_info"

const timeLayout = "2006-01-02 15:04:05.000000000"

type runInfo struct {
	Property string
	Value    string
}

// A RunRecorder writes a key-value description of one simulation run, such
// as the command line, the configuration and why the run ended.
type RunRecorder struct {
	recorder DataRecorder
	entries  []runInfo
}

// NewRunRecorder creates the exec_info table in the recorder.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	recorder.CreateTable(runInfoTable, runInfo{})

	return &RunRecorder{recorder: recorder}
}

// Start notes the start time, the command and the working directory.
func (r *RunRecorder) Start() {
	r.Set("Start Time", time.Now().Format(timeLayout))
	r.Set("Command", strings.Join(os.Args, " "))

	if cwd, err := os.Getwd(); err == nil {
		r.Set("Working Directory", cwd)
	}
}

// Set adds a property.
func (r *RunRecorder) Set(property, value string) {
	r.entries = append(r.entries, runInfo{Property: property, Value: value})
}

// End adds the end time and writes everything to the database.
func (r *RunRecorder) End() {
	r.Set("End Time", time.Now().Format(timeLayout))

	for _, entry := range r.entries {
		r.recorder.InsertData(runInfoTable, entry)
	}

	r.entries = nil
	r.recorder.Flush()
}
