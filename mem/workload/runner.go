package workload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// A System serves requests and keeps the time.
type System interface {
	sim.TimeTeller

	Service(req mem.Request) (mem.Response, error)
}

// Exit causes reported by a Runner.
const (
	CauseEndOfWorkload = "end of workload"
	CauseRequestLimit  = "request limit reached"
	CauseTickLimit     = "tick limit reached"
	CauseInterrupted   = "simulation interrupted"
	CauseFatalError    = "fatal error"
)

// A ProgressTracker is told about every request served.
type ProgressTracker interface {
	IncrementFinished(amount uint64)
}

// Result tells how a run ended.
type Result struct {
	Requests uint64
	Now      sim.Cycle
	Cause    string

	// Err is the error that stopped the run, if any.
	Err error
}

// A Runner feeds the requests of a Source into a System until the source
// runs out, a limit is reached, or a request fails.
type Runner struct {
	System System
	Source Source

	// MaxRequests stops the run after that many requests. 0 means no limit.
	MaxRequests uint64

	// MaxTick stops the run once the clock passes it. 0 means no limit.
	MaxTick sim.Cycle

	// Progress is optional.
	Progress ProgressTracker
}

// Run drives the system. Cancelling ctx stops the run between two requests.
func (r *Runner) Run(ctx context.Context) Result {
	res := Result{}

	for {
		res.Now = r.System.Now()

		if cause, stop := r.limitReached(ctx, res); stop {
			res.Cause = cause
			return res
		}

		req, err := r.Source.Next()
		if errors.Is(err, io.EOF) {
			res.Cause = CauseEndOfWorkload
			return res
		}

		if err != nil {
			return r.fail(res, err)
		}

		rsp, err := r.System.Service(req)
		if err != nil {
			return r.fail(res, err)
		}

		res.Requests++

		if r.Progress != nil {
			r.Progress.IncrementFinished(1)
		}

		if checker, ok := r.Source.(Checker); ok {
			if err := checker.Check(req, rsp); err != nil {
				res.Now = r.System.Now()
				return r.fail(res, err)
			}
		}
	}
}

func (r *Runner) limitReached(ctx context.Context, res Result) (string, bool) {
	switch {
	case ctx.Err() != nil:
		return CauseInterrupted, true
	case r.MaxRequests > 0 && res.Requests >= r.MaxRequests:
		return CauseRequestLimit, true
	case r.MaxTick > 0 && res.Now >= r.MaxTick:
		return CauseTickLimit, true
	}

	return "", false
}

func (r *Runner) fail(res Result, err error) Result {
	res.Err = err
	res.Cause = fmt.Sprintf("%s: %v", CauseFatalError, err)

	return res
}
