package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/trace"
	"github.com/sarchlab/cachesim/simulation"
)

var (
	headerColor = color.New(color.Bold, color.FgCyan)
	labelColor  = color.New(color.FgYellow)
)

func printReport(w io.Writer, run *simulation.Simulation) {
	h := run.System()
	s := h.Stats()
	clock := h.Config().Clock

	headerColor.Fprintf(w, "\n%s (%s)\n", h.Name(), h.Config().Name)
	fmt.Fprintf(w, "  simulated time  %s ticks, %.3e s\n",
		humanize.Comma(int64(s.Now)), clock.Seconds(s.Now))
	fmt.Fprintf(w, "  requests        %s (%s fetches, %s loads, %s stores)\n",
		humanize.Comma(int64(s.Requests)), humanize.Comma(int64(s.Fetches)),
		humanize.Comma(int64(s.Loads)), humanize.Comma(int64(s.Stores)))
	fmt.Fprintf(w, "  average latency %.2f cycles\n", s.AverageLatency())
	fmt.Fprintf(w, "  stall cycles    %s\n", humanize.Comma(int64(s.StallCycles)))

	if s.Errors > 0 {
		color.New(color.FgRed).Fprintf(w, "  errors          %s\n",
			humanize.Comma(int64(s.Errors)))
	}

	printLatency(w, run.Latency())

	printCache(w, h.ICache().Name(), s.ICache)
	printCache(w, h.DCache().Name(), s.DCache)

	if s.VictimCache != nil {
		v := s.VictimCache
		labelColor.Fprintf(w, "  %s\n", h.VictimCache().Name())
		fmt.Fprintf(w, "    lookups %s, hits %s (%.2f%%), writebacks %s, dropped %s\n",
			humanize.Comma(int64(v.Lookups)), humanize.Comma(int64(v.Hits)),
			100*v.HitRate(), humanize.Comma(int64(v.Writebacks)),
			humanize.Comma(int64(v.Dropped)))
	}

	labelColor.Fprintf(w, "  %s\n", h.Memory().Name())
	fmt.Fprintf(w, "    reads %s (%s), writes %s (%s), bus transfers %s\n",
		humanize.Comma(int64(s.Memory.Reads)), humanize.IBytes(s.Memory.BytesRead),
		humanize.Comma(int64(s.Memory.Writes)), humanize.IBytes(s.Memory.BytesWritten),
		humanize.Comma(int64(s.BusTransfers)))
}

func printCache(w io.Writer, name string, s cache.Statistics) {
	labelColor.Fprintf(w, "  %s\n", name)
	fmt.Fprintf(w, "    accesses %s, hits %s (%.2f%%), misses %s, mshr hits %s\n",
		humanize.Comma(int64(s.Accesses)), humanize.Comma(int64(s.Hits)),
		100*s.HitRate(), humanize.Comma(int64(s.Misses)),
		humanize.Comma(int64(s.MSHRHits)))
	fmt.Fprintf(w, "    evictions %s, writebacks %s, stalls %s\n",
		humanize.Comma(int64(s.Evictions)), humanize.Comma(int64(s.Writebacks)),
		humanize.Comma(int64(s.Stalls)))

	if s.VictimHits+s.VictimMisses > 0 {
		fmt.Fprintf(w, "    victim hits %s, victim misses %s\n",
			humanize.Comma(int64(s.VictimHits)),
			humanize.Comma(int64(s.VictimMisses)))
	}

	if s.PrefetchIssued+s.PrefetchDropped > 0 {
		fmt.Fprintf(w, "    prefetches issued %s, dropped %s, useful %s, cancelled %s\n",
			humanize.Comma(int64(s.PrefetchIssued)),
			humanize.Comma(int64(s.PrefetchDropped)),
			humanize.Comma(int64(s.PrefetchUseful)),
			humanize.Comma(int64(s.PrefetchCancelled)))
	}
}

func printLatency(w io.Writer, t *trace.LatencyTracer) {
	for _, level := range t.Levels() {
		l := t.Summary(level)
		fmt.Fprintf(w, "    served by %-7s %s requests, average %.2f, max %d cycles\n",
			level, humanize.Comma(int64(l.Count)), l.AverageLatency(),
			l.MaxLatency)
	}
}
