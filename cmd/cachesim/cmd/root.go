// Package cmd provides the command-line interface of cachesim.
package cmd

import (
	"github.com/sarchlab/cachesim/config"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cachesim",
	Short: "cachesim simulates the cache hierarchy of a single core.",
	Long: `cachesim replays memory access traces, or a random verification ` +
		`workload, through L1 instruction and data caches, an optional ` +
		`victim cache, a memory bus and main memory, and reports the ` +
		`latency and hit rates of every level.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return applyEnv(cmd)
	},
}

type rootOptions struct {
	config      string
	configFile  string
	db          string
	record      bool
	monitor     bool
	monitorPort int
	openBrowser bool
	verbose     bool
	maxRequests uint64
	maxTick     uint64
}

var rootOpts rootOptions

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootOpts.config, "config", "baseline",
		"name of a built-in configuration (see `cachesim configs`)")
	flags.StringVar(&rootOpts.configFile, "config-file", "",
		"YAML file describing the memory system")
	flags.StringVar(&rootOpts.db, "db", "",
		"record every transaction into this SQLite database")
	flags.BoolVar(&rootOpts.record, "record", false,
		"record every transaction into a newly named SQLite database")
	flags.BoolVar(&rootOpts.monitor, "monitor", false,
		"serve the monitoring web page while simulating")
	flags.IntVar(&rootOpts.monitorPort, "monitor-port", 0,
		"port of the monitoring server, random if 0")
	flags.BoolVar(&rootOpts.openBrowser, "open-browser", false,
		"open the monitoring web page in a browser")
	flags.BoolVarP(&rootOpts.verbose, "verbose", "v", false,
		"print every transaction")
	flags.Uint64Var(&rootOpts.maxRequests, "max-requests", 0,
		"stop after this many requests, 0 for no limit")
	flags.Uint64Var(&rootOpts.maxTick, "max-tick", 0,
		"stop once the clock reaches this tick, 0 for no limit")
}

// applyEnv fills the flags that were not given on the command line from the
// CACHESIM_* environment variables and the .env file.
func applyEnv(cmd *cobra.Command) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if env.Config != "" && !flags.Changed("config") {
		rootOpts.config = env.Config
	}

	if env.ConfigFile != "" && !flags.Changed("config-file") {
		rootOpts.configFile = env.ConfigFile
	}

	if env.DB != "" && !flags.Changed("db") {
		rootOpts.db = env.DB
	}

	if env.MonitorPort != 0 && !flags.Changed("monitor-port") {
		rootOpts.monitorPort = env.MonitorPort
		rootOpts.monitor = true
	}

	if env.Trace != "" && cmd == runCmd && !flags.Changed("trace") {
		runOpts.trace = env.Trace
	}

	return nil
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
