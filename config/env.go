package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadEnv.
const (
	EnvConfig      = "CACHESIM_CONFIG"
	EnvConfigFile  = "CACHESIM_CONFIG_FILE"
	EnvTrace       = "CACHESIM_TRACE"
	EnvDB          = "CACHESIM_DB"
	EnvMonitorPort = "CACHESIM_MONITOR_PORT"
)

// Env holds the settings that can come from the environment. Empty fields
// were not set.
type Env struct {
	Config      string
	ConfigFile  string
	Trace       string
	DB          string
	MonitorPort int
}

// LoadEnv loads the given .env files, or ".env" when none is given, and reads
// the CACHESIM_* variables. Missing files are ignored. Variables already set
// in the process take precedence over the files.
func LoadEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}

		if err := godotenv.Load(file); err != nil {
			return Env{}, err
		}
	}

	env := Env{
		Config:     os.Getenv(EnvConfig),
		ConfigFile: os.Getenv(EnvConfigFile),
		Trace:      os.Getenv(EnvTrace),
		DB:         os.Getenv(EnvDB),
	}

	if port := os.Getenv(EnvMonitorPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 0 || p > 65535 {
			return Env{}, fmt.Errorf("%s: invalid port %q", EnvMonitorPort, port)
		}

		env.MonitorPort = p
	}

	return env, nil
}
