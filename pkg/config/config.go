package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultFile is the optional config file read from the working directory
const DefaultFile = "navisys.toml"

// EnvPrefix prefixes environment overrides, e.g. NAVISYS_PORT=9090
const EnvPrefix = "NAVISYS_"

// Config holds all configuration for the navisys binary
type Config struct {
	Graph       string `koanf:"graph"`       // edge file; empty loads the demo network
	Changes     string `koanf:"changes"`     // real-time change file
	Source      string `koanf:"source"`      // start node for queries
	Destination string `koanf:"destination"` // optional route target
	WebMode     bool   `koanf:"web"`
	Port        int    `koanf:"port"`
	Watch       bool   `koanf:"watch"`
	LogFormat   string `koanf:"log.format"`
	Verbosity   string `koanf:"verbosity"`
	VerboseCnt  int    `koanf:"verbose"`
}

// Flags registers the command-line flags Load understands
func Flags(f *pflag.FlagSet) {
	f.String("graph", "", "Edge file (TOML or JSON); the demo network is used when empty")
	f.String("changes", "", "Real-time change file (TOML or JSON)")
	f.String("source", "0", "Start node for distance queries")
	f.String("destination", "", "Destination node; prints the route to it")
	f.Bool("web", false, "Serve the HTTP API instead of printing to the console")
	f.Int("port", 8080, "Port for the HTTP API (only used with --web)")
	f.Bool("watch", false, "Watch the change file and recompute on every write")
	f.String("log.format", "compact", "Log format: compact or json")
	f.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	f.CountP("verbose", "v", "Increase log verbosity (repeatable)")
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return load(f, DefaultFile)
}

func load(f *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"graph":       "",
		"changes":     "",
		"source":      "0",
		"destination": "",
		"web":         false,
		"port":        8080,
		"watch":       false,
		"log":         map[string]any{"format": "compact"},
		"verbosity":   "",
		"verbose":     0,
	}
	if err := k.Load(mapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// The config file is optional
	_ = k.Load(file.Provider(path), toml.Parser())

	// NAVISYS_LOG_FORMAT -> log.format
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// posflag only overrides with flags that were set or have no value yet
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Watch && cfg.Changes == "" {
		return nil, fmt.Errorf("--watch requires --changes")
	}

	return &cfg, nil
}

// mapProvider serves an in-memory map to koanf
type mapProvider map[string]any

func (p mapProvider) Read() (map[string]any, error) {
	return p, nil
}

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
