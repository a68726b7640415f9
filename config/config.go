package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty by the configuration file.
const (
	DefaultListenAddress      = ":8547"
	DefaultDataDir            = "./escrow-data"
	DefaultAllowedSkewSeconds = 120
	DefaultRequestsPerMinute  = 600
	DefaultBurst              = 60
	DefaultRPCTimeoutSeconds  = 15
)

// Load loads the configuration from the given path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown field %q in %s", undecoded[0].String(), path)
		}
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(cfg.DBBackend) == "" {
		cfg.DBBackend = BackendLevelDB
	}
	cfg.DBBackend = strings.ToLower(strings.TrimSpace(cfg.DBBackend))
	if strings.TrimSpace(cfg.EventLogPath) == "" {
		cfg.EventLogPath = filepath.Join(cfg.DataDir, "events.db")
	}
	if cfg.RPC.AllowedSkewSeconds == 0 {
		cfg.RPC.AllowedSkewSeconds = DefaultAllowedSkewSeconds
	}
	if cfg.RPC.RequestsPerMinute == 0 {
		cfg.RPC.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.RPC.Burst == 0 {
		cfg.RPC.Burst = DefaultBurst
	}
	if cfg.RPC.ReadTimeout == 0 {
		cfg.RPC.ReadTimeout = DefaultRPCTimeoutSeconds
	}
	if cfg.RPC.WriteTimeout == 0 {
		cfg.RPC.WriteTimeout = DefaultRPCTimeoutSeconds
	}
	if cfg.Allocations == nil {
		cfg.Allocations = []Allocation{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       DefaultDataDir,
		DBBackend:     BackendLevelDB,
		Environment:   "local",
		Logging:       Logging{Level: "info"},
		Telemetry:     Telemetry{Endpoint: "localhost:4318", Insecure: true},
		RPC: RPC{
			AllowedSkewSeconds: DefaultAllowedSkewSeconds,
			RequestsPerMinute:  DefaultRequestsPerMinute,
			Burst:              DefaultBurst,
			AdminSecretEnv:     "ESCROWD_ADMIN_SECRET",
			ReadTimeout:        DefaultRPCTimeoutSeconds,
			WriteTimeout:       DefaultRPCTimeoutSeconds,
		},
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
