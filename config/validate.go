package config

import (
	"fmt"
	"strings"
)

// ValidateConfig rejects configurations escrowd cannot start with.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	switch cfg.DBBackend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("config: unsupported DBBackend %q", cfg.DBBackend)
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if cfg.RPC.AllowedSkewSeconds < 0 {
		return fmt.Errorf("rpc: AllowedSkewSeconds must be positive")
	}
	if cfg.RPC.RequestsPerMinute < 0 || cfg.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if cfg.RPC.ReadTimeout < 0 || cfg.RPC.WriteTimeout < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	q := cfg.RPC.MintQuota
	if (q.MaxRequestsPerEpoch > 0 || q.MaxValuePerEpoch > 0) && q.EpochSeconds == 0 {
		return fmt.Errorf("rpc: MintQuota requires EpochSeconds")
	}
	seen := make(map[[20]byte]struct{}, len(cfg.Allocations))
	for i, alloc := range cfg.Allocations {
		handle, err := alloc.Handle()
		if err != nil {
			return fmt.Errorf("allocations[%d]: invalid address %q: %w", i, alloc.Address, err)
		}
		if alloc.Amount == 0 {
			return fmt.Errorf("allocations[%d]: amount must be positive", i)
		}
		if _, dup := seen[handle]; dup {
			return fmt.Errorf("allocations[%d]: duplicate address %s", i, alloc.Address)
		}
		seen[handle] = struct{}{}
	}
	return nil
}
