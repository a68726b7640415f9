package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"workescrow/crypto"
)

func testAccount(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.AccountAddress(raw).String()
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escrowd.toml")
	contents := fmt.Sprintf(`ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
DBBackend = "bolt"
Environment = "staging"

[Logging]
Level = "debug"
File = "./logs/escrowd.log"
MaxSizeMB = 50

[Telemetry]
Endpoint = "otel:4318"
Traces = true
SampleRatio = 0.25

[RPC]
AllowedSkewSeconds = 30
RequestsPerMinute = 120
Burst = 10
AdminSecret = "s3cret"

[RPC.MintQuota]
MaxValuePerEpoch = 1000
EpochSeconds = 3600

[Pauses]
Ledger = true

[[Allocations]]
Address = "%s"
Amount = 500
`, testAccount(0x11))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" || cfg.DBBackend != BackendBolt {
		t.Fatalf("unexpected top-level fields: %+v", cfg)
	}
	if cfg.EventLogPath != filepath.Join("./data", "events.db") {
		t.Fatalf("unexpected event log default: %s", cfg.EventLogPath)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.MaxSizeMB != 50 {
		t.Fatalf("unexpected logging section: %+v", cfg.Logging)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.SampleRatio != 0.25 {
		t.Fatalf("unexpected telemetry section: %+v", cfg.Telemetry)
	}
	if cfg.RPC.AllowedSkew().Seconds() != 30 || cfg.RPC.Burst != 10 {
		t.Fatalf("unexpected rpc section: %+v", cfg.RPC)
	}
	if cfg.RPC.ReadTimeout != DefaultRPCTimeoutSeconds {
		t.Fatalf("expected default read timeout, got %d", cfg.RPC.ReadTimeout)
	}
	quota := cfg.RPC.MintQuota.Quota()
	if quota.MaxValue != 1000 || quota.EpochSeconds != 3600 {
		t.Fatalf("unexpected mint quota: %+v", quota)
	}
	if !cfg.Pauses.IsPaused("ledger") || cfg.Pauses.IsPaused("escrow") {
		t.Fatalf("unexpected pauses: %+v", cfg.Pauses)
	}
	if len(cfg.Allocations) != 1 || cfg.Allocations[0].Amount != 500 {
		t.Fatalf("unexpected allocations: %+v", cfg.Allocations)
	}
	handle, err := cfg.Allocations[0].Handle()
	if err != nil || handle[0] != 0x11 {
		t.Fatalf("allocation handle: %x %v", handle, err)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.yaml")
	contents := `listenAddress: ":7000"
dbBackend: memory
rpc:
  allowedSkewSeconds: 5
pauses:
  escrow: true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7000" || cfg.DBBackend != BackendMemory {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RPC.AllowedSkewSeconds != 5 || cfg.RPC.RequestsPerMinute != DefaultRequestsPerMinute {
		t.Fatalf("unexpected rpc section: %+v", cfg.RPC)
	}
	if !cfg.Pauses.IsPaused("Escrow") {
		t.Fatalf("escrow pause not applied")
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "escrowd.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != DefaultListenAddress || cfg.DBBackend != BackendLevelDB {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RPC.AdminSecretEnv != "ESCROWD_ADMIN_SECRET" || reloaded.Environment != "local" {
		t.Fatalf("reloaded config lost fields: %+v", reloaded)
	}
}

func TestLoadRejectsUnknownTOMLField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	if err := os.WriteFile(path, []byte("MempoolLimit = \"abc\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "MempoolLimit") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}
	if err := ValidateConfig(valid()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"backend":          func(c *Config) { c.DBBackend = "postgres" },
		"skew":             func(c *Config) { c.RPC.AllowedSkewSeconds = -1 },
		"rate":             func(c *Config) { c.RPC.Burst = -1 },
		"sample ratio":     func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
		"quota epoch":      func(c *Config) { c.RPC.MintQuota.MaxValuePerEpoch = 10 },
		"bad address":      func(c *Config) { c.Allocations = []Allocation{{Address: "nope", Amount: 1}} },
		"zero allocation":  func(c *Config) { c.Allocations = []Allocation{{Address: testAccount(1)}} },
		"custody address":  func(c *Config) { c.Allocations = []Allocation{{Address: custodyAddress(), Amount: 1}} },
		"duplicate holder": func(c *Config) { c.Allocations = []Allocation{{Address: testAccount(2), Amount: 1}, {Address: testAccount(2), Amount: 2}} },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := ValidateConfig(nil); err == nil {
		t.Fatalf("nil config should fail")
	}
}

func custodyAddress() string {
	var raw [20]byte
	raw[0] = 0xAA
	return crypto.CustodyAddress(raw).String()
}

func TestResolveAdminSecretPrefersEnvironment(t *testing.T) {
	r := RPC{AdminSecret: "from-file", AdminSecretEnv: "ESCROWD_TEST_ADMIN_SECRET"}
	if got := r.ResolveAdminSecret(); got != "from-file" {
		t.Fatalf("expected file secret, got %q", got)
	}
	t.Setenv("ESCROWD_TEST_ADMIN_SECRET", "from-env")
	if got := r.ResolveAdminSecret(); got != "from-env" {
		t.Fatalf("expected env secret, got %q", got)
	}
}
