package config

import (
	"os"
	"strings"
	"time"

	"workescrow/crypto"
	"workescrow/native/common"
)

// Supported DBBackend values.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Config is the escrowd service configuration.
type Config struct {
	ListenAddress string       `toml:"ListenAddress" yaml:"listenAddress"`
	DataDir       string       `toml:"DataDir" yaml:"dataDir"`
	DBBackend     string       `toml:"DBBackend" yaml:"dbBackend"`
	EventLogPath  string       `toml:"EventLogPath" yaml:"eventLogPath"`
	Environment   string       `toml:"Environment" yaml:"environment"`
	Logging       Logging      `toml:"Logging" yaml:"logging"`
	Telemetry     Telemetry    `toml:"Telemetry" yaml:"telemetry"`
	RPC           RPC          `toml:"RPC" yaml:"rpc"`
	Pauses        Pauses       `toml:"Pauses" yaml:"pauses"`
	Allocations   []Allocation `toml:"Allocations" yaml:"allocations"`
}

// Logging mirrors logging.Options.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// RPC tunes the JSON-RPC server.
type RPC struct {
	// AllowedSkewSeconds bounds the distance between a signed request's
	// timestamp and the server clock.
	AllowedSkewSeconds int64 `toml:"AllowedSkewSeconds" yaml:"allowedSkewSeconds"`
	RequestsPerMinute  int   `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst              int   `toml:"Burst" yaml:"burst"`
	// AdminSecret signs admin bearer tokens. AdminSecretEnv names an
	// environment variable that takes precedence when set.
	AdminSecret    string    `toml:"AdminSecret" yaml:"adminSecret"`
	AdminSecretEnv string    `toml:"AdminSecretEnv" yaml:"adminSecretEnv"`
	MintQuota      MintQuota `toml:"MintQuota" yaml:"mintQuota"`
	ReadTimeout    int       `toml:"ReadTimeout" yaml:"readTimeout"`
	WriteTimeout   int       `toml:"WriteTimeout" yaml:"writeTimeout"`
}

// MintQuota caps ledger_mint per admin subject and epoch.
type MintQuota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch" yaml:"maxRequestsPerEpoch"`
	MaxValuePerEpoch    uint64 `toml:"MaxValuePerEpoch" yaml:"maxValuePerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds" yaml:"epochSeconds"`
}

// Pauses toggles modules off. A paused module rejects every mutating call.
type Pauses struct {
	Escrow bool `toml:"Escrow" yaml:"escrow" json:"escrow"`
	Ledger bool `toml:"Ledger" yaml:"ledger" json:"ledger"`
}

// Allocation credits Amount to Address the first time the store is opened.
type Allocation struct {
	Address string `toml:"Address" yaml:"address"`
	Amount  uint64 `toml:"Amount" yaml:"amount"`
}

// IsPaused implements common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "escrow":
		return p.Escrow
	case "ledger":
		return p.Ledger
	default:
		return false
	}
}

// Handle decodes the allocation address.
func (a Allocation) Handle() ([20]byte, error) {
	return crypto.ParseAccount(strings.TrimSpace(a.Address))
}

func (r RPC) AllowedSkew() time.Duration {
	return time.Duration(r.AllowedSkewSeconds) * time.Second
}

// ResolveAdminSecret returns the admin signing secret, preferring the
// environment variable named by AdminSecretEnv.
func (r RPC) ResolveAdminSecret() string {
	if name := strings.TrimSpace(r.AdminSecretEnv); name != "" {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(r.AdminSecret)
}

func (q MintQuota) Quota() common.Quota {
	return common.Quota{
		MaxMints:     q.MaxRequestsPerEpoch,
		MaxValue:     q.MaxValuePerEpoch,
		EpochSeconds: q.EpochSeconds,
	}
}

var _ common.PauseView = Pauses{}
