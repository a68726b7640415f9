package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"workescrow/config"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for runtime parameters. Its IsPaused view
// combines the pauses from the configuration file with the overrides an
// operator persisted through the admin API.
type Store struct {
	state    StoreState
	defaults config.Pauses
	logger   *slog.Logger
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend. defaults are the pauses from the configuration file.
func NewStore(state StoreState, defaults config.Pauses) *Store {
	return &Store{state: state, defaults: defaults, logger: slog.Default()}
}

// SetLogger replaces the logger used to report unreadable overrides.
func (s *Store) SetLogger(logger *slog.Logger) {
	if s != nil && logger != nil {
		s.logger = logger
	}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetPauses persists the supplied pause overrides. Values are marshalled as
// JSON.
func (s *Store) SetPauses(pauses config.Pauses) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(pauses)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyPauses, encoded)
}

// Pauses loads the persisted pause overrides. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (config.Pauses, error) {
	state, err := s.withState()
	if err != nil {
		return config.Pauses{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyPauses)
	if err != nil {
		return config.Pauses{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return config.Pauses{}, nil
	}
	var pauses config.Pauses
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return config.Pauses{}, fmt.Errorf("params: decode pauses: %w", err)
	}
	return pauses, nil
}

// Effective returns the configured pauses merged with the persisted overrides.
func (s *Store) Effective() (config.Pauses, error) {
	overrides, err := s.Pauses()
	if err != nil {
		return s.defaults, err
	}
	return config.Pauses{
		Escrow: s.defaults.Escrow || overrides.Escrow,
		Ledger: s.defaults.Ledger || overrides.Ledger,
	}, nil
}

// IsPaused implements common.PauseView. An unreadable override counts as
// paused.
func (s *Store) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	if s.defaults.IsPaused(module) {
		return true
	}
	overrides, err := s.Pauses()
	if err != nil {
		s.logger.Error("pause overrides unreadable", slog.String("module", module), slog.String("error", err.Error()))
		return true
	}
	return overrides.IsPaused(module)
}
