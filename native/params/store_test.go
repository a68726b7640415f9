package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"workescrow/config"
	"workescrow/native/common"
)

type memParams map[string][]byte

func (m memParams) ParamStoreSet(name string, value []byte) error {
	m[name] = append([]byte(nil), value...)
	return nil
}

func (m memParams) ParamStoreGet(name string) ([]byte, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

type brokenParams struct{}

func (brokenParams) ParamStoreSet(string, []byte) error { return errors.New("disk full") }
func (brokenParams) ParamStoreGet(string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}

func TestStorePersistsOverrides(t *testing.T) {
	store := NewStore(memParams{}, config.Pauses{})
	require.False(t, store.IsPaused("escrow"))

	require.NoError(t, store.SetPauses(config.Pauses{Escrow: true}))
	got, err := store.Pauses()
	require.NoError(t, err)
	require.True(t, got.Escrow)
	require.True(t, store.IsPaused("escrow"))
	require.False(t, store.IsPaused("ledger"))
	require.ErrorIs(t, common.Guard(store, "escrow"), common.ErrModulePaused)

	require.NoError(t, store.SetPauses(config.Pauses{}))
	require.False(t, store.IsPaused("escrow"))
}

func TestStoreDefaultsCannotBeLifted(t *testing.T) {
	store := NewStore(memParams{}, config.Pauses{Ledger: true})
	require.NoError(t, store.SetPauses(config.Pauses{Escrow: true}))
	require.True(t, store.IsPaused("ledger"))

	effective, err := store.Effective()
	require.NoError(t, err)
	require.Equal(t, config.Pauses{Escrow: true, Ledger: true}, effective)
}

func TestStoreFailsClosed(t *testing.T) {
	store := NewStore(brokenParams{}, config.Pauses{})
	require.True(t, store.IsPaused("escrow"))
	require.Error(t, store.SetPauses(config.Pauses{}))

	var nilStore *Store
	require.False(t, nilStore.IsPaused("escrow"))
	_, err := nilStore.Pauses()
	require.Error(t, err)
}

func TestStoreRejectsCorruptOverrides(t *testing.T) {
	state := memParams{ParamsKeyPauses: []byte("{not json")}
	store := NewStore(state, config.Pauses{})
	_, err := store.Pauses()
	require.Error(t, err)
	require.True(t, store.IsPaused("ledger"))
}
