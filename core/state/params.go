package state

import (
	"fmt"
	"strings"
)

func paramKey(name string) []byte {
	return kvKey(paramPrefix, []byte(name))
}

// ParamStoreSet stores an opaque runtime parameter as its own unit.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("state: empty parameter name")
	}
	return m.update(func(tx *Txn) error {
		return tx.put(paramKey(name), value)
	})
}

// ParamStoreGet loads a runtime parameter. The boolean reports whether it was
// ever written.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := m.view(func(tx *Txn) error {
		value, ok, err := tx.get(paramKey(strings.TrimSpace(name)))
		out, found = value, ok
		return err
	})
	return out, found, err
}
