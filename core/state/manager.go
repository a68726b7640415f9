package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"workescrow/native/escrow"
	"workescrow/storage"
)

var errReadOnly = errors.New("state: write attempted in read-only view")

var (
	escrowPrefix    = []byte("escrow:")
	partyPrefix     = []byte("party:")
	balancePrefix   = []byte("balance:")
	paramPrefix     = []byte("param:")
	supplyKey       = ethcrypto.Keccak256([]byte("supply"))
	reservedKey     = ethcrypto.Keccak256([]byte("escrow-reserved-bytes"))
	allocationsMark = ethcrypto.Keccak256([]byte("allocations-applied"))
)

func kvKey(prefix []byte, parts ...[]byte) []byte {
	chunks := make([][]byte, 0, len(parts)+1)
	chunks = append(chunks, prefix)
	chunks = append(chunks, parts...)
	return ethcrypto.Keccak256(chunks...)
}

// Manager owns the record store and balance ledger on top of a key/value
// database. All mutations run inside Update units: writes are staged in an
// overlay and flushed as one storage batch only when the unit succeeds.
type Manager struct {
	db storage.Database
	mu sync.RWMutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// View runs fn against a read-only snapshot of the store.
func (m *Manager) View(fn func(escrow.State) error) error {
	return m.view(func(tx *Txn) error { return fn(tx) })
}

// Update runs fn as one atomic unit. If fn returns an error or panics the
// staged writes are dropped and nothing reaches the database.
func (m *Manager) Update(fn func(escrow.State) error) error {
	return m.update(func(tx *Txn) error { return fn(tx) })
}

func (m *Manager) view(fn func(*Txn) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&Txn{db: m.db, readOnly: true})
}

func (m *Manager) update(fn func(*Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &Txn{db: m.db, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// Txn is the overlay a single unit reads and writes through.
type Txn struct {
	db       storage.Database
	readOnly bool
	writes   map[string][]byte
	order    []string
}

func (t *Txn) get(key []byte) ([]byte, bool, error) {
	if staged, ok := t.writes[string(key)]; ok {
		return staged, true, nil
	}
	value, err := t.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: read: %w", err)
	}
	return value, true, nil
}

func (t *Txn) put(key, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	k := string(key)
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

func (t *Txn) commit() error {
	if len(t.order) == 0 {
		return nil
	}
	batch := t.db.NewBatch()
	for _, k := range t.order {
		batch.Put([]byte(k), t.writes[k])
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

var _ escrow.State = (*Txn)(nil)
var _ escrow.Backend = (*Manager)(nil)
