package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"workescrow/native/escrow"
)

var errImmutableField = errors.New("state: immutable escrow field changed")

func escrowKey(key escrow.Key) []byte {
	return kvKey(escrowPrefix, key.Payer[:], key.Payee[:])
}

func partyKey(party [20]byte) []byte {
	return kvKey(partyPrefix, party[:])
}

// EscrowGet loads the record stored under key.
func (t *Txn) EscrowGet(key escrow.Key) (*escrow.Escrow, error) {
	data, ok, err := t.get(escrowKey(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, escrow.ErrEscrowNotFound
	}
	esc := new(escrow.Escrow)
	if err := esc.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("state: decode escrow %s: %w", key, err)
	}
	return esc, nil
}

// EscrowCreate persists a new record, reserves MaxRecordSize bytes for it and
// appends the key to both parties' indexes.
func (t *Txn) EscrowCreate(esc *escrow.Escrow) error {
	if esc == nil {
		return fmt.Errorf("state: nil escrow")
	}
	key := esc.Key()
	_, exists, err := t.get(escrowKey(key))
	if err != nil {
		return err
	}
	if exists {
		return escrow.ErrEscrowExists
	}
	if err := esc.Validate(); err != nil {
		return err
	}
	if err := t.writeEscrow(esc); err != nil {
		return err
	}
	if err := t.addReserved(uint64(escrow.MaxRecordSize)); err != nil {
		return err
	}
	if err := t.indexParty(esc.Payer, key); err != nil {
		return err
	}
	if esc.Payee != esc.Payer {
		return t.indexParty(esc.Payee, key)
	}
	return nil
}

// EscrowPut overwrites an existing record. Fields fixed at creation must not
// change.
func (t *Txn) EscrowPut(esc *escrow.Escrow) error {
	if esc == nil {
		return fmt.Errorf("state: nil escrow")
	}
	stored, err := t.EscrowGet(esc.Key())
	if err != nil {
		return err
	}
	if stored.Amount != esc.Amount || stored.TimeoutDays != esc.TimeoutDays || stored.Bump != esc.Bump || stored.CreatedAt != esc.CreatedAt {
		return errImmutableField
	}
	if err := esc.Validate(); err != nil {
		return err
	}
	return t.writeEscrow(esc)
}

// EscrowKeysByParty lists the keys party participates in, in creation order.
func (t *Txn) EscrowKeysByParty(party [20]byte) ([]escrow.Key, error) {
	data, ok, err := t.get(partyKey(party))
	if err != nil || !ok {
		return nil, err
	}
	var keys []escrow.Key
	if err := rlp.DecodeBytes(data, &keys); err != nil {
		return nil, fmt.Errorf("state: decode party index: %w", err)
	}
	return keys, nil
}

// ReservedBytes returns the storage reserved for all records so far.
func (t *Txn) ReservedBytes() (uint64, error) {
	data, ok, err := t.get(reservedKey)
	if err != nil || !ok {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("state: corrupt reservation counter")
	}
	return binary.BigEndian.Uint64(data), nil
}

func (t *Txn) writeEscrow(esc *escrow.Escrow) error {
	encoded, err := esc.MarshalBinary()
	if err != nil {
		return err
	}
	if len(encoded) > escrow.MaxRecordSize {
		return fmt.Errorf("state: record of %d bytes exceeds reservation of %d", len(encoded), escrow.MaxRecordSize)
	}
	return t.put(escrowKey(esc.Key()), encoded)
}

func (t *Txn) addReserved(n uint64) error {
	current, err := t.ReservedBytes()
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, current+n)
	return t.put(reservedKey, buf)
}

func (t *Txn) indexParty(party [20]byte, key escrow.Key) error {
	keys, err := t.EscrowKeysByParty(party)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(append(keys, key))
	if err != nil {
		return err
	}
	return t.put(partyKey(party), encoded)
}
