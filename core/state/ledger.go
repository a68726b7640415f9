package state

import (
	"fmt"

	"github.com/holiman/uint256"

	"workescrow/native/escrow"
)

var maxBalance = uint256.NewInt(^uint64(0))

func balanceKey(addr [20]byte) []byte {
	return kvKey(balancePrefix, addr[:])
}

func (t *Txn) loadUint256(key []byte) (*uint256.Int, error) {
	data, ok, err := t.get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("state: corrupt balance encoding of %d bytes", len(data))
	}
	return new(uint256.Int).SetBytes32(data), nil
}

func (t *Txn) storeUint256(key []byte, v *uint256.Int) error {
	encoded := v.Bytes32()
	return t.put(key, encoded[:])
}

// Balance implements escrow.Ledger.
func (t *Txn) Balance(addr [20]byte) (uint64, error) {
	bal, err := t.loadUint256(balanceKey(addr))
	if err != nil {
		return 0, err
	}
	if !bal.IsUint64() {
		return 0, fmt.Errorf("state: balance of %x exceeds 64 bits", addr)
	}
	return bal.Uint64(), nil
}

// Debit implements escrow.Ledger.
func (t *Txn) Debit(addr [20]byte, amount uint64) error {
	bal, err := t.loadUint256(balanceKey(addr))
	if err != nil {
		return err
	}
	amt := uint256.NewInt(amount)
	if bal.Lt(amt) {
		return fmt.Errorf("%w: balance %s, debit %d", escrow.ErrInsufficientFunds, bal.Dec(), amount)
	}
	return t.storeUint256(balanceKey(addr), new(uint256.Int).Sub(bal, amt))
}

// Credit implements escrow.Ledger. A credit that would push the balance past
// 64 bits fails with escrow.ErrBalanceOverflow.
func (t *Txn) Credit(addr [20]byte, amount uint64) error {
	bal, err := t.loadUint256(balanceKey(addr))
	if err != nil {
		return err
	}
	next := new(uint256.Int).Add(bal, uint256.NewInt(amount))
	if next.Gt(maxBalance) {
		return fmt.Errorf("%w: credit %d to %x", escrow.ErrBalanceOverflow, amount, addr)
	}
	return t.storeUint256(balanceKey(addr), next)
}

// Supply returns the total value ever minted.
func (t *Txn) Supply() (*uint256.Int, error) {
	return t.loadUint256(supplyKey)
}

// Mint credits amount to addr and grows the supply accordingly.
func (t *Txn) Mint(addr [20]byte, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: mint amount must be positive", escrow.ErrInvalidAmount)
	}
	if err := t.Credit(addr, amount); err != nil {
		return 0, err
	}
	supply, err := t.Supply()
	if err != nil {
		return 0, err
	}
	if err := t.storeUint256(supplyKey, new(uint256.Int).Add(supply, uint256.NewInt(amount))); err != nil {
		return 0, err
	}
	return t.Balance(addr)
}

// Balance reads the balance of addr outside any unit.
func (m *Manager) Balance(addr [20]byte) (uint64, error) {
	var out uint64
	err := m.view(func(tx *Txn) error {
		bal, err := tx.Balance(addr)
		out = bal
		return err
	})
	return out, err
}

// Supply reads the total minted value.
func (m *Manager) Supply() (*uint256.Int, error) {
	var out *uint256.Int
	err := m.view(func(tx *Txn) error {
		supply, err := tx.Supply()
		out = supply
		return err
	})
	return out, err
}

// ReservedBytes reads the storage reserved for escrow records.
func (m *Manager) ReservedBytes() (uint64, error) {
	var out uint64
	err := m.view(func(tx *Txn) error {
		n, err := tx.ReservedBytes()
		out = n
		return err
	})
	return out, err
}

// Mint credits amount to addr as one unit and returns the new balance.
func (m *Manager) Mint(addr [20]byte, amount uint64) (uint64, error) {
	var out uint64
	err := m.update(func(tx *Txn) error {
		bal, err := tx.Mint(addr, amount)
		out = bal
		return err
	})
	return out, err
}

// Allocation is an initial balance credited when a store is first opened.
type Allocation struct {
	Address [20]byte
	Amount  uint64
}

// ApplyAllocations mints every allocation exactly once per store. It reports
// whether this call performed the minting.
func (m *Manager) ApplyAllocations(allocs []Allocation) (bool, error) {
	applied := false
	err := m.update(func(tx *Txn) error {
		_, done, err := tx.get(allocationsMark)
		if err != nil || done {
			return err
		}
		for _, alloc := range allocs {
			if _, err := tx.Mint(alloc.Address, alloc.Amount); err != nil {
				return fmt.Errorf("state: allocation for %x: %w", alloc.Address, err)
			}
		}
		applied = true
		return tx.put(allocationsMark, []byte{1})
	})
	return applied, err
}
