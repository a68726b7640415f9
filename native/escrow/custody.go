package escrow

import (
	"errors"
	"fmt"

	"workescrow/crypto"
)

// ErrBalanceOverflow is returned by a Ledger when a credit would exceed the
// maximum representable balance.
var ErrBalanceOverflow = errors.New("escrow: balance overflow")

var errInvalidCustodySigner = errors.New("escrow: custody signer not derived")

// Ledger is the balance collaborator the vault moves value through. Debit and
// Credit are only called inside the caller's atomic unit.
type Ledger interface {
	Balance(addr [20]byte) (uint64, error)
	Debit(addr [20]byte, amount uint64) error
	Credit(addr [20]byte, amount uint64) error
}

// Vault moves escrowed value in and out of derived custody slots. Outgoing
// transfers require a crypto.CustodySigner for the slot.
type Vault struct{}

// Deposit moves amount from payer into the custody slot.
func (Vault) Deposit(l Ledger, payer, custody [20]byte, amount uint64) error {
	balance, err := l.Balance(payer)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, balance, amount)
	}
	return move(l, payer, custody, amount)
}

// Release pays amount out of the signer's slot to the payee.
func (v Vault) Release(l Ledger, signer crypto.CustodySigner, payee [20]byte, amount uint64) error {
	return v.withdraw(l, signer, payee, amount)
}

// Return sends amount out of the signer's slot back to the payer.
func (v Vault) Return(l Ledger, signer crypto.CustodySigner, payer [20]byte, amount uint64) error {
	return v.withdraw(l, signer, payer, amount)
}

func (Vault) withdraw(l Ledger, signer crypto.CustodySigner, to [20]byte, amount uint64) error {
	if !signer.Valid() {
		return errInvalidCustodySigner
	}
	custody := signer.Address()
	balance, err := l.Balance(custody)
	if err != nil {
		return err
	}
	if balance < amount {
		panic(&CustodyInvariantError{Custody: custody, Balance: balance, Amount: amount})
	}
	return move(l, custody, to, amount)
}

func move(l Ledger, from, to [20]byte, amount uint64) error {
	if err := l.Debit(from, amount); err != nil {
		return err
	}
	return l.Credit(to, amount)
}
