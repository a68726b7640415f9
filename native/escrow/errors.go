package escrow

import (
	"errors"
	"fmt"

	"workescrow/native/common"
)

var (
	ErrInvalidStatus         = errors.New("escrow: operation not allowed in current status")
	ErrUnauthorized          = errors.New("escrow: unauthorized caller")
	ErrInsufficientFunds     = errors.New("escrow: insufficient funds")
	ErrInvalidAmount         = errors.New("escrow: invalid amount")
	ErrInvalidTimeout        = errors.New("escrow: timeout days out of range")
	ErrInvalidWorkLink       = errors.New("escrow: invalid work reference")
	ErrWorkLinkTooLong       = errors.New("escrow: work reference too long")
	ErrEscrowAlreadyComplete = errors.New("escrow: escrow already complete")
	ErrEscrowExists          = errors.New("escrow: escrow already exists")
	ErrEscrowNotFound        = errors.New("escrow: escrow not found")
)

// StatusError reports an operation attempted from a status that does not
// allow it. Against a terminal record it also matches ErrEscrowAlreadyComplete.
type StatusError struct {
	Op     Operation
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("escrow: cannot %s in status %s", e.Op, e.Status)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrInvalidStatus:
		return true
	case ErrEscrowAlreadyComplete:
		return e.Status.Terminal()
	}
	return false
}

// CustodyInvariantError is raised (as a panic) when a custody slot holds less
// than the escrow it backs. The state machine makes this unreachable.
type CustodyInvariantError struct {
	Custody [20]byte
	Balance uint64
	Amount  uint64
}

func (e *CustodyInvariantError) Error() string {
	return fmt.Sprintf("escrow: custody %x holds %d, cannot move %d", e.Custody, e.Balance, e.Amount)
}

var kinds = []struct {
	err  error
	kind string
}{
	// Order matters: terminal status errors match both entries.
	{ErrInvalidStatus, "InvalidStatus"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidTimeout, "InvalidTimeout"},
	{ErrInvalidWorkLink, "InvalidWorkLink"},
	{ErrWorkLinkTooLong, "WorkLinkTooLong"},
	{ErrEscrowAlreadyComplete, "EscrowAlreadyComplete"},
	{ErrEscrowExists, "EscrowExists"},
	{ErrEscrowNotFound, "EscrowNotFound"},
	{ErrBalanceOverflow, "BalanceOverflow"},
	{common.ErrModulePaused, "ModulePaused"},
}

// ErrorKind names the taxonomy entry err belongs to, or "Internal".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
