package events

import (
	"strconv"

	"workescrow/core/types"
	"workescrow/crypto"
)

const (
	// TypeLedgerMinted is emitted whenever an operator credits new balance.
	TypeLedgerMinted = "ledger.minted"
)

type LedgerMinted struct {
	Recipient [20]byte
	Amount    uint64
	Balance   uint64
	Reference string
}

func (LedgerMinted) EventType() string { return TypeLedgerMinted }

func (e LedgerMinted) Event() *types.Event {
	attrs := map[string]string{
		"recipient": crypto.AccountAddress(e.Recipient).String(),
		"amount":    strconv.FormatUint(e.Amount, 10),
		"balance":   strconv.FormatUint(e.Balance, 10),
	}
	if e.Reference != "" {
		attrs["reference"] = e.Reference
	}
	return &types.Event{Type: TypeLedgerMinted, Attributes: attrs}
}
