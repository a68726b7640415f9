package rpc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"workescrow/core/eventlog"
	"workescrow/core/types"
	"workescrow/crypto"
	"workescrow/native/escrow"
)

type escrowKeyParams struct {
	Payer string `json:"payer"`
	Payee string `json:"payee"`
}

type escrowCreateParams struct {
	Payer       string `json:"payer"`
	Payee       string `json:"payee"`
	Amount      string `json:"amount"`
	TimeoutDays int64  `json:"timeoutDays"`
}

// timeoutDays narrows the wire value for the engine. Values that cannot fit
// a uint8 become zero, which the engine rejects as an invalid timeout after
// its authorization and existence checks.
func (p escrowCreateParams) timeoutDays() uint8 {
	if p.TimeoutDays < 0 || p.TimeoutDays > math.MaxUint8 {
		return 0
	}
	return uint8(p.TimeoutDays)
}

type escrowSubmitParams struct {
	Payer         string `json:"payer"`
	Payee         string `json:"payee"`
	WorkReference string `json:"workReference"`
}

type escrowListParams struct {
	Party string `json:"party"`
}

type escrowEventsParams struct {
	Payer string `json:"payer,omitempty"`
	Payee string `json:"payee,omitempty"`
	After int64  `json:"after,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// EscrowJSON is the wire form of a record.
type EscrowJSON struct {
	ID             string `json:"id"`
	Payer          string `json:"payer"`
	Payee          string `json:"payee"`
	Amount         string `json:"amount"`
	Status         string `json:"status"`
	WorkReference  string `json:"workReference,omitempty"`
	TimeoutDays    uint8  `json:"timeoutDays"`
	RefundDeadline int64  `json:"refundDeadline,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	FundedAt       int64  `json:"fundedAt,omitempty"`
	SubmittedAt    int64  `json:"submittedAt,omitempty"`
	ApprovedAt     int64  `json:"approvedAt,omitempty"`
	CompletedAt    int64  `json:"completedAt,omitempty"`
	DisputedAt     int64  `json:"disputedAt,omitempty"`
	RefundedAt     int64  `json:"refundedAt,omitempty"`
}

// EventJSON is the wire form of a journaled event.
type EventJSON struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func formatEscrow(esc *escrow.Escrow) (EscrowJSON, error) {
	custody, err := esc.CustodyAddress()
	if err != nil {
		return EscrowJSON{}, err
	}
	out := EscrowJSON{
		ID:            crypto.CustodyAddress(custody).String(),
		Payer:         crypto.AccountAddress(esc.Payer).String(),
		Payee:         crypto.AccountAddress(esc.Payee).String(),
		Amount:        strconv.FormatUint(esc.Amount, 10),
		Status:        esc.Status.String(),
		WorkReference: esc.WorkReference,
		TimeoutDays:   esc.TimeoutDays,
		CreatedAt:     esc.CreatedAt,
		FundedAt:      esc.FundedAt,
		SubmittedAt:   esc.SubmittedAt,
		ApprovedAt:    esc.ApprovedAt,
		CompletedAt:   esc.CompletedAt,
		DisputedAt:    esc.DisputedAt,
		RefundedAt:    esc.RefundedAt,
	}
	if esc.FundedAt > 0 {
		if deadline, err := escrow.RefundDeadline(esc.FundedAt, esc.TimeoutDays); err == nil {
			out.RefundDeadline = deadline
		}
	}
	return out, nil
}

func formatRecord(rec eventlog.Record) EventJSON {
	evt := rec.Event
	if evt == nil {
		evt = &types.Event{}
	}
	return EventJSON{
		Sequence:   rec.Sequence,
		Type:       evt.Type,
		Attributes: evt.Attributes,
		CreatedAt:  rec.CreatedAt.Unix(),
	}
}

func parseKey(payer, payee string) (escrow.Key, error) {
	p, err := parseAccount("payer", payer)
	if err != nil {
		return escrow.Key{}, err
	}
	q, err := parseAccount("payee", payee)
	if err != nil {
		return escrow.Key{}, err
	}
	return escrow.Key{Payer: p, Payee: q}, nil
}

func parseAccount(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.ParseAccount(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}

func parseAmount(value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("amount required")
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	return amount, nil
}
