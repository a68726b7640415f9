package escrow

import (
	"encoding/hex"
	"strconv"

	"workescrow/core/types"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowFunded    = "escrow.funded"
	EventTypeEscrowSubmitted = "escrow.submitted"
	EventTypeEscrowApproved  = "escrow.approved"
	EventTypeEscrowReleased  = "escrow.released"
	EventTypeEscrowDisputed  = "escrow.disputed"
	EventTypeEscrowRefunded  = "escrow.refunded"
)

var eventTypes = map[Operation]string{
	OpCreate:  EventTypeEscrowCreated,
	OpFund:    EventTypeEscrowFunded,
	OpSubmit:  EventTypeEscrowSubmitted,
	OpApprove: EventTypeEscrowApproved,
	OpRelease: EventTypeEscrowReleased,
	OpDispute: EventTypeEscrowDisputed,
	OpRefund:  EventTypeEscrowRefunded,
}

// EventType returns the event type emitted when op commits.
func EventType(op Operation) string { return eventTypes[op] }

// NewCreatedEvent returns the canonical event payload for a newly created
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowCreated, e, e.CreatedAt)
	evt.Attributes["timeoutDays"] = strconv.FormatUint(uint64(e.TimeoutDays), 10)
	return evt
}

// NewFundedEvent is emitted once the payer's value sits in custody.
func NewFundedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowFunded, e, e.FundedAt)
}

// NewSubmittedEvent carries the payee's work reference.
func NewSubmittedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowSubmitted, e, e.SubmittedAt)
	evt.Attributes["workReference"] = e.WorkReference
	return evt
}

func NewApprovedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowApproved, e, e.ApprovedAt)
}

// NewReleasedEvent returns the canonical event payload for a release of escrow
// funds to the payee.
func NewReleasedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowReleased, e, e.CompletedAt)
}

func NewDisputedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowDisputed, e, e.DisputedAt)
}

// NewRefundedEvent returns the canonical event payload for an escrow refund to
// the payer.
func NewRefundedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowRefunded, e, e.RefundedAt)
}

func eventFor(op Operation, e *Escrow) *types.Event {
	switch op {
	case OpCreate:
		return NewCreatedEvent(e)
	case OpFund:
		return NewFundedEvent(e)
	case OpSubmit:
		return NewSubmittedEvent(e)
	case OpApprove:
		return NewApprovedEvent(e)
	case OpRelease:
		return NewReleasedEvent(e)
	case OpDispute:
		return NewDisputedEvent(e)
	case OpRefund:
		return NewRefundedEvent(e)
	}
	return nil
}

func newEscrowEvent(eventType string, e *Escrow, at int64) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	if custody, err := e.CustodyAddress(); err == nil {
		attrs["id"] = hex.EncodeToString(custody[:])
	}
	attrs["payer"] = hex.EncodeToString(e.Payer[:])
	attrs["payee"] = hex.EncodeToString(e.Payee[:])
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["status"] = e.Status.String()
	attrs["timestamp"] = strconv.FormatInt(at, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
