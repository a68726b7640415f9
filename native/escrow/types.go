package escrow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"workescrow/crypto"
)

// Status represents the lifecycle states of a two-party escrow.
type Status uint8

const (
	StatusPending Status = iota
	StatusFunded
	StatusSubmitted
	StatusApproved
	StatusComplete
	StatusDisputed
	StatusRefunded
)

// Statuses lists every status in declaration order.
var Statuses = []Status{
	StatusPending,
	StatusFunded,
	StatusSubmitted,
	StatusApproved,
	StatusComplete,
	StatusDisputed,
	StatusRefunded,
}

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusFunded:    "funded",
	StatusSubmitted: "submitted",
	StatusApproved:  "approved",
	StatusComplete:  "complete",
	StatusDisputed:  "disputed",
	StatusRefunded:  "refunded",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusRefunded
}

// ParseStatus resolves a status from its lowercase name.
func ParseStatus(name string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for status, candidate := range statusNames {
		if candidate == normalized {
			return status, nil
		}
	}
	return 0, fmt.Errorf("escrow: unknown status %q", name)
}

const (
	// MinTimeoutDays and MaxTimeoutDays bound the refund window fixed at creation.
	MinTimeoutDays = 1
	MaxTimeoutDays = 90
	// MaxWorkReferenceChars caps the number of Unicode scalar values in a work reference.
	MaxWorkReferenceChars = 200
	// MaxWorkReferenceBytes caps the UTF-8 encoded size of a work reference.
	MaxWorkReferenceBytes = 600
)

// Key addresses exactly one escrow record.
type Key struct {
	Payer [20]byte
	Payee [20]byte
}

func (k Key) String() string {
	return crypto.AccountAddress(k.Payer).String() + "/" + crypto.AccountAddress(k.Payee).String()
}

// Escrow is the persisted state of a single payer/payee agreement. Timestamps
// are unix seconds and stay zero until their phase occurs.
type Escrow struct {
	Payer         [20]byte
	Payee         [20]byte
	Amount        uint64
	Status        Status
	WorkReference string
	TimeoutDays   uint8
	Bump          uint8

	CreatedAt   int64
	FundedAt    int64
	SubmittedAt int64
	ApprovedAt  int64
	CompletedAt int64
	DisputedAt  int64
	RefundedAt  int64
}

// Key returns the record key of the escrow.
func (e *Escrow) Key() Key {
	return Key{Payer: e.Payer, Payee: e.Payee}
}

// Clone returns a copy of the escrow so callers can mutate it without
// affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// CustodyAddress re-derives the custody slot holding this escrow's value.
func (e *Escrow) CustodyAddress() ([20]byte, error) {
	return crypto.CreateCustodyAddress(e.Payer, e.Payee, e.Bump)
}

// Validate checks the record invariants that hold in every status.
func (e *Escrow) Validate() error {
	if e == nil {
		return fmt.Errorf("escrow: nil record")
	}
	if e.Amount == 0 {
		return ErrInvalidAmount
	}
	if err := ValidateTimeoutDays(e.TimeoutDays); err != nil {
		return err
	}
	if !e.Status.Valid() {
		return fmt.Errorf("escrow: invalid status %d", e.Status)
	}
	if e.WorkReference != "" {
		if _, err := NormalizeWorkReference(e.WorkReference); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeWorkReference trims surrounding whitespace and enforces both the
// character and byte caps on a submitted work reference.
func NormalizeWorkReference(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", ErrInvalidWorkLink
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidWorkLink)
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxWorkReferenceChars {
		return "", fmt.Errorf("%w: %d characters", ErrWorkLinkTooLong, n)
	}
	if n := len(trimmed); n > MaxWorkReferenceBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrWorkLinkTooLong, n)
	}
	return trimmed, nil
}
