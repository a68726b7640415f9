package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"workescrow/core/events"
	"workescrow/core/types"
	"workescrow/crypto"
	"workescrow/native/common"
	"workescrow/observability/logging"
	"workescrow/observability/metrics"
)

// ModuleName is the pause key guarding every mutating escrow operation.
const ModuleName = "escrow"

var errNilState = errors.New("escrow engine: state not configured")

// State is the view of records and balances inside one atomic unit. Writes
// made through it become visible only when the enclosing unit commits.
type State interface {
	Ledger
	EscrowGet(key Key) (*Escrow, error)
	// EscrowCreate reserves storage for a new record and indexes both parties.
	EscrowCreate(*Escrow) error
	EscrowPut(*Escrow) error
	EscrowKeysByParty(party [20]byte) ([]Key, error)
}

// Backend runs atomic units against the record store. A unit whose function
// returns an error (or panics) leaves no trace.
type Backend interface {
	View(func(State) error) error
	Update(func(State) error) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine drives escrow records through their lifecycle. Each operation checks
// the caller, then the status, then its inputs, and finally moves value and
// commits the new status as a single unit on the backend.
type Engine struct {
	backend Backend
	emitter events.Emitter
	clock   *MonotonicClock
	pauses  common.PauseView
	locks   keyedMutex
	vault   Vault
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.EscrowMetrics
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine(backend Backend) *Engine {
	return &Engine{
		backend: backend,
		emitter: events.NoopEmitter{},
		clock:   NewMonotonicClock(nil),
		logger:  slog.Default(),
		tracer:  otel.Tracer("workescrow/native/escrow"),
		metrics: metrics.Escrow(),
	}
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps. The source is wrapped so that
// it never runs backwards.
func (e *Engine) SetNowFunc(now func() int64) {
	e.clock = NewMonotonicClock(now)
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses installs the view consulted before every mutating operation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetLogger replaces the engine logger. A nil logger falls back to
// slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
	e.metrics.IncEvent(event.Type)
}

// Create allocates a Pending record for key. Only key.Payer may create it.
func (e *Engine) Create(ctx context.Context, caller [20]byte, key Key, amount uint64, timeoutDays uint8) (result *Escrow, err error) {
	op := OpCreate
	_, done := e.begin(ctx, op, caller, key)
	defer func() {
		if r := recover(); r != nil {
			done(fmt.Errorf("escrow: %s aborted: %v", op, r))
			panic(r)
		}
		done(err)
	}()

	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if e.backend == nil {
		return nil, errNilState
	}
	if !Authorized(OpCreate, &Escrow{Payer: key.Payer, Payee: key.Payee}, caller) {
		return nil, fmt.Errorf("%w: %s requires the payer", ErrUnauthorized, OpCreate)
	}

	unlock := e.locks.Lock(key)
	defer unlock()
	now := e.clock.Now()

	var created *Escrow
	err = e.backend.Update(func(st State) error {
		if _, err := st.EscrowGet(key); err == nil {
			return ErrEscrowExists
		} else if !errors.Is(err, ErrEscrowNotFound) {
			return err
		}
		if amount == 0 {
			return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
		}
		if err := ValidateTimeoutDays(timeoutDays); err != nil {
			return err
		}
		_, bump, err := crypto.FindCustodyAddress(key.Payer, key.Payee)
		if err != nil {
			return err
		}
		esc := &Escrow{
			Payer:       key.Payer,
			Payee:       key.Payee,
			Amount:      amount,
			Status:      StatusPending,
			TimeoutDays: timeoutDays,
			Bump:        bump,
			CreatedAt:   now,
		}
		if err := st.EscrowCreate(esc); err != nil {
			return err
		}
		created = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(created))
	return created.Clone(), nil
}

// Fund moves the escrow amount from the payer into its custody slot.
func (e *Engine) Fund(ctx context.Context, caller [20]byte, key Key) (*Escrow, error) {
	return e.transition(ctx, OpFund, caller, key, func(st State, esc *Escrow, now int64) error {
		custody, err := esc.CustodyAddress()
		if err != nil {
			return err
		}
		if err := e.vault.Deposit(st, esc.Payer, custody, esc.Amount); err != nil {
			return err
		}
		esc.Status = StatusFunded
		esc.FundedAt = now
		return nil
	})
}

// Submit records the payee's work reference.
func (e *Engine) Submit(ctx context.Context, caller [20]byte, key Key, workReference string) (*Escrow, error) {
	return e.transition(ctx, OpSubmit, caller, key, func(_ State, esc *Escrow, now int64) error {
		ref, err := NormalizeWorkReference(workReference)
		if err != nil {
			return err
		}
		esc.WorkReference = ref
		esc.Status = StatusSubmitted
		esc.SubmittedAt = now
		return nil
	})
}

// Approve accepts the submitted work. Approval is final: it cannot be
// disputed afterwards.
func (e *Engine) Approve(ctx context.Context, caller [20]byte, key Key) (*Escrow, error) {
	return e.transition(ctx, OpApprove, caller, key, func(_ State, esc *Escrow, now int64) error {
		esc.Status = StatusApproved
		esc.ApprovedAt = now
		return nil
	})
}

// Release pays the escrowed amount out of custody to the payee.
func (e *Engine) Release(ctx context.Context, caller [20]byte, key Key) (*Escrow, error) {
	return e.transition(ctx, OpRelease, caller, key, func(st State, esc *Escrow, now int64) error {
		signer, err := crypto.SignAsCustody(esc.Payer, esc.Payee, esc.Bump)
		if err != nil {
			return err
		}
		if err := e.vault.Release(st, signer, esc.Payee, esc.Amount); err != nil {
			return err
		}
		esc.Status = StatusComplete
		esc.CompletedAt = now
		return nil
	})
}

// Dispute flags a funded or submitted escrow.
func (e *Engine) Dispute(ctx context.Context, caller [20]byte, key Key) (*Escrow, error) {
	return e.transition(ctx, OpDispute, caller, key, func(_ State, esc *Escrow, now int64) error {
		esc.Status = StatusDisputed
		esc.DisputedAt = now
		return nil
	})
}

// Refund returns the escrowed amount to the payer. A disputed escrow can
// always be refunded; a funded one only once its timeout has elapsed.
func (e *Engine) Refund(ctx context.Context, caller [20]byte, key Key) (*Escrow, error) {
	return e.transition(ctx, OpRefund, caller, key, func(st State, esc *Escrow, now int64) error {
		if esc.Status == StatusFunded {
			elapsed, err := TimeoutElapsed(esc.FundedAt, esc.TimeoutDays, now)
			if err != nil {
				return err
			}
			if !elapsed {
				return fmt.Errorf("%w: refund timeout has not elapsed", statusError(OpRefund, esc.Status))
			}
		}
		signer, err := crypto.SignAsCustody(esc.Payer, esc.Payee, esc.Bump)
		if err != nil {
			return err
		}
		if err := e.vault.Return(st, signer, esc.Payer, esc.Amount); err != nil {
			return err
		}
		esc.Status = StatusRefunded
		esc.RefundedAt = now
		return nil
	})
}

// Get returns a copy of the record for key.
func (e *Engine) Get(key Key) (*Escrow, error) {
	if e == nil || e.backend == nil {
		return nil, errNilState
	}
	var out *Escrow
	err := e.backend.View(func(st State) error {
		esc, err := st.EscrowGet(key)
		if err != nil {
			return err
		}
		out = esc.Clone()
		return nil
	})
	return out, err
}

// ListByParty returns every record in which party is payer or payee, in
// creation order.
func (e *Engine) ListByParty(party [20]byte) ([]*Escrow, error) {
	if e == nil || e.backend == nil {
		return nil, errNilState
	}
	var out []*Escrow
	err := e.backend.View(func(st State) error {
		keys, err := st.EscrowKeysByParty(party)
		if err != nil {
			return err
		}
		out = make([]*Escrow, 0, len(keys))
		for _, key := range keys {
			esc, err := st.EscrowGet(key)
			if err != nil {
				return fmt.Errorf("escrow: index entry %s: %w", key, err)
			}
			out = append(out, esc.Clone())
		}
		return nil
	})
	return out, err
}

// transition runs one post-creation operation. apply receives a copy of the
// stored record, moves value using the copy's untouched fields and only then
// writes the new status; the copy is persisted if apply succeeds.
func (e *Engine) transition(ctx context.Context, op Operation, caller [20]byte, key Key, apply func(State, *Escrow, int64) error) (result *Escrow, err error) {
	_, done := e.begin(ctx, op, caller, key)
	defer func() {
		if r := recover(); r != nil {
			done(fmt.Errorf("escrow: %s aborted: %v", op, r))
			panic(r)
		}
		done(err)
	}()

	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if e.backend == nil {
		return nil, errNilState
	}

	unlock := e.locks.Lock(key)
	defer unlock()
	now := e.clock.Now()

	var updated *Escrow
	err = e.backend.Update(func(st State) error {
		current, err := st.EscrowGet(key)
		if err != nil {
			return err
		}
		if !Authorized(op, current, caller) {
			return fmt.Errorf("%w: %s requires the %s", ErrUnauthorized, op, RequiredRole(op))
		}
		if !CanTransition(op, current.Status) {
			return statusError(op, current.Status)
		}
		next := current.Clone()
		if err := apply(st, next, now); err != nil {
			return err
		}
		if err := st.EscrowPut(next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(eventFor(op, updated))
	return updated.Clone(), nil
}

func (e *Engine) begin(ctx context.Context, op Operation, caller [20]byte, key Key) (context.Context, func(error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "escrow."+op.String(), trace.WithAttributes(
		attribute.String("escrow.operation", op.String()),
	))
	return ctx, func(err error) {
		kind := ErrorKind(err)
		e.metrics.ObserveOperation(op.String(), kind, time.Since(start))
		attrs := []slog.Attr{
			slog.String("operation", op.String()),
			logging.MaskField("caller", crypto.AccountAddress(caller).String()),
			logging.MaskField("payer", crypto.AccountAddress(key.Payer).String()),
			logging.MaskField("payee", crypto.AccountAddress(key.Payee).String()),
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
			attrs = append(attrs, slog.String("reason", kind), slog.String("error", err.Error()))
			e.logger.LogAttrs(ctx, slog.LevelWarn, "escrow operation rejected", attrs...)
		} else {
			e.logger.LogAttrs(ctx, slog.LevelInfo, "escrow operation committed", attrs...)
		}
		span.End()
	}
}
