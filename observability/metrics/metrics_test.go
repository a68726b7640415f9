package metrics

import (
	"testing"
	"time"
)

func TestEscrowOperationCounts(t *testing.T) {
	m := Escrow()
	if Escrow() != m {
		t.Fatalf("expected a single registry")
	}
	before := m.OperationCount("fund", "ok")
	m.ObserveOperation("fund", "", time.Millisecond)
	m.ObserveOperation("fund", "InsufficientFunds", time.Millisecond)
	if got := m.OperationCount("fund", "ok") - before; got != 1 {
		t.Fatalf("expected one ok fund, got %v", got)
	}
	m.ObserveOperation(" ", "ok", 0)
	if m.OperationCount("unknown", "ok") < 1 {
		t.Fatalf("blank operation should be counted as unknown")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var e *EscrowMetrics
	e.ObserveOperation("create", "ok", time.Second)
	e.IncEvent("escrow.created")
	if e.OperationCount("create", "ok") != 0 {
		t.Fatalf("nil registry should report zero")
	}
	var r *RPCMetrics
	r.Observe("/", "POST", 200, time.Second)
	r.IncThrottle()
}

func TestRPCThrottleCounter(t *testing.T) {
	m := RPC()
	before := counterValue(m.throttles)
	m.IncThrottle()
	m.Observe("/", "POST", 429, time.Millisecond)
	if got := counterValue(m.throttles) - before; got != 1 {
		t.Fatalf("expected one throttle, got %v", got)
	}
}
