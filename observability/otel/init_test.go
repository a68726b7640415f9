package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = secret ,broken, =empty,x-tenant=escrow")
	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %v", got)
	}
	if got["api-key"] != "secret" || got["x-tenant"] != "escrow" {
		t.Fatalf("unexpected headers: %v", got)
	}
}

func TestInitWithoutExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "escrowd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitValidatesConfig(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
	if _, err := Init(context.Background(), Config{ServiceName: "escrowd", SampleRatio: 2}); err == nil {
		t.Fatalf("expected error for sample ratio above one")
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg := Config{ServiceName: " escrowd "}
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.ServiceName != "escrowd" || cfg.Endpoint != defaultEndpoint {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SampleRatio != 1 || cfg.MetricInterval != defaultMetricInterval {
		t.Fatalf("unexpected sampling defaults: %+v", cfg)
	}
}
