package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWithOptionsEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := SetupWithOptions("escrowd", "test", Options{Output: &buf, Level: "debug"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Debug("escrow operation committed", MaskField("payer", "wesc1abc"), slog.String("operation", "fund"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "escrow operation committed" {
		t.Fatalf("unexpected message: %v", line["message"])
	}
	if line["severity"] != "DEBUG" {
		t.Fatalf("unexpected severity: %v", line["severity"])
	}
	if line["service"] != "escrowd" || line["env"] != "test" {
		t.Fatalf("missing service attributes: %v", line)
	}
	if line["payer"] != RedactedValue {
		t.Fatalf("payer must be redacted, got %v", line["payer"])
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", line)
	}
}

func TestSetupWithOptionsFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := SetupWithOptions("escrowd", "", Options{Output: &buf, Level: "warn"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestSetupWithOptionsWritesRotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "escrowd.log")
	logger, err := SetupWithOptions("escrowd", "", Options{Output: &buf, File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Info("to disk")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to disk") {
		t.Fatalf("log file missing line: %s", data)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := SetupWithOptions("escrowd", "", Options{Level: "loud"}); err == nil {
		t.Fatalf("expected setup to fail for unknown level")
	}
}

func TestMaskFieldHonoursAllowlist(t *testing.T) {
	if got := MaskField("Request-ID", "abc"); got.Value.String() != "abc" {
		t.Fatalf("normalized allowlist key was masked: %v", got)
	}
	if got := MaskField("reason", "InvalidStatus"); got.Value.String() != "InvalidStatus" {
		t.Fatalf("allowlisted key was masked: %v", got)
	}
	if got := MaskField("caller", "wesc1xyz"); got.Value.String() != RedactedValue {
		t.Fatalf("caller should be masked: %v", got)
	}
	if got := MaskField("caller", " "); got.Value.String() != " " {
		t.Fatalf("empty values should pass through: %v", got)
	}
	if MaskValue("secret") != RedactedValue || MaskValue("") != "" {
		t.Fatalf("unexpected MaskValue behaviour")
	}
}

func TestHandlerRedactsSecretKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := SetupWithOptions("escrowd", "", Options{Output: &buf})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Info("admin call",
		slog.String("Authorization", "Bearer abc.def"),
		slog.String("admin_secret", "hunter2"),
		slog.String("subject", "ops"),
	)
	out := buf.String()
	if strings.Contains(out, "abc.def") || strings.Contains(out, "hunter2") {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, `"subject":"ops"`) {
		t.Fatalf("ordinary attribute missing: %s", out)
	}
}
