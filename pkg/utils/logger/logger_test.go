package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dsajudge/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFieldsAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	defer Use(nil)

	ctx := context.WithValue(context.Background(), contextkey.TraceID, "trace-1")
	ctx = context.WithValue(ctx, contextkey.RunID, "run-7")
	Info(ctx, "run finished", zap.Int("cases", 3))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != "trace-1" {
		t.Fatalf("unexpected trace_id: %v", fields["trace_id"])
	}
	if fields["run_id"] != "run-7" {
		t.Fatalf("unexpected run_id: %v", fields["run_id"])
	}
	if _, ok := fields["user_id"]; ok {
		t.Fatalf("user_id should be absent")
	}
}

func TestUntypedKeysIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	defer Use(nil)

	//nolint:staticcheck
	ctx := context.WithValue(context.Background(), "trace_id", "plain")
	Warn(ctx, "warn")

	if _, ok := logs.All()[0].ContextMap()["trace_id"]; ok {
		t.Fatalf("string keys must not be read")
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestNilGlobalIsSafe(t *testing.T) {
	Use(nil)
	Info(context.Background(), "dropped")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func TestServiceFieldWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := NewLogger(Config{Level: "info", Format: "json", OutputPath: path, Service: "sandbox-worker"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.WithContext(context.Background()).Info("started")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"service":"sandbox-worker"`) {
		t.Fatalf("service field missing: %s", data)
	}
}
