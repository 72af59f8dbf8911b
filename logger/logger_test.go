package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_NilConfig(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) failed: %v", err)
	}
	if l == nil {
		t.Fatal("New(nil) returned nil logger")
	}
}

func TestNew_PartialConfigDoesNotMutateInput(t *testing.T) {
	cfg := &Config{Level: "debug"}
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New with partial config failed: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
	if cfg.Encoding != "" || cfg.OutputPaths != nil {
		t.Fatalf("input config was modified: %+v", cfg)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNew_InvalidEncoding(t *testing.T) {
	if _, err := New(&Config{Encoding: "xml"}); err == nil {
		t.Fatal("expected error for invalid encoding")
	}
}
