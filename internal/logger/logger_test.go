package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Envs(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker", "test"} {
		t.Run(env, func(t *testing.T) {
			l, err := NewLogger(env)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l == nil {
				t.Fatal("nil logger")
			}
		})
	}
}

func TestNewLogger_TestEnvIsQuiet(t *testing.T) {
	l, err := NewLogger("test")
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("test env should not log info")
	}
}

func TestNewLogger_Errors(t *testing.T) {
	if _, err := NewLogger("staging"); err == nil {
		t.Error("expected error for unknown env")
	}
	if _, err := NewLogger("local", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "debug")
	if err != nil {
		t.Fatal(err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be enabled")
	}
}

func TestFromContext_Fallback(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected nop logger")
	}
}

func TestWith_AddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core))
	ctx = With(ctx, zap.String("request_id", "r-1"))

	FromContext(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "r-1" {
		t.Errorf("request_id = %v", got)
	}
}
