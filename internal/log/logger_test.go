package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentBudget, Output: &buf})

	logger.Info("hello")
	assert.Contains(t, buf.String(), "component=budget")

	buf.Reset()
	logger.WithComponent(ComponentAuth).Info("login")
	assert.Contains(t, buf.String(), "component=auth")
	assert.Equal(t, ComponentBudget, logger.Component())
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())

	logger := New(Config{Component: ComponentHTTP, Output: &bytes.Buffer{}})
	ctx := NewContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Output: &buf}))
	ctx := context.Background()

	sl.LogBudgetChanged(ctx, 7, 3, "transaction", OpCreate)
	out := buf.String()
	assert.Contains(t, out, "budget_id=3")
	assert.Contains(t, out, "user_id=7")
	assert.Contains(t, out, "change_kind=transaction")

	buf.Reset()
	r := httptest.NewRequest("GET", "/budget/3", nil)
	sl.LogHTTPEnd(ctx, r, 404, 12, "127.0.0.1")
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	sl.LogError(ctx, "boom", errors.New("disk full"), OpUpdate, nil)
	assert.Contains(t, buf.String(), `error="disk full"`)
}
