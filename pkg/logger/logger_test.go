package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")

	log.Error(ctx, "boom", errors.New("boom"))

	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestLoggerDomainFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "lifecycle", Output: buf})

	ctx := context.Background()
	ctx = log.WithAccountID(ctx, "acct-1")
	ctx = log.WithListingID(ctx, "listing-1")
	ctx = log.WithMatchID(ctx, "match-1")

	log.Info(ctx, "match.completed")

	out := buf.String()
	assert.Contains(t, out, `"account_id":"acct-1"`)
	assert.Contains(t, out, `"listing_id":"listing-1"`)
	assert.Contains(t, out, `"match_id":"match-1"`)
	assert.Contains(t, out, `"service":"lifecycle"`)
}

func TestLoggerWithFieldsDoesNotLeakIntoParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := context.Background()
	_ = log.WithFields(parent, map[string]any{"attempt": 2})

	log.Info(parent, "plain")
	assert.NotContains(t, buf.String(), "attempt")
}

func TestLoggerDebugSuppressedAtInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: buf})

	log.Debug(context.Background(), "hidden")
	require.Empty(t, buf.String())
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	assert.Contains(t, buf.String(), `"stack"`)
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
}

func TestLoggerErrorAddsTypedCode(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: FormatJSON, Output: buf})

	log.Error(context.Background(), "debit failed", pkgerrors.New(pkgerrors.CodeInsufficientBalance, "not enough credits"))
	assert.Contains(t, buf.String(), `"code":"INSUFFICIENT_BALANCE"`)
}

func TestLoggerConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: FormatConsole, Output: buf})

	log.Info(context.Background(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
	assert.Contains(t, buf.String(), "hello")
}
