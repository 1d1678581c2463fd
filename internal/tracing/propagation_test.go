package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-abc")
	ctx = WithSessionKey(ctx, "session-xyz")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger = PropagateToLogger(ctx, logger)
	logger.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "trace-abc") {
		t.Errorf("Expected trace ID in log output, got %s", out)
	}
	if !strings.Contains(out, "session-xyz") {
		t.Errorf("Expected session key in log output, got %s", out)
	}
}

func TestPropagateToLoggerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger = PropagateToLogger(context.Background(), logger)
	logger.Info().Msg("hello")

	out := buf.String()
	if strings.Contains(out, "trace_id") {
		t.Errorf("Expected no trace_id field, got %s", out)
	}
}

func TestMergeContextPrefersTarget(t *testing.T) {
	target := WithTraceID(context.Background(), "target-trace")
	source := WithTraceID(context.Background(), "source-trace")
	source = WithSessionKey(source, "source-session")

	merged := MergeContext(target, source)

	if got := GetTraceID(merged); got != "target-trace" {
		t.Errorf("Expected target trace ID to win, got %s", got)
	}
	if got := GetSessionKey(merged); got != "source-session" {
		t.Errorf("Expected session key from source, got %s", got)
	}
}

func TestCloneContext(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithOperation(ctx, "search")

	clone := CloneContext(ctx)

	if got := GetTraceID(clone); got != "trace-1" {
		t.Errorf("Expected cloned trace ID, got %s", got)
	}
	if got := GetOperation(clone); got != "search" {
		t.Errorf("Expected cloned operation, got %s", got)
	}
}
