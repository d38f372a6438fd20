package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"dmcs/config"
	"dmcs/internal/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{" ERROR ", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"", slog.LevelWarn},
		{"verbose", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func newJSONLogger(cfg *config.Config) (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	base := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewTraceHandler(base, cfg)), buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestTraceHandler_RunID(t *testing.T) {
	logger, buf := newJSONLogger(&config.Config{})
	ctx := middleware.WithRunID(context.Background(), "run-123")

	logger.InfoContext(ctx, "applied", "file", "1000_init.mjs")
	entry := decodeLine(t, buf)
	if entry["run_id"] != "run-123" {
		t.Errorf("want run_id run-123, got %v", entry["run_id"])
	}
	if _, ok := entry["trace"]; ok {
		t.Error("trace must not be added when tracing is disabled")
	}

	// 明示的に渡した run_id を重複させない
	buf.Reset()
	logger.InfoContext(ctx, "applied", "run_id", "run-123")
	if n := strings.Count(buf.String(), `"run_id"`); n != 1 {
		t.Errorf("want one run_id, got %d: %s", n, buf.String())
	}
}

func TestTraceHandler_TraceAttrs(t *testing.T) {
	logger, buf := newJSONLogger(&config.Config{OtelEnabled: true, GoogleCloudProject: "my-project"})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.With("component", "test").InfoContext(ctx, "hello")
	entry := decodeLine(t, buf)
	if entry["trace"] != traceID.String() || entry["spanId"] != spanID.String() {
		t.Errorf("unexpected trace fields: %v", entry)
	}
	if entry["traceSampled"] != true {
		t.Errorf("want traceSampled true, got %v", entry["traceSampled"])
	}
	if entry["logging.googleapis.com/trace"] != "projects/my-project/traces/"+traceID.String() {
		t.Errorf("unexpected cloud trace: %v", entry["logging.googleapis.com/trace"])
	}
	if entry["component"] != "test" {
		t.Errorf("WithAttrs must be kept, got %v", entry["component"])
	}

	// スパンがない場合は付与しない
	buf.Reset()
	logger.Info("no span")
	if _, ok := decodeLine(t, buf)["trace"]; ok {
		t.Error("trace must not be added without a span")
	}
}
