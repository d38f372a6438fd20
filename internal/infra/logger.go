package infra

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"dmcs/config"
	"dmcs/internal/middleware"
)

// TraceHandler はマイグレーション実行IDとトレース情報をログに付与するslogハンドラ。
type TraceHandler struct {
	next         slog.Handler
	cloudProject string
	tracing      bool
}

// NewTraceHandler はトレース情報付きのslogハンドラを生成する。
func NewTraceHandler(next slog.Handler, cfg *config.Config) *TraceHandler {
	return &TraceHandler{
		next:         next,
		cloudProject: cfg.GoogleCloudProject,
		tracing:      cfg.OtelEnabled,
	}
}

// Enabled はハンドラがログを処理するかどうかを返す。
func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle はログレコードに run_id とトレース情報を付与して次のハンドラに渡す。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if runID, ok := middleware.RunIDFrom(ctx); ok && !hasAttr(r, "run_id") {
		r.AddAttrs(slog.String("run_id", runID))
	}
	if h.tracing {
		r.AddAttrs(h.traceAttrs(trace.SpanContextFromContext(ctx))...)
	}
	return h.next.Handle(ctx, r)
}

// traceAttrs はスパンのIDを返す。GOOGLE_CLOUD_PROJECT があればCloud Logging連携用のキーも付ける。
func (h *TraceHandler) traceAttrs(sc trace.SpanContext) []slog.Attr {
	if !sc.IsValid() {
		return nil
	}
	traceID, spanID := sc.TraceID().String(), sc.SpanID().String()
	attrs := []slog.Attr{
		slog.String("trace", traceID),
		slog.String("spanId", spanID),
		slog.Bool("traceSampled", sc.IsSampled()),
	}
	if h.cloudProject != "" {
		attrs = append(attrs,
			slog.String("logging.googleapis.com/trace", "projects/"+h.cloudProject+"/traces/"+traceID),
			slog.String("logging.googleapis.com/spanId", spanID),
		)
	}
	return attrs
}

func hasAttr(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = a.Key == key
		return !found
	})
	return found
}

// WithAttrs は属性を追加した新しいハンドラを返す。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	return &clone
}

// WithGroup はグループを追加した新しいハンドラを返す。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

// ParseLevel はLOG_LEVELの文字列をslog.Levelに変換する。不明な値はWARN。
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// SetupLogger はトレース情報付きのグローバルロガーを設定する。
// サーバーはJSON、CLIは人が読むテキスト形式で出力する。
func SetupLogger(cfg *config.Config, w io.Writer, jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}
	var base slog.Handler
	if jsonFormat {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(NewTraceHandler(base, cfg))
	slog.SetDefault(logger)
	return logger
}
