// Package middleware はHTTPミドルウェアと操作ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type runIDKey struct{}

// WithRunID はコマンド実行のIDをコンテキストに設定する。ログ出力時に run_id として付与される。
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom はコンテキストのコマンド実行IDを返す。
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// OperationLog は操作ログの構造体。
type OperationLog struct {
	Operation   string `json:"operation"`
	Project     string `json:"project"`
	Environment string `json:"environment"`
	File        string `json:"file,omitempty"`
	RunID       string `json:"run_id,omitempty"`
	Result      string `json:"result"`
	Timestamp   string `json:"timestamp"`
}

// WriteOperationLog はユニットの適用・取り消しの結果を記録する。
func WriteOperationLog(ctx context.Context, entry OperationLog) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	level := slog.LevelInfo
	if entry.Result != "success" {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "migration operation completed",
		"operation", entry.Operation,
		"project", entry.Project,
		"environment", entry.Environment,
		"file", entry.File,
		"run_id", entry.RunID,
		"result", entry.Result,
		"timestamp", entry.Timestamp,
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLog はリクエストごとにメソッド・パス・ステータス・所要時間を出力する。
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.InfoContext(r.Context(), "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
