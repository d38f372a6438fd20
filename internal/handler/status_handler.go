// Package handler は状態確認用のHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"dmcs/internal/domain"
	"dmcs/internal/usecase"
	"dmcs/pkg/httputil"
)

const defaultHistoryLimit = 50

// ProjectReader はプロジェクト・環境の参照のインターフェース。
type ProjectReader interface {
	ListProjects(ctx context.Context) ([]string, error)
	ListEnvironments(ctx context.Context, project string) ([]string, error)
}

// MigrationReader は適用状態・実行履歴の参照のインターフェース。
type MigrationReader interface {
	Status(ctx context.Context, target usecase.Target) ([]*domain.Migration, error)
	History(ctx context.Context, target usecase.Target, limit int) ([]*domain.RunRecord, error)
}

// StatusHandler は読み取り専用の状態APIを提供する。
type StatusHandler struct {
	projects   ProjectReader
	migrations MigrationReader
}

// NewStatusHandler は新しいStatusHandlerを生成する。
func NewStatusHandler(projects ProjectReader, migrations MigrationReader) *StatusHandler {
	return &StatusHandler{projects: projects, migrations: migrations}
}

// ProjectListResponse はプロジェクト一覧のレスポンス形式。
type ProjectListResponse struct {
	Projects []string `json:"projects"`
}

// EnvironmentListResponse は環境一覧のレスポンス形式。
type EnvironmentListResponse struct {
	Project      string   `json:"project"`
	Environments []string `json:"environments"`
}

// MigrationResponse はマイグレーション一件のレスポンス形式。
type MigrationResponse struct {
	File      string `json:"file"`
	Version   string `json:"version,omitempty"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	AppliedAt string `json:"applied_at,omitempty"`
}

// MigrationListResponse は適用状態のレスポンス形式。
type MigrationListResponse struct {
	Project     string              `json:"project"`
	Environment string              `json:"environment"`
	Migrations  []MigrationResponse `json:"migrations"`
}

// RunResponse は実行記録のレスポンス形式。
type RunResponse struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	File       string `json:"file"`
	Entrypoint string `json:"entrypoint"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// RunListResponse は実行履歴のレスポンス形式。
type RunListResponse struct {
	Project     string        `json:"project"`
	Environment string        `json:"environment"`
	Runs        []RunResponse `json:"runs"`
}

// Healthz は死活監視用のエンドポイント。
func (h *StatusHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListProjects はプロジェクト一覧を返す。
func (h *StatusHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	names, err := h.projects.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ProjectListResponse{Projects: names})
}

// ListEnvironments はプロジェクトの環境一覧を返す。
func (h *StatusHandler) ListEnvironments(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	envs, err := h.projects.ListEnvironments(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, EnvironmentListResponse{Project: project, Environments: envs})
}

// ListMigrations は環境の適用状態を返す。
func (h *StatusHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	target := targetFrom(r)
	migrations, err := h.migrations.Status(r.Context(), target)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := MigrationListResponse{
		Project:     target.Project,
		Environment: target.Environment,
		Migrations:  make([]MigrationResponse, 0, len(migrations)),
	}
	for _, m := range migrations {
		item := MigrationResponse{
			File:    m.File,
			Version: m.Version,
			Name:    m.Name,
			Status:  string(m.Status),
		}
		if m.AppliedAt != nil {
			item.AppliedAt = m.AppliedAt.Format(time.RFC3339)
		}
		resp.Migrations = append(resp.Migrations, item)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// ListRuns は環境の実行履歴を新しい順に返す。
func (h *StatusHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			httputil.Error(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	target := targetFrom(r)
	records, err := h.migrations.History(r.Context(), target, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := RunListResponse{
		Project:     target.Project,
		Environment: target.Environment,
		Runs:        make([]RunResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Runs = append(resp.Runs, RunResponse{
			ID:         rec.ID,
			RunID:      rec.RunID,
			File:       rec.File,
			Entrypoint: string(rec.Entrypoint),
			Status:     string(rec.Status),
			Error:      rec.Error,
			DurationMs: rec.Duration.Milliseconds(),
			CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		})
	}
	httputil.JSON(w, http.StatusOK, resp)
}

func targetFrom(r *http.Request) usecase.Target {
	return usecase.Target{
		Project:     chi.URLParam(r, "project"),
		Environment: chi.URLParam(r, "env"),
	}
}

// writeError はドメインエラーをHTTPステータスに変換して返す。
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrProjectNotFound):
		httputil.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrEnvironmentNotFound):
		httputil.Error(w, http.StatusNotFound, "ENVIRONMENT_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrDirectoryNotFound):
		httputil.Error(w, http.StatusNotFound, "MIGRATIONS_DIR_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrNothingSelected):
		httputil.Error(w, http.StatusBadRequest, "NOTHING_SELECTED", err.Error())
	case errors.Is(err, domain.ErrConfigNotFound):
		httputil.Error(w, http.StatusServiceUnavailable, "NOT_INITIALIZED", "state document not found")
	case errors.Is(err, domain.ErrHistoryDisabled):
		httputil.Error(w, http.StatusNotImplemented, "HISTORY_DISABLED", "run history is not configured")
	case errors.Is(err, domain.ErrConfigParse), errors.Is(err, domain.ErrUnsupportedDocument):
		httputil.Error(w, http.StatusInternalServerError, "INVALID_STATE_DOCUMENT", "state document cannot be read")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
