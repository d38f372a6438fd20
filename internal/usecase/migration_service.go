// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dmcs/internal/domain"
	"dmcs/internal/middleware"
)

var tracer = otel.Tracer("dmcs/internal/usecase")

// StateStore は状態ドキュメントの読み書きのインターフェース。
type StateStore interface {
	Load(ctx context.Context) (*domain.Document, error)
	Save(ctx context.Context, doc *domain.Document) error
}

// MigrationFileRepository はマイグレーションフォルダへのアクセスのインターフェース。
type MigrationFileRepository interface {
	ListMigrationFiles(ctx context.Context, dir string) ([]string, error)
	WriteMigrationFile(ctx context.Context, dir, file string, content []byte) (string, error)
}

// Executor はユニットのエントリポイントを隔離環境で実行するインターフェース。
type Executor interface {
	Execute(ctx context.Context, unit domain.Unit, entry domain.Entrypoint) error
}

// HistoryRepository は実行履歴のインターフェース。
type HistoryRepository interface {
	Record(ctx context.Context, rec *domain.RunRecord) error
	FindByEnvironment(ctx context.Context, project, env string, limit int) ([]*domain.RunRecord, error)
	LastApplied(ctx context.Context, project, env string) (map[string]time.Time, error)
}

// Target は操作対象のプロジェクトと環境。単一プロジェクト形式では Project は無視される。
type Target struct {
	Project     string
	Environment string
}

// RunResult は migrate / rollback 一回分の結果。
type RunResult struct {
	RunID       string
	Project     string
	Environment string
	Entrypoint  domain.Entrypoint
	DryRun      bool
	Planned     []string // 実行予定（ドライランでは実行されるはずだったもの）
	Completed   []string // 実行して状態に反映したもの
	Failed      string   // 失敗したファイル（なければ空）
}

// MigrationService はマイグレーションの適用・取り消しのビジネスロジックを提供する。
type MigrationService struct {
	store      StateStore
	files      MigrationFileRepository
	executor   Executor
	history    HistoryRepository
	reconciler *Reconciler
	layout     Layout
}

// NewMigrationService は新しいMigrationServiceを生成する。historyはnilでもよい。
func NewMigrationService(store StateStore, files MigrationFileRepository, executor Executor, history HistoryRepository, layout Layout) *MigrationService {
	return &MigrationService{
		store:      store,
		files:      files,
		executor:   executor,
		history:    history,
		reconciler: NewReconciler(store),
		layout:     layout,
	}
}

// resolved は読み込んだドキュメント上で解決済みの操作対象。
type resolved struct {
	project string
	env     string
	dir     string
	all     []string
	applied []string
}

func (s *MigrationService) resolve(ctx context.Context, target Target) (*resolved, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	p, err := doc.Project(target.Project)
	if err != nil {
		return nil, err
	}
	if target.Environment == "" {
		return nil, fmt.Errorf("%w: no environment given", domain.ErrNothingSelected)
	}
	applied, err := p.Applied(target.Environment)
	if err != nil {
		return nil, err
	}

	dir := s.layout.MigrationsDir(doc, p)
	all, err := s.files.ListMigrationFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	return &resolved{project: p.Name, env: target.Environment, dir: dir, all: all, applied: applied}, nil
}

// Migrate は未適用のマイグレーションを昇順に一件ずつ適用する。
// 失敗した時点で中断し、それまでに適用したものは記録されたまま残る。
func (s *MigrationService) Migrate(ctx context.Context, target Target, dryRun bool) (*RunResult, error) {
	r, err := s.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	pending := ComputePending(r.all, r.applied)
	return s.run(ctx, r, domain.Up, pending, dryRun)
}

// Rollback は直近に適用されたマイグレーションを steps 件、新しい順に取り消す。
func (s *MigrationService) Rollback(ctx context.Context, target Target, steps int, dryRun bool) (*RunResult, error) {
	r, err := s.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	set, err := ComputeRollbackSet(r.all, r.applied, steps)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, r, domain.Down, set, dryRun)
}

func (s *MigrationService) run(ctx context.Context, r *resolved, entry domain.Entrypoint, files []string, dryRun bool) (*RunResult, error) {
	result := &RunResult{
		RunID:       uuid.NewString(),
		Project:     r.project,
		Environment: r.env,
		Entrypoint:  entry,
		DryRun:      dryRun,
		Planned:     files,
	}
	if dryRun || len(files) == 0 {
		return result, nil
	}

	ctx = middleware.WithRunID(ctx, result.RunID)
	ctx, span := tracer.Start(ctx, "migration.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("dmcs.run_id", result.RunID),
		attribute.String("dmcs.project", r.project),
		attribute.String("dmcs.environment", r.env),
		attribute.String("dmcs.entrypoint", string(entry)),
		attribute.Int("dmcs.planned", len(files)),
	)

	for _, file := range files {
		if err := s.runUnit(ctx, r, result, entry, file); err != nil {
			result.Failed = file
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
		result.Completed = append(result.Completed, file)
	}
	return result, nil
}

// runUnit は一件を実行し、成功した場合のみ状態に反映する。
func (s *MigrationService) runUnit(ctx context.Context, r *resolved, result *RunResult, entry domain.Entrypoint, file string) error {
	unit := domain.NewUnit(r.dir, s.layout.BaseDir(), file)
	op := "MIGRATE"
	if entry == domain.Down {
		op = "ROLLBACK"
	}

	start := time.Now()
	execErr := s.executor.Execute(ctx, unit, entry)
	elapsed := time.Since(start)
	if execErr != nil {
		var me *domain.MigrationError
		if !errors.As(execErr, &me) {
			execErr = domain.NewMigrationError(file, entry, execErr)
		}
	}

	if execErr == nil {
		if entry == domain.Up {
			execErr = s.reconciler.RecordApplied(ctx, r.project, r.env, file)
		} else {
			execErr = s.reconciler.RecordReverted(ctx, r.project, r.env, file)
		}
	}
	// 状態ドキュメントへの反映に失敗した場合も履歴上は失敗とする
	s.recordRun(ctx, result, file, elapsed, execErr)

	log := middleware.OperationLog{
		Operation:   op,
		Project:     r.project,
		Environment: r.env,
		File:        file,
		RunID:       result.RunID,
		Result:      "success",
	}
	if execErr != nil {
		log.Result = "failed"
		slog.ErrorContext(ctx, "migration failed",
			"operation", op,
			"file", file,
			"error", execErr,
		)
	}
	middleware.WriteOperationLog(ctx, log)
	return execErr
}

// recordRun は実行履歴を残す。履歴の保存失敗はマイグレーション自体の結果に影響させない。
func (s *MigrationService) recordRun(ctx context.Context, result *RunResult, file string, d time.Duration, execErr error) {
	if s.history == nil {
		return
	}
	rec := &domain.RunRecord{
		RunID:       result.RunID,
		Project:     result.Project,
		Environment: result.Environment,
		File:        file,
		Entrypoint:  result.Entrypoint,
		Status:      domain.RunStatusSucceeded,
		Duration:    d,
	}
	if execErr != nil {
		rec.Status = domain.RunStatusFailed
		rec.Error = execErr.Error()
	}
	if err := s.history.Record(ctx, rec); err != nil {
		slog.WarnContext(ctx, "failed to record run history",
			"file", file,
			"error", err,
		)
	}
}

// Status はファイルごとの適用状態を返す。
// 適用済みとして記録されているがフォルダにないものは missing として末尾に並ぶ。
func (s *MigrationService) Status(ctx context.Context, target Target) ([]*domain.Migration, error) {
	r, err := s.resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[string]struct{}, len(r.applied))
	for _, f := range r.applied {
		appliedSet[f] = struct{}{}
	}
	onDisk := make(map[string]struct{}, len(r.all))

	var appliedAt map[string]time.Time
	if s.history != nil {
		if appliedAt, err = s.history.LastApplied(ctx, r.project, r.env); err != nil {
			slog.WarnContext(ctx, "failed to read run history",
				"operation", "status",
				"error", err,
			)
		}
	}

	migrations := make([]*domain.Migration, 0, len(r.all))
	for _, file := range r.all {
		onDisk[file] = struct{}{}
		m := domain.ParseMigrationFile(file)
		if _, ok := appliedSet[file]; ok {
			m.Status = domain.MigrationStatusApplied
			if at, ok := appliedAt[file]; ok {
				m.AppliedAt = &at
			}
		}
		migrations = append(migrations, m)
	}
	for _, file := range r.applied {
		if _, ok := onDisk[file]; ok {
			continue
		}
		m := domain.ParseMigrationFile(file)
		m.Status = domain.MigrationStatusMissing
		migrations = append(migrations, m)
	}
	return migrations, nil
}

// History は環境の実行履歴を新しい順に返す。
func (s *MigrationService) History(ctx context.Context, target Target, limit int) ([]*domain.RunRecord, error) {
	if s.history == nil {
		return nil, domain.ErrHistoryDisabled
	}
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	p, err := doc.Project(target.Project)
	if err != nil {
		return nil, err
	}
	if _, err := p.Applied(target.Environment); err != nil {
		return nil, err
	}
	return s.history.FindByEnvironment(ctx, p.Name, target.Environment, limit)
}
