package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"dmcs/internal/domain"
)

// ComputePending はファイル一覧から適用済みを除いたものを昇順のまま返す。
// 空の場合は何もすることがない（エラーではない）。
func ComputePending(all, applied []string) []string {
	done := make(map[string]struct{}, len(applied))
	for _, f := range applied {
		done[f] = struct{}{}
	}

	var pending []string
	for _, f := range all {
		if _, ok := done[f]; !ok {
			pending = append(pending, f)
		}
	}
	return pending
}

// ComputeRollbackSet は存在するファイルのうち適用済みのものから末尾steps件を取り、
// 新しい順（逆順）に返す。
// stepsがフォルダ内の適用済み件数を超える場合は ErrInsufficientMigrations を返す。
func ComputeRollbackSet(all, applied []string, steps int) ([]string, error) {
	if steps < 1 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidSteps, steps)
	}

	done := make(map[string]struct{}, len(applied))
	for _, f := range applied {
		done[f] = struct{}{}
	}

	var candidates []string
	for _, f := range all {
		if _, ok := done[f]; ok {
			candidates = append(candidates, f)
		}
	}

	if steps > len(candidates) {
		return nil, fmt.Errorf("%w: requested %d, only %d applied migration(s) exist",
			domain.ErrInsufficientMigrations, steps, len(candidates))
	}

	set := slices.Clone(candidates[len(candidates)-steps:])
	slices.Reverse(set)
	return set, nil
}

// Reconciler は一件ごとに状態ドキュメントを再読み込み・更新・保存する。
type Reconciler struct {
	store StateStore
}

// NewReconciler は新しいReconcilerを生成する。
func NewReconciler(store StateStore) *Reconciler {
	return &Reconciler{store: store}
}

// RecordApplied は最新の状態を読み込み、環境の適用順の末尾にファイルを追加して保存する。
func (r *Reconciler) RecordApplied(ctx context.Context, project, env, file string) error {
	return r.mutate(ctx, "record_applied", project, env, file, func(p *domain.Project) error {
		return p.MarkApplied(env, file)
	})
}

// RecordReverted は最新の状態を読み込み、環境からファイルを値で取り除いて保存する。
func (r *Reconciler) RecordReverted(ctx context.Context, project, env, file string) error {
	return r.mutate(ctx, "record_reverted", project, env, file, func(p *domain.Project) error {
		return p.MarkReverted(env, file)
	})
}

func (r *Reconciler) mutate(ctx context.Context, op, project, env, file string, fn func(*domain.Project) error) error {
	doc, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	p, err := doc.Project(project)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	if err := r.store.Save(ctx, doc); err != nil {
		slog.ErrorContext(ctx, "failed to persist state",
			"operation", op,
			"project", project,
			"environment", env,
			"file", file,
			"error", err,
		)
		return fmt.Errorf("persisting state for %s: %w", file, err)
	}
	return nil
}
