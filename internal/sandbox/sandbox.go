// Package sandbox はマイグレーションユニットを隔離された環境で実行する。
package sandbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dmcs/internal/domain"
)

var tracer = otel.Tracer("dmcs/internal/sandbox")

// Runner はコンパイル済みユニットのエントリポイントを実行する。
// 呼び出しごとに新しい実行環境を用意し、前の実行の状態を引き継がない。
type Runner interface {
	// Format はこのランナーが実行できるモジュール形式。
	Format() domain.ModuleFormat
	Run(ctx context.Context, unit *domain.CompiledUnit, entry domain.Entrypoint) error
}

// Compiler はユニットを実行可能な形式に変換する。
type Compiler interface {
	Compile(ctx context.Context, unit domain.Unit, format domain.ModuleFormat) (*domain.CompiledUnit, error)
}

// Capabilities はユニットに渡す機能の一覧。
type Capabilities struct {
	Stdout   io.Writer
	Stderr   io.Writer
	EnvAllow []string // nil の場合はプロセスの環境変数を全て渡す
}

// DefaultCapabilities は標準出力・標準エラーとプロセスの全環境変数を使う。
func DefaultCapabilities() Capabilities {
	return Capabilities{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (c Capabilities) stdout() io.Writer {
	if c.Stdout == nil {
		return io.Discard
	}
	return c.Stdout
}

func (c Capabilities) stderr() io.Writer {
	if c.Stderr == nil {
		return io.Discard
	}
	return c.Stderr
}

// Environ は許可された環境変数を KEY=VALUE 形式で返す。
func (c Capabilities) Environ() []string {
	all := os.Environ()
	if c.EnvAllow == nil {
		return all
	}
	allowed := make(map[string]struct{}, len(c.EnvAllow))
	for _, k := range c.EnvAllow {
		allowed[k] = struct{}{}
	}
	var out []string
	for _, kv := range all {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := allowed[k]; ok {
			out = append(out, kv)
		}
	}
	return out
}

// EnvMap は Environ をマップにしたもの。
func (c Capabilities) EnvMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range c.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Executor はユニットをコンパイルして実行し、一時ファイルを必ず削除する。
type Executor struct {
	compiler Compiler
	runner   Runner
}

// NewExecutor は新しいExecutorを生成する。
func NewExecutor(compiler Compiler, runner Runner) *Executor {
	return &Executor{compiler: compiler, runner: runner}
}

// Execute はユニットのエントリポイントを実行する。
// 失敗はファイル名とエントリポイントを持つ *domain.MigrationError として返す。
func (e *Executor) Execute(ctx context.Context, unit domain.Unit, entry domain.Entrypoint) (err error) {
	ctx, span := tracer.Start(ctx, "migration.unit")
	defer span.End()
	span.SetAttributes(
		attribute.String("dmcs.file", unit.File),
		attribute.String("dmcs.entrypoint", string(entry)),
		attribute.String("dmcs.format", string(e.runner.Format())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	compiled, err := e.compiler.Compile(ctx, unit, e.runner.Format())
	if err != nil {
		return domain.NewMigrationError(unit.File, entry, err)
	}
	defer func() {
		if cerr := compiled.Cleanup(); cerr != nil {
			slog.WarnContext(ctx, "failed to remove compiled migration",
				"file", unit.File,
				"path", compiled.Path,
				"error", cerr,
			)
		}
	}()

	start := time.Now()
	if err := e.runner.Run(ctx, compiled, entry); err != nil {
		return domain.NewMigrationError(unit.File, entry, err)
	}
	slog.DebugContext(ctx, "migration entrypoint completed",
		"file", unit.File,
		"entrypoint", entry,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// allowedRoots はユニットが require できるフォルダ。
func allowedRoots(unit *domain.CompiledUnit) []string {
	roots := []string{filepath.Dir(unit.Path), filepath.Dir(unit.SourcePath)}
	if unit.ProjectDir != "" {
		roots = append(roots, unit.ProjectDir)
	}
	return roots
}

func within(roots []string, path string) bool {
	path = filepath.Clean(path)
	for _, root := range roots {
		rel, err := filepath.Rel(filepath.Clean(root), path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}
