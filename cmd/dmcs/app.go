package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"dmcs/config"
	"dmcs/internal/infra"
	"dmcs/internal/repository"
	"dmcs/internal/sandbox"
	"dmcs/internal/transpile"
	"dmcs/internal/usecase"
)

// cli はコマンド間で共有する設定と依存関係を保持する。
type cli struct {
	cfg    *config.Config
	fs     afero.Fs
	out    io.Writer
	errOut io.Writer
	prompt *prompter
	report *reporter

	migrations *usecase.MigrationService
	projects   *usecase.ProjectService

	closers []func()
}

func newCLI(cfg *config.Config, in io.Reader, out, errOut io.Writer) *cli {
	return &cli{
		cfg:    cfg,
		fs:     afero.NewOsFs(),
		out:    out,
		errOut: errOut,
		prompt: newPrompter(in, errOut),
		report: newReporter(out, errOut),
	}
}

// setup はフラグの解析後にロガー・トレーサー・サービスを初期化する。
func (c *cli) setup(ctx context.Context) error {
	infra.SetupLogger(c.cfg, c.errOut, false)

	// トレーサー初期化
	tp, err := infra.InitTracer(ctx, c.cfg, version)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	if tp != nil {
		c.closers = append(c.closers, func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		})
	}

	runner, err := c.newRunner()
	if err != nil {
		return err
	}

	// DI
	layout := usecase.NewLayout(c.cfg.ConfigPath, c.cfg.RootDir)
	store := repository.NewStateRepository(c.fs, c.cfg.ConfigPath)
	files := repository.NewMigrationRepository(c.fs)
	// tsconfig.json は作業ディレクトリから上方向に探す
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	compiler := transpile.NewCompiler(workDir, c.cfg.TsconfigPath)
	executor := sandbox.NewExecutor(compiler, runner)

	history, err := c.openHistory(ctx)
	if err != nil {
		return err
	}

	c.migrations = usecase.NewMigrationService(store, files, executor, history, layout)
	c.projects = usecase.NewProjectService(c.fs, store, files, layout)
	return nil
}

func (c *cli) newRunner() (sandbox.Runner, error) {
	caps := sandbox.Capabilities{Stdout: c.out, Stderr: c.errOut, EnvAllow: c.cfg.SandboxEnvAllow}
	switch c.cfg.Runtime {
	case config.RuntimeGoja:
		return sandbox.NewGojaRunner(caps), nil
	case config.RuntimeNode:
		return sandbox.NewNodeRunner(c.cfg.NodePath, caps), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q (want %s or %s)", c.cfg.Runtime, config.RuntimeGoja, config.RuntimeNode)
	}
}

// openHistory は DMCS_HISTORY_DSN が設定されている場合のみ実行履歴DBを開く。
func (c *cli) openHistory(ctx context.Context) (usecase.HistoryRepository, error) {
	if c.cfg.HistoryDSN == "" {
		return nil, nil
	}
	db, err := infra.NewDB(c.cfg.HistoryDSN)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() {
		if err := sqlDB.Close(); err != nil {
			slog.Error("failed to close history database", "error", err)
		}
	})

	repo := repository.NewHistoryRepository(db)
	if err := repo.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("preparing history table: %w", err)
	}
	return repo, nil
}

func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
