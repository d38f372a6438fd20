// Package main は状態確認APIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"dmcs/config"
	"dmcs/internal/handler"
	"dmcs/internal/infra"
	"dmcs/internal/repository"
	"dmcs/internal/usecase"
)

const version = "1.0.0"

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg, version)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, os.Stdout, true)

	// 実行履歴DB（任意）
	var history usecase.HistoryRepository
	if cfg.HistoryDSN != "" {
		db, err := infra.NewDB(cfg.HistoryDSN)
		if err != nil {
			slog.Error("failed to init database", "error", err)
			os.Exit(1)
		}
		repo := repository.NewHistoryRepository(db)
		if err := repo.AutoMigrate(ctx); err != nil {
			slog.Error("failed to prepare history table", "error", err)
			os.Exit(1)
		}
		history = repo
	}

	// DI（読み取り専用のためExecutorは持たない）
	fs := afero.NewReadOnlyFs(afero.NewOsFs())
	layout := usecase.NewLayout(cfg.ConfigPath, cfg.RootDir)
	store := repository.NewStateRepository(fs, cfg.ConfigPath)
	files := repository.NewMigrationRepository(fs)
	migrations := usecase.NewMigrationService(store, files, nil, history, layout)
	projects := usecase.NewProjectService(fs, store, files, layout)
	h := handler.NewStatusHandler(projects, migrations)
	router := handler.NewRouter(h, cfg.OtelEnabled)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "config", cfg.ConfigPath)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
