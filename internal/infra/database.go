// Package infra は外部サービスとの接続を提供する。
package infra

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// NewDB は実行履歴用のgormデータベース接続を初期化する。
// DSNが "mysql://" で始まる場合はMySQL、それ以外はSQLiteのファイル/DSNとして扱う。
func NewDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(dialectorFor(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("enabling gorm tracing: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// CLIは逐次実行のため小さなプールで足りる
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func dialectorFor(dsn string) gorm.Dialector {
	if rest, ok := strings.CutPrefix(dsn, "mysql://"); ok {
		return mysql.Open(rest)
	}
	return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
}
