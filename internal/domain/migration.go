// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Entrypoint はマイグレーションユニットが公開するエントリポイント名を表す。
type Entrypoint string

const (
	// Up は未適用マイグレーションを適用するエントリポイント。
	Up Entrypoint = "up"
	// Down は適用済みマイグレーションを取り消すエントリポイント。
	Down Entrypoint = "down"
)

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
	// MigrationStatusMissing は適用済みとして記録されているがファイルが存在しない状態。
	MigrationStatusMissing MigrationStatus = "missing"
)

// 認識するマイグレーションファイルの拡張子。
var (
	PlainExtensions  = []string{".mjs", ".js", ".cjs"}
	SourceExtensions = []string{".ts", ".mts"}
)

// IsMigrationFile は拡張子がマイグレーションとして認識されるか判定する。
func IsMigrationFile(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range PlainExtensions {
		if ext == e {
			return true
		}
	}
	return IsSourceFile(name)
}

// IsSourceFile はトランスパイルが必要なファイルか判定する。
func IsSourceFile(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range SourceExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Migration はマイグレーションファイルと適用状態を表すドメインモデル
type Migration struct {
	File      string          // ファイル名（例: "1711245114392_init.mjs"）
	Version   string          // タイムスタンプ部分（例: "1711245114392"）
	Name      string          // スラッグ部分（例: "init"）
	Status    MigrationStatus // 適用状態
	AppliedAt *time.Time      // 履歴から取得した最終適用日時（不明な場合はnil）
}

// ParseMigrationFile はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {epoch-millis}_{snake_name}.{ext}
// 形式に合わない場合もファイル名全体を名前として扱う。
func ParseMigrationFile(file string) *Migration {
	base := strings.TrimSuffix(file, filepath.Ext(file))
	m := &Migration{File: file, Name: base, Status: MigrationStatusPending}
	if version, name, ok := strings.Cut(base, "_"); ok {
		m.Version = version
		m.Name = name
	}
	return m
}

// Unit はディスク上のマイグレーションユニットを表す。
type Unit struct {
	File       string // 識別子（ファイル名）
	SourcePath string // 絶対パス
	ProjectDir string // require の解決を許可するプロジェクトルート
}

// NewUnit はマイグレーションフォルダとファイル名からUnitを生成する。
func NewUnit(migrationsDir, projectDir, file string) Unit {
	return Unit{
		File:       file,
		SourcePath: filepath.Join(migrationsDir, file),
		ProjectDir: projectDir,
	}
}

// ModuleFormat は実行可能コードのモジュール形式。
type ModuleFormat string

const (
	FormatCommonJS ModuleFormat = "cjs"
	FormatESModule ModuleFormat = "esm"
)

// CompiledUnit はサンドボックスで実行可能な形式に変換されたユニット。
type CompiledUnit struct {
	Unit
	Path      string       // 実行するファイルのパス
	Code      []byte       // 実行するコード
	Format    ModuleFormat // モジュール形式
	Temporary bool         // Path が一時ファイルの場合 true

	cleanup func() error
}

// NewCompiledUnit は一時ファイルの削除処理を持つCompiledUnitを生成する。
func NewCompiledUnit(unit Unit, path string, code []byte, format ModuleFormat, cleanup func() error) *CompiledUnit {
	return &CompiledUnit{
		Unit:      unit,
		Path:      path,
		Code:      code,
		Format:    format,
		Temporary: cleanup != nil,
		cleanup:   cleanup,
	}
}

// Cleanup は一時ファイルを削除する。複数回呼び出しても安全。
func (c *CompiledUnit) Cleanup() error {
	if c == nil || c.cleanup == nil {
		return nil
	}
	fn := c.cleanup
	c.cleanup = nil
	return fn()
}
