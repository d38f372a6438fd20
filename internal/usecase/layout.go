package usecase

import (
	"path/filepath"

	"dmcs/internal/domain"
)

// Layout は状態ドキュメントの位置を基準にプロジェクトのフォルダ配置を解決する。
type Layout struct {
	configPath string
	rootDir    string
}

// NewLayout は新しいLayoutを生成する。相対パスは状態ドキュメントのフォルダを基準にする。
func NewLayout(configPath, rootDir string) Layout {
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	return Layout{configPath: configPath, rootDir: rootDir}
}

// BaseDir は状態ドキュメントのあるフォルダ。ユニットが require できる範囲の起点でもある。
func (l Layout) BaseDir() string {
	return filepath.Dir(l.configPath)
}

// Resolve は相対パスを BaseDir 基準の絶対パスにする。
func (l Layout) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(l.BaseDir(), path)
}

// Root はプロジェクトフォルダを置くルート。
func (l Layout) Root() string {
	return l.Resolve(l.rootDir)
}

// ProjectFolder は新規プロジェクトとしてドキュメントに記録する migrationsFolder。
func (l Layout) ProjectFolder(project string) string {
	return filepath.Join(l.rootDir, project, "migrations")
}

// MigrationsDir はプロジェクトのマイグレーションフォルダの絶対パスを返す。
func (l Layout) MigrationsDir(doc *domain.Document, p *domain.Project) string {
	if p.MigrationsFolder != "" {
		return l.Resolve(p.MigrationsFolder)
	}
	if doc.Kind == domain.KindSingleProject {
		return filepath.Join(l.Root(), "migrations")
	}
	return filepath.Join(l.Root(), p.Name, "migrations")
}
