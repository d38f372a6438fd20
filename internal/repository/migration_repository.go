package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"dmcs/internal/domain"
)

// MigrationRepository はマイグレーションフォルダからファイル一覧を取得するリポジトリ。
type MigrationRepository struct {
	fs afero.Fs
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
func NewMigrationRepository(fs afero.Fs) *MigrationRepository {
	return &MigrationRepository{fs: fs}
}

// ListMigrationFiles は認識できる拡張子のファイル名を昇順で返す。
// フォルダが存在しない場合は未初期化とみなし ErrDirectoryNotFound を返す。
func (r *MigrationRepository) ListMigrationFiles(ctx context.Context, dir string) ([]string, error) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDirectoryNotFound, dir)
		}
		slog.ErrorContext(ctx, "failed to read migrations directory",
			"operation", "list_migration_files",
			"dir", dir,
			"error", err,
		)
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		// ドットファイルはトランスパイル時の一時ファイル
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !domain.IsMigrationFile(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}

	// タイムスタンプ接頭辞により辞書順が作成順と一致する
	sort.Strings(files)
	return files, nil
}

// WriteMigrationFile は新しいマイグレーションファイルを作成する。既存ファイルは上書きしない。
func (r *MigrationRepository) WriteMigrationFile(ctx context.Context, dir, file string, content []byte) (string, error) {
	exists, err := afero.DirExists(r.fs, dir)
	if err != nil {
		return "", fmt.Errorf("checking migrations directory: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", domain.ErrDirectoryNotFound, dir)
	}

	path := filepath.Join(dir, file)
	f, err := r.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: migration %s already exists", domain.ErrDuplicateName, file)
		}
		return "", fmt.Errorf("creating migration file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return "", fmt.Errorf("writing migration file: %w", err)
	}
	return path, nil
}
