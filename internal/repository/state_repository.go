package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"dmcs/internal/domain"
)

// StateRepository はJSON状態ドキュメントを読み書きするリポジトリ。
// 部分更新は提供せず、常にドキュメント全体を上書きする。
type StateRepository struct {
	fs   afero.Fs
	path string
}

// NewStateRepository は新しいStateRepositoryを生成する。
func NewStateRepository(fs afero.Fs, path string) *StateRepository {
	return &StateRepository{fs: fs, path: path}
}

// Path は状態ドキュメントのパスを返す。
func (r *StateRepository) Path() string {
	return r.path
}

// Exists は状態ドキュメントが存在するか確認する。
func (r *StateRepository) Exists(ctx context.Context) (bool, error) {
	return afero.Exists(r.fs, r.path)
}

// Load は状態ドキュメントを読み込み、形式を判定する。
func (r *StateRepository) Load(ctx context.Context) (*domain.Document, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, r.path)
		}
		slog.ErrorContext(ctx, "failed to read state document",
			"operation", "load_state",
			"path", r.path,
			"error", err,
		)
		return nil, fmt.Errorf("reading state document: %w", err)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}
	doc.Revision = revisionOf(data)
	return doc, nil
}

// Save はドキュメント全体を一時ファイルに書き出してからリネームで置き換える。
// Load時から内容が変わっている場合は ErrStateConflict を返す。
func (r *StateRepository) Save(ctx context.Context, doc *domain.Document) error {
	if err := r.checkRevision(doc); err != nil {
		return err
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	tmp := filepath.Join(dir, "."+filepath.Base(r.path)+"."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		slog.ErrorContext(ctx, "failed to write state document",
			"operation", "save_state",
			"path", tmp,
			"error", err,
		)
		return fmt.Errorf("writing state document: %w", err)
	}
	if err := r.fs.Rename(tmp, r.path); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("replacing state document: %w", err)
	}

	doc.Revision = revisionOf(data)
	return nil
}

func (r *StateRepository) checkRevision(doc *domain.Document) error {
	current, err := afero.ReadFile(r.fs, r.path)
	if errors.Is(err, fs.ErrNotExist) {
		if doc.Revision != "" {
			return fmt.Errorf("%w: %s was removed", domain.ErrStateConflict, r.path)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading state document: %w", err)
	}
	if doc.Revision == "" || revisionOf(current) != doc.Revision {
		return fmt.Errorf("%w: %s", domain.ErrStateConflict, r.path)
	}
	return nil
}

func revisionOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
