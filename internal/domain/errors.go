package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound は状態ドキュメントが存在しない場合のエラー。
	ErrConfigNotFound = errors.New("config not found")

	// ErrConfigParse は状態ドキュメントの形式が不正な場合のエラー。
	ErrConfigParse = errors.New("config parse error")

	// ErrDirectoryNotFound はマイグレーションフォルダが存在しない場合のエラー。
	ErrDirectoryNotFound = errors.New("migrations directory not found")

	// ErrProjectNotFound は指定されたプロジェクトが存在しない場合のエラー。
	ErrProjectNotFound = errors.New("project not found")

	// ErrEnvironmentNotFound は指定された環境が存在しない場合のエラー。
	ErrEnvironmentNotFound = errors.New("environment not found")

	// ErrInvalidName はプロジェクト名・環境名・マイグレーション名が不正な場合のエラー。
	ErrInvalidName = errors.New("invalid name")

	// ErrDuplicateName は同名のプロジェクト・環境が既に存在する場合のエラー。
	ErrDuplicateName = errors.New("duplicate name")

	// ErrAlreadyInitialized は初期化済みのディレクトリで init を実行した場合のエラー。
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrNothingSelected はプロジェクト・環境が選択されなかった場合のエラー。
	ErrNothingSelected = errors.New("nothing selected")

	// ErrUnsupportedDocument はドキュメント形式が操作に対応していない場合のエラー。
	ErrUnsupportedDocument = errors.New("unsupported document")

	// ErrInvalidSteps はロールバック数が1未満の場合のエラー。
	ErrInvalidSteps = errors.New("invalid number of steps")

	// ErrInsufficientMigrations はロールバック数が対象となるマイグレーション数を超える場合のエラー。
	ErrInsufficientMigrations = errors.New("insufficient migrations")

	// ErrStateConflict は読み込み後に状態ドキュメントが他で更新された場合のエラー。
	ErrStateConflict = errors.New("state document changed on disk")

	// ErrEntrypointMissing はユニットが up/down を関数として公開していない場合のエラー。
	ErrEntrypointMissing = errors.New("entrypoint missing")

	// ErrMigrationExecutionFailed はユニットの実行中に例外が発生した場合のエラー。
	ErrMigrationExecutionFailed = errors.New("migration execution failed")

	// ErrBuildConfigNotFound は tsconfig.json が見つからない場合のエラー。
	ErrBuildConfigNotFound = errors.New("build config not found")

	// ErrImportNotResolved は相対インポートを解決できない場合のエラー。
	ErrImportNotResolved = errors.New("import not resolved")

	// ErrHistoryDisabled は実行履歴DBが設定されていない場合のエラー。
	ErrHistoryDisabled = errors.New("run history is not configured")
)

var setupErrors = []error{
	ErrConfigNotFound,
	ErrConfigParse,
	ErrDirectoryNotFound,
	ErrProjectNotFound,
	ErrEnvironmentNotFound,
	ErrInvalidName,
	ErrDuplicateName,
	ErrAlreadyInitialized,
	ErrNothingSelected,
	ErrUnsupportedDocument,
	ErrInvalidSteps,
	ErrInsufficientMigrations,
	ErrStateConflict,
	ErrHistoryDisabled,
}

// IsSetupError は利用者が設定を修正して再実行すべきエラーか判定する。
func IsSetupError(err error) bool {
	for _, target := range setupErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// MigrationError は特定のユニットの実行失敗を表す。
type MigrationError struct {
	File       string
	Entrypoint Entrypoint
	Err        error
}

// NewMigrationError は新しいMigrationErrorを生成する。
func NewMigrationError(file string, entry Entrypoint, err error) *MigrationError {
	return &MigrationError{File: file, Entrypoint: entry, Err: err}
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s (%s): %v", e.File, e.Entrypoint, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *MigrationError) Unwrap() error {
	return e.Err
}
