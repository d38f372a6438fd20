package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/spf13/afero"

	"dmcs/internal/domain"
)

// StateDocumentRepository は初期化に必要な操作を含む状態ドキュメントのインターフェース。
type StateDocumentRepository interface {
	StateStore
	Exists(ctx context.Context) (bool, error)
	Path() string
}

// InitOptions は init の入力。
type InitOptions struct {
	Project     string // 単一プロジェクト形式の既存ドキュメントでは無視される
	Environment string
	Force       bool
}

// InitResult は init の結果。
type InitResult struct {
	ConfigPath     string
	MigrationsDir  string
	FirstMigration string // 作成した最初のマイグレーション（既にファイルがあれば空）
}

const mjsTemplate = `/**
 * Apply this migration.
 */
export async function up() {
}

/**
 * Revert this migration.
 */
export async function down() {
}
`

const tsTemplate = `export async function up(): Promise<void> {
}

export async function down(): Promise<void> {
}
`

// ProjectService はプロジェクト・環境の管理とマイグレーションファイルの作成を提供する。
type ProjectService struct {
	fs     afero.Fs
	store  StateDocumentRepository
	files  MigrationFileRepository
	layout Layout
	now    func() time.Time
}

// NewProjectService は新しいProjectServiceを生成する。
func NewProjectService(fs afero.Fs, store StateDocumentRepository, files MigrationFileRepository, layout Layout) *ProjectService {
	return &ProjectService{
		fs:     fs,
		store:  store,
		files:  files,
		layout: layout,
		now:    time.Now,
	}
}

// Init は状態ドキュメント、マイグレーションフォルダ、最初のマイグレーションを作成する。
// Force の場合は既存の履歴を残したままプロジェクト・環境を補う。
func (s *ProjectService) Init(ctx context.Context, opts InitOptions) (*InitResult, error) {
	exists, err := s.store.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking state document: %w", err)
	}
	if exists && !opts.Force {
		return nil, fmt.Errorf("%w: %s exists (use --force to reinitialize)", domain.ErrAlreadyInitialized, s.store.Path())
	}
	if err := domain.ValidateName(opts.Environment); err != nil {
		return nil, err
	}

	var doc *domain.Document
	if exists {
		if doc, err = s.store.Load(ctx); err != nil {
			return nil, err
		}
	} else {
		doc = domain.NewMultiProjectDocument()
	}

	if doc.Kind == domain.KindMultiProject {
		if err := domain.ValidateName(opts.Project); err != nil {
			return nil, err
		}
		if _, ok := doc.Projects[opts.Project]; !ok {
			p := domain.NewProject(opts.Project, s.layout.ProjectFolder(opts.Project), opts.Environment)
			if err := doc.AddProject(p); err != nil {
				return nil, err
			}
		}
	}

	p, err := doc.Project(opts.Project)
	if err != nil {
		return nil, err
	}
	if _, ok := p.Environments[opts.Environment]; !ok {
		if err := p.AddEnvironment(opts.Environment); err != nil {
			return nil, err
		}
	}

	dir := s.layout.MigrationsDir(doc, p)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating migrations directory: %w", err)
	}
	if err := s.store.Save(ctx, doc); err != nil {
		return nil, err
	}

	result := &InitResult{ConfigPath: s.store.Path(), MigrationsDir: dir}
	existing, err := s.files.ListMigrationFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		path, err := s.writeMigration(ctx, dir, "init", false)
		if err != nil {
			return nil, err
		}
		result.FirstMigration = path
	}

	slog.InfoContext(ctx, "initialized",
		"config", result.ConfigPath,
		"project", p.Name,
		"environment", opts.Environment,
		"migrations_dir", dir,
	)
	return result, nil
}

// CreateMigration は {epoch-millis}_{snake_name}.{mjs|ts} の空のマイグレーションを作成する。
func (s *ProjectService) CreateMigration(ctx context.Context, project, name string, typescript bool) (string, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	p, err := doc.Project(project)
	if err != nil {
		return "", err
	}
	return s.writeMigration(ctx, s.layout.MigrationsDir(doc, p), name, typescript)
}

func (s *ProjectService) writeMigration(ctx context.Context, dir, name string, typescript bool) (string, error) {
	slug := strcase.ToSnake(name)
	if slug == "" {
		return "", fmt.Errorf("%w: migration name must not be empty", domain.ErrInvalidName)
	}

	ext, content := ".mjs", mjsTemplate
	if typescript {
		ext, content = ".ts", tsTemplate
	}
	file := fmt.Sprintf("%d_%s%s", s.now().UnixMilli(), slug, ext)
	return s.files.WriteMigrationFile(ctx, dir, file, []byte(content))
}

// AddEnvironment はプロジェクトに空の環境を追加する。
func (s *ProjectService) AddEnvironment(ctx context.Context, project, env string) error {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	p, err := doc.Project(project)
	if err != nil {
		return err
	}
	if err := p.AddEnvironment(env); err != nil {
		return err
	}
	return s.store.Save(ctx, doc)
}

// ListEnvironments はプロジェクトの環境名を昇順で返す。
func (s *ProjectService) ListEnvironments(ctx context.Context, project string) ([]string, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	p, err := doc.Project(project)
	if err != nil {
		return nil, err
	}
	return p.EnvironmentNames(), nil
}

// AddProject はプロジェクトを追加し、マイグレーションフォルダを作成する。
// 単一プロジェクト形式のドキュメントには追加できない。
func (s *ProjectService) AddProject(ctx context.Context, name, env string) (string, error) {
	if err := domain.ValidateName(env); err != nil {
		return "", err
	}
	doc, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	p := domain.NewProject(name, s.layout.ProjectFolder(name), env)
	if err := doc.AddProject(p); err != nil {
		return "", err
	}

	dir := s.layout.MigrationsDir(doc, p)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating migrations directory: %w", err)
	}
	if err := s.store.Save(ctx, doc); err != nil {
		return "", err
	}
	return dir, nil
}

// ListProjects はプロジェクト名を昇順で返す。
func (s *ProjectService) ListProjects(ctx context.Context) ([]string, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.ProjectNames(), nil
}

// DocumentKind は状態ドキュメントの形式を返す。未初期化の場合は ErrConfigNotFound。
func (s *ProjectService) DocumentKind(ctx context.Context) (domain.DocumentKind, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	return doc.Kind, nil
}
