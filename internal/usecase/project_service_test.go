package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"dmcs/internal/domain"
	"dmcs/internal/repository"
)

func newTestProjectService(fs afero.Fs) (*ProjectService, *repository.StateRepository) {
	store := repository.NewStateRepository(fs, testConfigPath)
	svc := NewProjectService(fs, store, repository.NewMigrationRepository(fs), NewLayout(testConfigPath, ".dmcs"))
	svc.now = func() time.Time { return time.UnixMilli(1711245114392) }
	return svc, store
}

func TestProjectService_Init(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	svc, store := newTestProjectService(fs)

	result, err := svc.Init(ctx, InitOptions{Project: "api", Environment: "development"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if result.MigrationsDir != "/work/.dmcs/api/migrations" {
		t.Errorf("unexpected migrations dir: %s", result.MigrationsDir)
	}
	if result.FirstMigration != "/work/.dmcs/api/migrations/1711245114392_init.mjs" {
		t.Errorf("unexpected first migration: %s", result.FirstMigration)
	}
	content, err := afero.ReadFile(fs, result.FirstMigration)
	if err != nil {
		t.Fatalf("failed to read first migration: %v", err)
	}
	if !strings.Contains(string(content), "export async function up()") {
		t.Errorf("unexpected template:\n%s", content)
	}

	doc, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Kind != domain.KindMultiProject {
		t.Errorf("want multi-project document, got %s", doc.Kind)
	}
	p, err := doc.Project("api")
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if p.MigrationsFolder != filepath.Join(".dmcs", "api", "migrations") {
		t.Errorf("unexpected migrationsFolder: %s", p.MigrationsFolder)
	}
	if !slices.Equal(p.EnvironmentNames(), []string{"development"}) {
		t.Errorf("unexpected environments: %v", p.EnvironmentNames())
	}
}

func TestProjectService_Init_AlreadyInitialized(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	svc, _ := newTestProjectService(fs)

	if _, err := svc.Init(ctx, InitOptions{Project: "api", Environment: "dev"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	_, err := svc.Init(ctx, InitOptions{Project: "api", Environment: "dev"})
	if !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Errorf("want ErrAlreadyInitialized, got %v", err)
	}
}

func TestProjectService_Init_ForceKeepsHistory(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	doc := `{"migrations":{"dev":["1000_a.mjs"]}}`
	if err := afero.WriteFile(fs, testConfigPath, []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write state: %v", err)
	}
	if err := afero.WriteFile(fs, "/work/.dmcs/migrations/1000_a.mjs", []byte(""), 0o644); err != nil {
		t.Fatalf("failed to write migration: %v", err)
	}
	svc, store := newTestProjectService(fs)

	result, err := svc.Init(ctx, InitOptions{Environment: "prod", Force: true})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if result.FirstMigration != "" {
		t.Errorf("existing migrations must not get a new init file: %s", result.FirstMigration)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Kind != domain.KindSingleProject {
		t.Errorf("document kind must be kept, got %s", loaded.Kind)
	}
	p, _ := loaded.Project("")
	if applied, _ := p.Applied("dev"); !slices.Equal(applied, []string{"1000_a.mjs"}) {
		t.Errorf("history lost: %v", applied)
	}
	if _, err := p.Applied("prod"); err != nil {
		t.Errorf("want prod environment: %v", err)
	}
}

func TestProjectService_Init_InvalidNames(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProjectService(afero.NewMemMapFs())

	tests := []InitOptions{
		{Project: "api", Environment: ""},
		{Project: "", Environment: "dev"},
		{Project: "a/b", Environment: "dev"},
	}
	for _, opts := range tests {
		if _, err := svc.Init(ctx, opts); !errors.Is(err, domain.ErrInvalidName) {
			t.Errorf("%+v: want ErrInvalidName, got %v", opts, err)
		}
	}
}

func TestProjectService_CreateMigration(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	svc, _ := newTestProjectService(fs)
	if _, err := svc.Init(ctx, InitOptions{Project: "api", Environment: "dev"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	svc.now = func() time.Time { return time.UnixMilli(1711245120000) }

	path, err := svc.CreateMigration(ctx, "api", "Add user Email", true)
	if err != nil {
		t.Fatalf("CreateMigration failed: %v", err)
	}
	if filepath.Base(path) != "1711245120000_add_user_email.ts" {
		t.Errorf("unexpected file name: %s", filepath.Base(path))
	}

	_, err = svc.CreateMigration(ctx, "api", "add user email", true)
	if !errors.Is(err, domain.ErrDuplicateName) {
		t.Errorf("want ErrDuplicateName, got %v", err)
	}
	_, err = svc.CreateMigration(ctx, "api", "   ", false)
	if !errors.Is(err, domain.ErrInvalidName) {
		t.Errorf("want ErrInvalidName, got %v", err)
	}
}

func TestProjectService_Environments(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	svc, _ := newTestProjectService(fs)
	if _, err := svc.Init(ctx, InitOptions{Project: "api", Environment: "dev"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := svc.AddEnvironment(ctx, "api", "staging"); err != nil {
		t.Fatalf("AddEnvironment failed: %v", err)
	}
	if err := svc.AddEnvironment(ctx, "api", "dev"); !errors.Is(err, domain.ErrDuplicateName) {
		t.Errorf("want ErrDuplicateName, got %v", err)
	}
	if err := svc.AddEnvironment(ctx, "web", "dev"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Errorf("want ErrProjectNotFound, got %v", err)
	}

	envs, err := svc.ListEnvironments(ctx, "api")
	if err != nil {
		t.Fatalf("ListEnvironments failed: %v", err)
	}
	if !slices.Equal(envs, []string{"dev", "staging"}) {
		t.Errorf("unexpected environments: %v", envs)
	}
}

func TestProjectService_Projects(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	svc, _ := newTestProjectService(fs)
	if _, err := svc.Init(ctx, InitOptions{Project: "api", Environment: "dev"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	dir, err := svc.AddProject(ctx, "web", "dev")
	if err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}
	if exists, _ := afero.DirExists(fs, dir); !exists {
		t.Errorf("migrations dir %s was not created", dir)
	}
	if _, err := svc.AddProject(ctx, "web", "dev"); !errors.Is(err, domain.ErrDuplicateName) {
		t.Errorf("want ErrDuplicateName, got %v", err)
	}

	projects, err := svc.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if !slices.Equal(projects, []string{"api", "web"}) {
		t.Errorf("unexpected projects: %v", projects)
	}
}

func TestProjectService_AddProject_SingleProjectDocument(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testConfigPath, []byte(`{"migrations":{"dev":[]}}`), 0o644); err != nil {
		t.Fatalf("failed to write state: %v", err)
	}
	svc, _ := newTestProjectService(fs)

	_, err := svc.AddProject(ctx, "web", "dev")
	if !errors.Is(err, domain.ErrUnsupportedDocument) {
		t.Errorf("want ErrUnsupportedDocument, got %v", err)
	}
}
