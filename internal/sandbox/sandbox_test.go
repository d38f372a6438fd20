package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"dmcs/internal/domain"
	"dmcs/internal/transpile"
)

// mockCompiler はテスト用のモック。
type mockCompiler struct {
	err       error
	cleanedUp int
}

func (m *mockCompiler) Compile(ctx context.Context, unit domain.Unit, format domain.ModuleFormat) (*domain.CompiledUnit, error) {
	if m.err != nil {
		return nil, m.err
	}
	return domain.NewCompiledUnit(unit, unit.SourcePath+".tmp", nil, format, func() error {
		m.cleanedUp++
		return nil
	}), nil
}

// mockRunner はテスト用のモック。
type mockRunner struct {
	err   error
	calls []domain.Entrypoint
}

func (m *mockRunner) Format() domain.ModuleFormat {
	return domain.FormatCommonJS
}

func (m *mockRunner) Run(ctx context.Context, unit *domain.CompiledUnit, entry domain.Entrypoint) error {
	m.calls = append(m.calls, entry)
	return m.err
}

func TestExecutor_Execute(t *testing.T) {
	compiler := &mockCompiler{}
	runner := &mockRunner{}
	executor := NewExecutor(compiler, runner)
	unit := domain.NewUnit("/work/migrations", "/work", "1000_a.ts")

	if err := executor.Execute(context.Background(), unit, domain.Up); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !slices.Equal(runner.calls, []domain.Entrypoint{domain.Up}) {
		t.Errorf("unexpected calls: %v", runner.calls)
	}
	if compiler.cleanedUp != 1 {
		t.Errorf("want artifact removed once, got %d", compiler.cleanedUp)
	}
}

func TestExecutor_Execute_CleansUpOnFailure(t *testing.T) {
	compiler := &mockCompiler{}
	runner := &mockRunner{err: domain.ErrEntrypointMissing}
	executor := NewExecutor(compiler, runner)
	unit := domain.NewUnit("/work/migrations", "/work", "1000_a.ts")

	err := executor.Execute(context.Background(), unit, domain.Down)

	var me *domain.MigrationError
	if !errors.As(err, &me) {
		t.Fatalf("want *MigrationError, got %v", err)
	}
	if me.File != "1000_a.ts" || me.Entrypoint != domain.Down {
		t.Errorf("unexpected error details: %+v", me)
	}
	if !errors.Is(err, domain.ErrEntrypointMissing) {
		t.Errorf("want ErrEntrypointMissing, got %v", err)
	}
	if compiler.cleanedUp != 1 {
		t.Errorf("want artifact removed once, got %d", compiler.cleanedUp)
	}
}

func TestExecutor_Execute_CompileError(t *testing.T) {
	compiler := &mockCompiler{err: domain.ErrBuildConfigNotFound}
	runner := &mockRunner{}
	executor := NewExecutor(compiler, runner)

	err := executor.Execute(context.Background(), domain.NewUnit("/work/migrations", "/work", "1000_a.ts"), domain.Up)
	if !errors.Is(err, domain.ErrBuildConfigNotFound) {
		t.Errorf("want ErrBuildConfigNotFound, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("runner must not be called: %v", runner.calls)
	}
}

func TestCapabilities_Environ(t *testing.T) {
	t.Setenv("DMCS_TEST_A", "1")
	t.Setenv("DMCS_TEST_B", "2")

	all := Capabilities{}.EnvMap()
	if all["DMCS_TEST_A"] != "1" || all["DMCS_TEST_B"] != "2" {
		t.Errorf("want full environment, got A=%q B=%q", all["DMCS_TEST_A"], all["DMCS_TEST_B"])
	}

	env := Capabilities{EnvAllow: []string{"DMCS_TEST_B"}}.Environ()
	if !slices.Equal(env, []string{"DMCS_TEST_B=2"}) {
		t.Errorf("unexpected environment: %v", env)
	}

	if env := (Capabilities{EnvAllow: []string{}}).Environ(); len(env) != 0 {
		t.Errorf("empty allow list must pass nothing, got %v", env)
	}
}

func TestWithin(t *testing.T) {
	roots := []string{"/work/project"}
	tests := []struct {
		path string
		want bool
	}{
		{"/work/project", true},
		{"/work/project/node_modules/lib/index.js", true},
		{"/work/project/../other/x.js", false},
		{"/work/projectx/a.js", false},
		{"/etc/passwd", false},
	}
	for _, tt := range tests {
		if got := within(roots, tt.path); got != tt.want {
			t.Errorf("within(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestExecutor_CompilesAndRunsTypeScript(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"tsconfig.json":           `{"compilerOptions": {"strict": true}}`,
		"migrations/lib/table.ts": `export const table = (name?: string) => name ?? "users";`,
		"migrations/1000_a.ts":    typedMigration,
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	stdout := &bytes.Buffer{}
	executor := NewExecutor(transpile.NewCompiler(root, ""), NewGojaRunner(Capabilities{Stdout: stdout}))
	unit := domain.NewUnit(filepath.Join(root, "migrations"), root, "1000_a.ts")

	if err := executor.Execute(context.Background(), unit, domain.Up); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if stdout.String() != "created users\n" {
		t.Errorf("unexpected stdout: %q", stdout.String())
	}

	entries, err := os.ReadDir(filepath.Join(root, "migrations"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("compiled artifact %s was not removed", e.Name())
		}
	}
}

const typedMigration = `
import { table } from "./lib/table";

interface Options { verbose?: boolean }

export async function up(opts?: Options): Promise<void> {
  await new Promise<void>((resolve) => setTimeout(resolve, 1));
  console.log("created " + table(opts?.verbose ? "verbose" : undefined));
}

export async function down(): Promise<void> {}
`
