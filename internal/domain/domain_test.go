package domain

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestParseMigrationFile(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
	}{
		{"1711245114392_init.mjs", "1711245114392", "init"},
		{"1711245114392_add_updated_at.ts", "1711245114392", "add_updated_at"},
		{"seed.js", "", "seed"},
	}
	for _, tt := range tests {
		m := ParseMigrationFile(tt.file)
		if m.Version != tt.version || m.Name != tt.name || m.Status != MigrationStatusPending {
			t.Errorf("ParseMigrationFile(%s) = %+v", tt.file, m)
		}
	}
}

func TestIsMigrationFile(t *testing.T) {
	for name, want := range map[string]bool{
		"1000_a.mjs": true,
		"1000_a.js":  true,
		"1000_a.cjs": true,
		"1000_a.ts":  true,
		"1000_a.mts": true,
		"1000_a.sql": false,
		"README.md":  false,
		"1000_a":     false,
	} {
		if got := IsMigrationFile(name); got != want {
			t.Errorf("IsMigrationFile(%s) = %v, want %v", name, got, want)
		}
	}
	if IsSourceFile("1000_a.mjs") || !IsSourceFile("1000_a.ts") {
		t.Error("only TypeScript files need transpiling")
	}
}

func TestProject_MarkAppliedAndReverted(t *testing.T) {
	p := NewProject("app", "", "dev")

	for _, f := range []string{"1000_a.mjs", "2000_b.mjs", "1000_a.mjs"} {
		if err := p.MarkApplied("dev", f); err != nil {
			t.Fatalf("MarkApplied failed: %v", err)
		}
	}
	applied, _ := p.Applied("dev")
	if !slices.Equal(applied, []string{"1000_a.mjs", "2000_b.mjs"}) {
		t.Errorf("MarkApplied must be idempotent: %v", applied)
	}

	// 返されたスライスを変更しても内部状態は変わらない
	applied[0] = "changed"
	if again, _ := p.Applied("dev"); again[0] != "1000_a.mjs" {
		t.Error("Applied must return a copy")
	}

	if err := p.MarkReverted("dev", "1000_a.mjs"); err != nil {
		t.Fatalf("MarkReverted failed: %v", err)
	}
	if err := p.MarkReverted("dev", "9999_unknown.mjs"); err != nil {
		t.Fatalf("reverting an unknown file must be a no-op: %v", err)
	}
	applied, _ = p.Applied("dev")
	if !slices.Equal(applied, []string{"2000_b.mjs"}) {
		t.Errorf("unexpected applied list: %v", applied)
	}

	if err := p.MarkApplied("prod", "1000_a.mjs"); !errors.Is(err, ErrEnvironmentNotFound) {
		t.Errorf("want ErrEnvironmentNotFound, got %v", err)
	}
}

func TestProject_AddEnvironment(t *testing.T) {
	p := NewProject("app", "", "dev")
	if err := p.AddEnvironment("prod"); err != nil {
		t.Fatalf("AddEnvironment failed: %v", err)
	}
	if !slices.Equal(p.EnvironmentNames(), []string{"dev", "prod"}) {
		t.Errorf("unexpected environments: %v", p.EnvironmentNames())
	}
	if err := p.AddEnvironment("dev"); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("want ErrDuplicateName, got %v", err)
	}
	if err := p.AddEnvironment(" "); !errors.Is(err, ErrInvalidName) {
		t.Errorf("want ErrInvalidName, got %v", err)
	}
}

func TestDocument_Project(t *testing.T) {
	single := &Document{
		Kind:     KindSingleProject,
		Projects: map[string]*Project{DefaultProjectName: NewProject(DefaultProjectName, "", "dev")},
	}
	if p, err := single.Project("anything"); err != nil || p.Name != DefaultProjectName {
		t.Errorf("single-project document must ignore the name: %v %v", p, err)
	}
	if err := single.AddProject(NewProject("app", "", "dev")); !errors.Is(err, ErrUnsupportedDocument) {
		t.Errorf("want ErrUnsupportedDocument, got %v", err)
	}

	multi := NewMultiProjectDocument()
	if err := multi.AddProject(NewProject("app", ".dmcs/app/migrations", "dev")); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}
	if err := multi.AddProject(NewProject("app", "", "dev")); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("want ErrDuplicateName, got %v", err)
	}
	if _, err := multi.Project(""); !errors.Is(err, ErrNothingSelected) {
		t.Errorf("want ErrNothingSelected, got %v", err)
	}
	if _, err := multi.Project("billing"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("want ErrProjectNotFound, got %v", err)
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"", "  ", "a/b", `a\b`} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q): want ErrInvalidName, got %v", name, err)
		}
	}
	if err := ValidateName("staging-eu"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMigrationError(t *testing.T) {
	cause := fmt.Errorf("%w: boom", ErrMigrationExecutionFailed)
	err := fmt.Errorf("running batch: %w", NewMigrationError("1000_a.mjs", Up, cause))

	var me *MigrationError
	if !errors.As(err, &me) || me.File != "1000_a.mjs" || me.Entrypoint != Up {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(err, ErrMigrationExecutionFailed) {
		t.Error("MigrationError must unwrap to its cause")
	}
	if IsSetupError(err) {
		t.Error("execution failure is not a setup error")
	}
	if !IsSetupError(fmt.Errorf("loading: %w", ErrConfigNotFound)) {
		t.Error("ErrConfigNotFound is a setup error")
	}
}

func TestCompiledUnit_Cleanup(t *testing.T) {
	calls := 0
	cu := NewCompiledUnit(Unit{File: "1000_a.ts"}, "/tmp/.1000_a.cjs", nil, FormatCommonJS, func() error {
		calls++
		return nil
	})
	if !cu.Temporary {
		t.Error("want temporary artifact")
	}
	for i := 0; i < 3; i++ {
		if err := cu.Cleanup(); err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("want cleanup once, got %d", calls)
	}

	var nilUnit *CompiledUnit
	if err := nilUnit.Cleanup(); err != nil {
		t.Errorf("nil Cleanup must be safe: %v", err)
	}
}
