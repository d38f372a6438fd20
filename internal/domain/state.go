package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// DocumentKind は状態ドキュメントの形式を表す。Load時に一度だけ決定される。
type DocumentKind int

const (
	// KindSingleProject は {"migrations": {env: [...]}} 形式。
	KindSingleProject DocumentKind = iota + 1
	// KindMultiProject は {project: {"migrationsFolder": ..., "migrations": {...}}} 形式。
	KindMultiProject
)

func (k DocumentKind) String() string {
	switch k {
	case KindSingleProject:
		return "single-project"
	case KindMultiProject:
		return "multi-project"
	default:
		return "unknown"
	}
}

// DefaultProjectName は単一プロジェクト形式のドキュメントで使われる暗黙のプロジェクト名。
const DefaultProjectName = "default"

// Project はプロジェクトごとのマイグレーションフォルダと環境別の適用履歴を表す。
type Project struct {
	Name             string
	MigrationsFolder string              // 空の場合はルート配下の既定フォルダ
	Environments     map[string][]string // 環境名 → 適用順のファイル名
}

// NewProject は初期環境を一つ持つプロジェクトを生成する。
func NewProject(name, migrationsFolder, initialEnv string) *Project {
	return &Project{
		Name:             name,
		MigrationsFolder: migrationsFolder,
		Environments:     map[string][]string{initialEnv: {}},
	}
}

// EnvironmentNames は環境名を昇順で返す。
func (p *Project) EnvironmentNames() []string {
	names := make([]string, 0, len(p.Environments))
	for name := range p.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Applied は環境の適用済みファイル名のコピーを返す。
func (p *Project) Applied(env string) ([]string, error) {
	applied, ok := p.Environments[env]
	if !ok {
		return nil, fmt.Errorf("%w: %s (project %s)", ErrEnvironmentNotFound, env, p.Name)
	}
	return slices.Clone(applied), nil
}

// MarkApplied は識別子を適用順の末尾に追加する。既に含まれている場合は何もしない。
func (p *Project) MarkApplied(env, file string) error {
	applied, ok := p.Environments[env]
	if !ok {
		return fmt.Errorf("%w: %s (project %s)", ErrEnvironmentNotFound, env, p.Name)
	}
	if slices.Contains(applied, file) {
		return nil
	}
	p.Environments[env] = append(applied, file)
	return nil
}

// MarkReverted は識別子を位置ではなく値で取り除く。
func (p *Project) MarkReverted(env, file string) error {
	applied, ok := p.Environments[env]
	if !ok {
		return fmt.Errorf("%w: %s (project %s)", ErrEnvironmentNotFound, env, p.Name)
	}
	p.Environments[env] = slices.DeleteFunc(slices.Clone(applied), func(f string) bool {
		return f == file
	})
	return nil
}

// AddEnvironment は空の適用履歴を持つ環境を追加する。
func (p *Project) AddEnvironment(env string) error {
	if err := ValidateName(env); err != nil {
		return err
	}
	if _, exists := p.Environments[env]; exists {
		return fmt.Errorf("%w: environment %s already exists", ErrDuplicateName, env)
	}
	if p.Environments == nil {
		p.Environments = make(map[string][]string)
	}
	p.Environments[env] = []string{}
	return nil
}

// Document は永続化される状態ドキュメント全体を表す。
type Document struct {
	Kind     DocumentKind
	Projects map[string]*Project

	// Revision はLoad時点のドキュメント内容のハッシュ。新規ドキュメントでは空。
	Revision string
}

// NewMultiProjectDocument は空の複数プロジェクト形式ドキュメントを生成する。
func NewMultiProjectDocument() *Document {
	return &Document{Kind: KindMultiProject, Projects: make(map[string]*Project)}
}

// ProjectNames はプロジェクト名を昇順で返す。
func (d *Document) ProjectNames() []string {
	names := make([]string, 0, len(d.Projects))
	for name := range d.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Project は名前でプロジェクトを取得する。
// 単一プロジェクト形式では名前に関わらず唯一のプロジェクトを返す。
func (d *Document) Project(name string) (*Project, error) {
	if d.Kind == KindSingleProject {
		return d.Projects[DefaultProjectName], nil
	}
	if name == "" {
		return nil, ErrNothingSelected
	}
	p, ok := d.Projects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return p, nil
}

// AddProject はプロジェクトを追加する。単一プロジェクト形式には追加できない。
func (d *Document) AddProject(p *Project) error {
	if d.Kind != KindMultiProject {
		return fmt.Errorf("%w: projects cannot be added to a %s document", ErrUnsupportedDocument, d.Kind)
	}
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if _, exists := d.Projects[p.Name]; exists {
		return fmt.Errorf("%w: project %s already exists", ErrDuplicateName, p.Name)
	}
	d.Projects[p.Name] = p
	return nil
}

// ValidateName はプロジェクト名・環境名が空でないことを検証する。
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q must not contain path separators", ErrInvalidName, name)
	}
	return nil
}
