package transpile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"

	"dmcs/internal/domain"
)

// Compiler はマイグレーションユニットを単一の実行可能ファイルにバンドルする。
// 相対インポートはバンドルに含め、それ以外（node_modules やビルトイン）は外部参照のまま残す。
type Compiler struct {
	workDir  string
	tsconfig string
}

// NewCompiler は新しいCompilerを生成する。
// tsconfigが空の場合はworkDirから上方向に tsconfig.json を探索する。
func NewCompiler(workDir, tsconfig string) *Compiler {
	return &Compiler{workDir: workDir, tsconfig: tsconfig}
}

// BuildConfig は使用する tsconfig.json のパスを返す。
func (c *Compiler) BuildConfig() (string, error) {
	if c.tsconfig != "" {
		if _, err := os.Stat(c.tsconfig); err != nil {
			return "", fmt.Errorf("%w: %s", domain.ErrBuildConfigNotFound, c.tsconfig)
		}
		return filepath.Abs(c.tsconfig)
	}
	return FindBuildConfig(c.workDir)
}

// Compile はユニットを指定形式の実行可能コードに変換し、ソースと同じフォルダの一時ファイルに書き出す。
// 呼び出し側は成功・失敗に関わらず CompiledUnit.Cleanup を呼ぶ必要がある。
// ESM形式で実行できる素のユニットは変換せずそのまま返す。
func (c *Compiler) Compile(ctx context.Context, unit domain.Unit, format domain.ModuleFormat) (*domain.CompiledUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source := domain.IsSourceFile(unit.File)
	if !source && format == domain.FormatESModule {
		code, err := os.ReadFile(unit.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", unit.File, err)
		}
		return domain.NewCompiledUnit(unit, unit.SourcePath, code, format, nil), nil
	}

	var (
		tsconfig string
		aliases  *pathAliases
		err      error
	)
	if source {
		if tsconfig, err = c.BuildConfig(); err != nil {
			return nil, fmt.Errorf("compiling %s: %w", unit.File, err)
		}
		if aliases, err = loadPathAliases(tsconfig); err != nil {
			return nil, fmt.Errorf("compiling %s: %w", unit.File, err)
		}
	}

	artifact := transientPath(unit, format)
	code, err := bundle(unit, artifact, tsconfig, aliases, format)
	if err != nil {
		slog.ErrorContext(ctx, "failed to bundle migration",
			"operation", "compile",
			"file", unit.File,
			"error", err,
		)
		return nil, err
	}

	if err := os.WriteFile(artifact, code, 0o600); err != nil {
		_ = removeIfExists(artifact)
		return nil, fmt.Errorf("writing compiled migration %s: %w", unit.File, err)
	}
	slog.DebugContext(ctx, "compiled migration",
		"file", unit.File,
		"artifact", artifact,
		"tsconfig", tsconfig,
	)

	return domain.NewCompiledUnit(unit, artifact, code, format, func() error {
		return removeIfExists(artifact)
	}), nil
}

// transientPath はソースの隣に置く一時ファイル名を返す。
// ドットで始まるためマイグレーション一覧には含まれない。
func transientPath(unit domain.Unit, format domain.ModuleFormat) string {
	ext := ".cjs"
	if format == domain.FormatESModule {
		ext = ".mjs"
	}
	base := strings.TrimSuffix(filepath.Base(unit.SourcePath), filepath.Ext(unit.SourcePath))
	return filepath.Join(filepath.Dir(unit.SourcePath), "."+base+".dmcs-"+uuid.NewString()+ext)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// resolveFailure はプラグインから報告された最初の解決エラーを保持する。
// esbuildは複数のゴルーチンからコールバックを呼ぶ。
type resolveFailure struct {
	mu  sync.Mutex
	err error
}

func (f *resolveFailure) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *resolveFailure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func bundle(unit domain.Unit, outfile, tsconfig string, aliases *pathAliases, format domain.ModuleFormat) ([]byte, error) {
	failure := &resolveFailure{}

	opts := api.BuildOptions{
		EntryPoints:   []string{unit.SourcePath},
		Bundle:        true,
		Write:         false,
		Outfile:       outfile,
		Platform:      api.PlatformNode,
		Tsconfig:      tsconfig,
		AbsWorkingDir: filepath.Dir(unit.SourcePath),
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{resolverPlugin(aliases, failure)},
	}
	if format == domain.FormatESModule {
		opts.Format = api.FormatESModule
		opts.Target = api.ESNext
		opts.Sourcemap = api.SourceMapInline
	} else {
		// gojaが未対応の構文（?. や ?? など）を下げる
		opts.Format = api.FormatCommonJS
		opts.Target = api.ES2017
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		if err := failure.get(); err != nil {
			return nil, fmt.Errorf("compiling %s: %w", unit.File, err)
		}
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			if m.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			} else {
				msgs = append(msgs, m.Text)
			}
		}
		return nil, fmt.Errorf("compiling %s: %s", unit.File, strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return nil, fmt.Errorf("compiling %s: no output produced", unit.File)
	}
	return result.OutputFiles[0].Contents, nil
}

// resolverPlugin は相対インポートを ResolveImport の規則で解決し、
// tsconfig のエイリアスに一致しない裸のインポートを外部参照にする。
func resolverPlugin(aliases *pathAliases, failure *resolveFailure) api.Plugin {
	return api.Plugin{
		Name: "dmcs-resolve",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint {
					return api.OnResolveResult{}, nil
				}

				if isRelativeImport(args.Path) {
					path, err := ResolveImport(args.ResolveDir, args.Path)
					if err != nil {
						failure.set(err)
						return api.OnResolveResult{}, err
					}
					return api.OnResolveResult{Path: path}, nil
				}

				path, matched, err := aliases.resolve(args.Path)
				if err != nil {
					failure.set(err)
					return api.OnResolveResult{}, err
				}
				if matched {
					return api.OnResolveResult{Path: path}, nil
				}

				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}
}
