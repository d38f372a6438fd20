// Package transpile はTypeScriptなどのマイグレーションユニットを実行可能な単一ファイルに変換する。
package transpile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"

	"dmcs/internal/domain"
)

// BuildConfigName は上方向に探索するビルド設定ファイル名。
const BuildConfigName = "tsconfig.json"

// ResolveExtensions は拡張子なしのインポートに試す拡張子（優先順）。
var ResolveExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".mjs", ".js", ".cjs", ".json"}

// ResolveImport は相対インポートをファイルパスに解決する。
// 完全一致、各拡張子の付与、/index + 各拡張子の順に試す。
func ResolveImport(dir, spec string) (string, error) {
	base := spec
	if !filepath.IsAbs(base) {
		base = filepath.Join(dir, spec)
	}

	candidates := make([]string, 0, 1+2*len(ResolveExtensions))
	candidates = append(candidates, base)
	for _, ext := range ResolveExtensions {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range ResolveExtensions {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q from %s", domain.ErrImportNotResolved, spec, dir)
}

// isRelativeImport は相対・絶対パスによるインポートか判定する。
func isRelativeImport(spec string) bool {
	return spec == "." || spec == ".." ||
		strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") ||
		filepath.IsAbs(spec)
}

// FindBuildConfig は start から上方向に tsconfig.json を探す。
func FindBuildConfig(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}
	for {
		candidate := filepath.Join(dir, BuildConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s in %s or any parent directory", domain.ErrBuildConfigNotFound, BuildConfigName, start)
		}
		dir = parent
	}
}

// pathAlias は tsconfig の compilerOptions.paths の1エントリ。
type pathAlias struct {
	prefix  string
	suffix  string
	star    bool
	targets []string
}

// pathAliases は tsconfig のパスエイリアス（例: "@/*" → "src/*"）。
type pathAliases struct {
	baseDir string
	aliases []pathAlias
}

// loadPathAliases は tsconfig.json（コメント・末尾カンマ可）からパスエイリアスを読み込む。
func loadPathAliases(tsconfigPath string) (*pathAliases, error) {
	data, err := os.ReadFile(tsconfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", tsconfigPath, err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", tsconfigPath, err)
	}

	var tc struct {
		CompilerOptions struct {
			BaseURL string              `json:"baseUrl"`
			Paths   map[string][]string `json:"paths"`
		} `json:"compilerOptions"`
	}
	if err := json.Unmarshal(std, &tc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", tsconfigPath, err)
	}

	pa := &pathAliases{baseDir: filepath.Join(filepath.Dir(tsconfigPath), tc.CompilerOptions.BaseURL)}
	for pattern, targets := range tc.CompilerOptions.Paths {
		if len(targets) == 0 {
			continue
		}
		a := pathAlias{prefix: pattern, targets: targets}
		if before, after, ok := strings.Cut(pattern, "*"); ok {
			a.prefix, a.suffix, a.star = before, after, true
		}
		pa.aliases = append(pa.aliases, a)
	}
	// 最長一致を優先する
	sort.Slice(pa.aliases, func(i, j int) bool {
		return len(pa.aliases[i].prefix) > len(pa.aliases[j].prefix)
	})
	return pa, nil
}

// resolve はエイリアスに一致するインポートを解決する。一致しない場合 ok=false。
func (pa *pathAliases) resolve(spec string) (path string, ok bool, err error) {
	if pa == nil {
		return "", false, nil
	}
	for _, a := range pa.aliases {
		var wildcard string
		switch {
		case a.star:
			if len(spec) < len(a.prefix)+len(a.suffix) ||
				!strings.HasPrefix(spec, a.prefix) || !strings.HasSuffix(spec, a.suffix) {
				continue
			}
			wildcard = spec[len(a.prefix) : len(spec)-len(a.suffix)]
		case spec != a.prefix:
			continue
		}

		for _, target := range a.targets {
			resolved, rerr := ResolveImport(pa.baseDir, strings.Replace(target, "*", wildcard, 1))
			if rerr == nil {
				return resolved, true, nil
			}
		}
		return "", true, fmt.Errorf("%w: %q via tsconfig paths %q", domain.ErrImportNotResolved, spec, a.prefix+starIf(a.star)+a.suffix)
	}
	return "", false, nil
}

func starIf(star bool) string {
	if star {
		return "*"
	}
	return ""
}
