package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"dmcs/internal/domain"
)

// exitEntrypointMissing はブートストラップがエントリポイントを見つけられなかった場合の終了コード。
const exitEntrypointMissing = 3

// nodeBootstrap はユニットを動的インポートしてエントリポイントを待つESMスクリプト。
const nodeBootstrap = `
import { dirname } from "node:path";
import { pathToFileURL } from "node:url";
const [file, entry, source] = process.argv.slice(1);
process.argv = [process.argv[0], source];
globalThis.__filename = source;
globalThis.__dirname = dirname(source);
const mod = await import(pathToFileURL(file).href);
let fn = mod[entry];
let self = mod;
if (typeof fn !== "function" && mod.default && typeof mod.default[entry] === "function") {
  self = mod.default;
  fn = mod.default[entry];
}
if (typeof fn !== "function") {
  console.error("entrypoint " + JSON.stringify(entry) + " is not exported as a function");
  process.exit(3);
}
try {
  await fn.call(self);
} catch (err) {
  console.error(err && err.stack ? err.stack : String(err));
  process.exit(1);
}
`

// NodeRunner はユニットごとに新しい node プロセスを起動して実行する。
type NodeRunner struct {
	nodePath string
	caps     Capabilities
}

// NewNodeRunner は新しいNodeRunnerを生成する。
func NewNodeRunner(nodePath string, caps Capabilities) *NodeRunner {
	if nodePath == "" {
		nodePath = "node"
	}
	return &NodeRunner{nodePath: nodePath, caps: caps}
}

// Format はESモジュール。
func (r *NodeRunner) Format() domain.ModuleFormat {
	return domain.FormatESModule
}

// Run は node を起動し、終了を待つ。コンテキストがキャンセルされた場合はプロセスを強制終了する。
func (r *NodeRunner) Run(ctx context.Context, unit *domain.CompiledUnit, entry domain.Entrypoint) error {
	path, err := exec.LookPath(r.nodePath)
	if err != nil {
		return fmt.Errorf("%w: node runtime not found: %v", domain.ErrMigrationExecutionFailed, err)
	}

	stderrTail := &tailBuffer{limit: 4096}
	cmd := exec.CommandContext(ctx, path,
		"--enable-source-maps",
		"--input-type=module",
		"-e", nodeBootstrap,
		unit.Path, string(entry), sourcePath(unit),
	)
	cmd.Dir = unit.ProjectDir
	cmd.Env = r.caps.Environ()
	cmd.Stdout = r.caps.stdout()
	cmd.Stderr = io.MultiWriter(r.caps.stderr(), stderrTail)
	cmd.WaitDelay = 5 * time.Second

	err = cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrMigrationExecutionFailed, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(stderrTail.String())
		if exitErr.ExitCode() == exitEntrypointMissing {
			return fmt.Errorf("%w: %s", domain.ErrEntrypointMissing, msg)
		}
		if msg == "" {
			msg = exitErr.Error()
		}
		return fmt.Errorf("%w: %s", domain.ErrMigrationExecutionFailed, msg)
	}
	return fmt.Errorf("%w: %v", domain.ErrMigrationExecutionFailed, err)
}

// sourcePath はユニットに見せるファイルパス。変換済みの場合は元のソース。
func sourcePath(unit *domain.CompiledUnit) string {
	if unit.SourcePath != "" {
		return unit.SourcePath
	}
	return unit.Path
}

// tailBuffer は書き込まれた内容の末尾 limit バイトだけを保持する。
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
