package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"

	"dmcs/internal/domain"
)

// GojaRunner はユニットをプロセス内のJavaScriptランタイムで実行する。
// 呼び出しごとに新しいランタイム・イベントループ・モジュールキャッシュを作る。
type GojaRunner struct {
	caps Capabilities
}

// NewGojaRunner は新しいGojaRunnerを生成する。
func NewGojaRunner(caps Capabilities) *GojaRunner {
	return &GojaRunner{caps: caps}
}

// Format はCommonJS。
func (r *GojaRunner) Format() domain.ModuleFormat {
	return domain.FormatCommonJS
}

// Run はユニットを読み込み、エントリポイントを呼び出す。
// 戻り値が Promise の場合、イベントループが空になった時点で決着していなければ失敗とする。
func (r *GojaRunner) Run(ctx context.Context, unit *domain.CompiledUnit, entry domain.Entrypoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	registry := require.NewRegistry(require.WithLoader(restrictedLoader(allowedRoots(unit), unit)))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&printer{
		stdout: r.caps.stdout(),
		stderr: r.caps.stderr(),
	}))
	processModule := func(vm *goja.Runtime, module *goja.Object) {
		_ = module.Set("exports", vm.Get("process"))
	}
	registry.RegisterNativeModule("process", processModule)
	registry.RegisterNativeModule("node:process", processModule)

	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(false),
	)

	var current atomic.Pointer[goja.Runtime]
	finished := make(chan error, 1)
	go func() {
		var (
			promise *goja.Promise
			err     error
		)
		loop.Run(func(vm *goja.Runtime) {
			current.Store(vm)
			promise, err = r.invoke(vm, unit, entry)
		})
		if err == nil && promise != nil {
			err = settled(promise)
		}
		finished <- err
	}()

	select {
	case err := <-finished:
		return err
	case <-ctx.Done():
		if vm := current.Load(); vm != nil {
			vm.Interrupt(ctx.Err())
		}
		loop.StopNoWait()
		return fmt.Errorf("%w: %v", domain.ErrMigrationExecutionFailed, ctx.Err())
	}
}

// invoke はイベントループ上でユニットを読み込みエントリポイントを呼ぶ。
func (r *GojaRunner) invoke(vm *goja.Runtime, unit *domain.CompiledUnit, entry domain.Entrypoint) (promise *goja.Promise, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrMigrationExecutionFailed, p)
		}
	}()

	if err := vm.Set("process", newProcessObject(vm, r.caps, unit)); err != nil {
		return nil, err
	}
	console.Enable(vm)

	exports, err := loadModule(vm, unit.Path)
	if err != nil {
		return nil, executionError(err)
	}

	fn, this, ok := lookupEntrypoint(exports, entry)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not export an invocable %q", domain.ErrEntrypointMissing, unit.File, entry)
	}

	result, err := fn(this)
	if err != nil {
		return nil, executionError(err)
	}
	if result != nil {
		if p, ok := result.Export().(*goja.Promise); ok {
			return p, nil
		}
	}
	return nil, nil
}

func loadModule(vm *goja.Runtime, path string) (*goja.Object, error) {
	req, ok := goja.AssertFunction(vm.Get("require"))
	if !ok {
		return nil, errors.New("require is not available")
	}
	v, err := req(goja.Undefined(), vm.ToValue(path))
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.ToObject(vm), nil
}

// lookupEntrypoint は名前付きエクスポート、なければ default エクスポートのプロパティを探す。
func lookupEntrypoint(exports *goja.Object, entry domain.Entrypoint) (goja.Callable, goja.Value, bool) {
	if exports == nil {
		return nil, nil, false
	}
	if fn, ok := goja.AssertFunction(exports.Get(string(entry))); ok {
		return fn, exports, true
	}
	if def, ok := exports.Get("default").(*goja.Object); ok {
		if fn, ok := goja.AssertFunction(def.Get(string(entry))); ok {
			return fn, def, true
		}
	}
	return nil, nil, false
}

func settled(p *goja.Promise) error {
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return nil
	case goja.PromiseStateRejected:
		return fmt.Errorf("%w: %s", domain.ErrMigrationExecutionFailed, describe(p.Result()))
	default:
		return fmt.Errorf("%w: entrypoint promise never settled", domain.ErrMigrationExecutionFailed)
	}
}

func executionError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return fmt.Errorf("%w: %s", domain.ErrMigrationExecutionFailed, describe(ex.Value()))
	}
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return fmt.Errorf("%w: interrupted: %v", domain.ErrMigrationExecutionFailed, ie.Value())
	}
	return fmt.Errorf("%w: %v", domain.ErrMigrationExecutionFailed, err)
}

// describe はJavaScriptの値を、Errorであればスタックトレース付きで文字列にする。
func describe(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) && !goja.IsNull(stack) {
			return stack.String()
		}
	}
	return v.String()
}

// restrictedLoader は許可されたフォルダ外のファイルを存在しないものとして扱う。
// スクリプトには __filename と __dirname を渡す。変換済みユニットでは元のソースのパスになる。
func restrictedLoader(roots []string, unit *domain.CompiledUnit) require.SourceLoader {
	return func(path string) ([]byte, error) {
		if !within(roots, path) {
			return nil, require.ModuleFileDoesNotExistError
		}
		src, err := require.DefaultSourceLoader(path)
		if err != nil || strings.EqualFold(filepath.Ext(path), ".json") {
			return src, err
		}
		filename := path
		if unit.SourcePath != "" && filepath.Clean(path) == filepath.Clean(unit.Path) {
			filename = unit.SourcePath
		}
		return withModulePaths(src, filename), nil
	}
}

// withModulePaths はソースを __filename, __dirname を引数に取る関数で包む。
// 先頭に改行を入れないので、スタックトレースの行番号は変わらない。
func withModulePaths(src []byte, filename string) []byte {
	name, _ := json.Marshal(filename)
	dir, _ := json.Marshal(filepath.Dir(filename))

	var b bytes.Buffer
	b.WriteString("(function (__filename, __dirname) {")
	b.Write(src)
	fmt.Fprintf(&b, "\n}).call(this, %s, %s);", name, dir)
	return b.Bytes()
}

// newProcessObject はユニットに公開する process オブジェクトを作る。
func newProcessObject(vm *goja.Runtime, caps Capabilities, unit *domain.CompiledUnit) *goja.Object {
	env := vm.NewObject()
	for k, v := range caps.EnvMap() {
		_ = env.Set(k, v)
	}

	proc := vm.NewObject()
	_ = proc.Set("env", env)
	_ = proc.Set("argv", vm.NewArray("dmcs", unit.SourcePath))
	_ = proc.Set("platform", nodePlatform())
	_ = proc.Set("exitCode", 0)
	_ = proc.Set("cwd", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(unit.ProjectDir)
	})
	return proc
}

func nodePlatform() string {
	if runtime.GOOS == "windows" {
		return "win32"
	}
	return runtime.GOOS
}

// printer は console の出力先。
type printer struct {
	stdout io.Writer
	stderr io.Writer
}

func (p *printer) Log(s string)   { fmt.Fprintln(p.stdout, s) }
func (p *printer) Warn(s string)  { fmt.Fprintln(p.stderr, s) }
func (p *printer) Error(s string) { fmt.Fprintln(p.stderr, s) }
