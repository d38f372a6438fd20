package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"dmcs/internal/domain"
)

var (
	tagInfo     = color.New(color.FgBlue, color.Bold)
	tagApplied  = color.New(color.FgGreen, color.Bold)
	tagReverted = color.New(color.FgMagenta, color.Bold)
	tagPending  = color.New(color.FgCyan, color.Bold)
	tagCreated  = color.New(color.FgGreen)
	tagWarn     = color.New(color.FgYellow)
	tagError    = color.New(color.FgRed, color.Bold)
)

// reporter はオペレーター向けの一行ステータスを出力する。
type reporter struct {
	out    io.Writer
	errOut io.Writer
}

func newReporter(out, errOut io.Writer) *reporter {
	return &reporter{out: out, errOut: errOut}
}

func (r *reporter) line(w io.Writer, tag *color.Color, label, msg string) {
	fmt.Fprintf(w, "%s %s\n", tag.Sprintf("%-8s", label), msg)
}

func (r *reporter) info(msg string)      { r.line(r.out, tagInfo, "INFO", msg) }
func (r *reporter) applied(file string)  { r.line(r.out, tagApplied, "APPLIED", file) }
func (r *reporter) reverted(file string) { r.line(r.out, tagReverted, "REVERTED", file) }
func (r *reporter) pending(file string)  { r.line(r.out, tagPending, "PENDING", file) }
func (r *reporter) created(path string)  { r.line(r.out, tagCreated, "CREATED", path) }
func (r *reporter) warn(msg string)      { r.line(r.errOut, tagWarn, "WARN", msg) }

// fail はエラーを出力する。マイグレーションの失敗では対象ファイルも示す。
func (r *reporter) fail(err error) {
	var me *domain.MigrationError
	if errors.As(err, &me) {
		r.line(r.errOut, tagError, "ERROR", fmt.Sprintf("%s (%s)", me.File, me.Entrypoint))
		fmt.Fprintf(r.errOut, "%v\n", me.Err)
		return
	}
	r.line(r.errOut, tagError, "ERROR", err.Error())
}
