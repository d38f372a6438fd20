package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// errCancelled は入力が閉じられた（Ctrl-D など）ことを表す。終了コードは0。
var errCancelled = errors.New("user cancelled")

// prompter はフラグで与えられなかった値を対話的に尋ねる。
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// readLine は一行読み込む。何も読めずに入力が終わった場合は errCancelled。
func (p *prompter) readLine() (string, error) {
	text, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && text != "" {
			return strings.TrimSpace(text), nil
		}
		if errors.Is(err, io.EOF) {
			return "", errCancelled
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ask はメッセージを表示して回答を返す。空の回答では initial を返す。
func (p *prompter) ask(message, initial string) (string, error) {
	if initial != "" {
		fmt.Fprintf(p.out, "%s (%s) ", message, initial)
	} else {
		fmt.Fprintf(p.out, "%s ", message)
	}
	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return initial, nil
	}
	return answer, nil
}

// choose は番号付きの選択肢を表示し、番号または名前で選ばせる。
// 空の回答では空文字を返す。不正な回答には再入力を求める。
func (p *prompter) choose(message string, choices []string) (string, error) {
	if len(choices) == 0 {
		return "", nil
	}
	for {
		fmt.Fprintln(p.out, message)
		for i, choice := range choices {
			fmt.Fprintf(p.out, "  %d) %s\n", i+1, choice)
		}
		fmt.Fprint(p.out, "> ")

		answer, err := p.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			return "", nil
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(choices) {
			return choices[n-1], nil
		}
		if slices.Contains(choices, answer) {
			return answer, nil
		}
		fmt.Fprintf(p.out, "%q is not one of the choices\n", answer)
	}
}
