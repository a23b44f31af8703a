package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"quantsignal/internal/pkg/symbol"
)

// prompter 是交互式回测使用的极简行输入。
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints the question and returns the trimmed answer, or def on empty input.
func (p *prompter) ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

func (p *prompter) confirm(question string) (bool, error) {
	ans, err := p.ask(question+" (y/N)", "")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(ans) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func pickInstruments(flag, fallback []string) []string {
	if len(flag) > 0 {
		return symbol.NormalizeList(flag)
	}
	return append([]string(nil), fallback...)
}
