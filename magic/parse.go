// Package magic parses the directive header of a submitted statement.
//
// Directives are lines starting with % that precede any code:
//
//	%use R
//	%get rn --from Python3
//	summary(rn)
//
// The bare line "clear" clears the console history. Unknown %magics are not
// directives; they start the code handed to the runtime.
package magic

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/pflag"
)

// ErrMalformedDirective reports a directive with bad operands or one that
// follows code.
var ErrMalformedDirective = errors.New("malformed directive")

const clearCommand = "clear"

type parser func(operands string) ([]Directive, error)

var parsers = map[string]parser{
	"use":     parseUse,
	"get":     parseGet,
	"put":     parsePut,
	"preview": parsePreview,
	"with":    parseWith,
}

// Parse splits text into its directives, in source order, and the residual
// code. Blank and # comment lines in the header are dropped.
func Parse(text string) ([]Directive, string, error) {
	lines := strings.Split(text, "\n")

	var directives []Directive
	start := len(lines)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			continue
		case trimmed == clearCommand:
			directives = append(directives, ClearHistory{})
			continue
		}

		name, operands, known := split(trimmed)
		if !known {
			start = i
			break
		}

		parsed, err := parsers[name](operands)
		if err != nil {
			return nil, "", fmt.Errorf("%w: line %d: %%%s: %v", ErrMalformedDirective, i+1, name, err)
		}
		directives = append(directives, parsed...)
	}

	// Directives may not follow code.
	for i := start; i < len(lines); i++ {
		if name, _, known := split(strings.TrimSpace(lines[i])); known {
			return nil, "", fmt.Errorf("%w: line %d: %%%s after code", ErrMalformedDirective, i+1, name)
		}
	}

	residual := ""
	if start < len(lines) {
		residual = strings.TrimRight(strings.Join(lines[start:], "\n"), " \t\r\n")
	}
	return directives, residual, nil
}

// split reports whether line is a known directive, returning its name and
// raw operands. Operands are tokenized by the directive parsers so that
// quoting errors surface as malformed directives.
func split(line string) (name, operands string, known bool) {
	if !strings.HasPrefix(line, "%") {
		return "", "", false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", "", false
	}
	if _, ok := parsers[fields[0]]; !ok {
		return "", "", false
	}
	return fields[0], strings.TrimSpace(strings.TrimPrefix(line[1:], fields[0])), true
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	return fs
}

func parseUse(operands string) ([]Directive, error) {
	words, err := shellquote.Split(operands)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 || strings.HasPrefix(words[0], "-") {
		return nil, errors.New("kernel name required")
	}
	use := UseKernel{Kernel: words[0]}
	if len(words) > 1 {
		use.Qualifiers = words[1:]
	}
	return []Directive{use}, nil
}

func parseGet(operands string) ([]Directive, error) {
	names, from, err := transferOperands("get", "from", "f", operands)
	if err != nil {
		return nil, err
	}
	out := make([]Directive, len(names))
	for i, name := range names {
		out[i] = GetVariable{Name: name, From: from}
	}
	return out, nil
}

func parsePut(operands string) ([]Directive, error) {
	names, to, err := transferOperands("put", "to", "t", operands)
	if err != nil {
		return nil, err
	}
	out := make([]Directive, len(names))
	for i, name := range names {
		out[i] = PutVariable{Name: name, To: to}
	}
	return out, nil
}

func transferOperands(name, flag, short, operands string) ([]string, string, error) {
	words, err := shellquote.Split(operands)
	if err != nil {
		return nil, "", err
	}

	fs := newFlagSet(name)
	kernel := fs.StringP(flag, short, "", "kernel to transfer "+flag)
	if err := fs.Parse(words); err != nil {
		return nil, "", err
	}
	if *kernel == "" {
		return nil, "", fmt.Errorf("--%s KERNEL required", flag)
	}
	if fs.NArg() == 0 {
		return nil, "", errors.New("variable name required")
	}
	return fs.Args(), *kernel, nil
}

func parsePreview(operands string) ([]Directive, error) {
	words, err := shellquote.Split(operands)
	if err != nil {
		return nil, err
	}

	fs := newFlagSet("preview")
	named := fs.StringArrayP("name", "n", nil, "variable to preview")
	if err := fs.Parse(words); err != nil {
		return nil, err
	}

	var names []string
	names = append(names, fs.Args()...)
	names = append(names, *named...)
	return []Directive{Preview{Names: names}}, nil
}

func parseWith(operands string) ([]Directive, error) {
	words, err := shellquote.Split(operands)
	if err != nil {
		return nil, err
	}

	fs := newFlagSet("with")
	in := fs.StringSliceP("in", "i", nil, "variables copied into the kernel")
	out := fs.StringSliceP("out", "o", nil, "variables copied back")
	if err := fs.Parse(words); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
		return nil, errors.New("kernel name required")
	case 1:
	default:
		return nil, fmt.Errorf("unexpected operands %v", fs.Args()[1:])
	}
	return []Directive{With{Kernel: fs.Arg(0), In: *in, Out: *out}}, nil
}
