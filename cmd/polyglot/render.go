package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/core/protocol"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// badge renders a kernel name in the kernel's color.
func badge(name string, color catalog.Color) string {
	style := lipgloss.NewStyle().Bold(true)
	if color != "" {
		style = style.Foreground(lipgloss.Color(string(color)))
	}
	return style.Render(name)
}

// writeOutputs prints outputs in order. Stderr streams and errors go to
// errOut.
func writeOutputs(out, errOut io.Writer, outputs []protocol.Output) {
	for _, o := range outputs {
		text := o.PlainText()
		if text == "" {
			continue
		}
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}

		switch {
		case o.Type == protocol.OutputError:
			fmt.Fprint(errOut, errorStyle.Render(strings.TrimSuffix(text, "\n"))+"\n")
		case o.Type == protocol.OutputStream && o.Name == "stderr":
			fmt.Fprint(errOut, text)
		default:
			fmt.Fprint(out, text)
		}
	}
}
