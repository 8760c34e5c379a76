package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/runtime"
	"github.com/wippyai/xcall/types"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	entityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// printer writes call results, styled when w is a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(f *os.File) *printer {
	return &printer{w: f, styled: term.IsTerminal(int(f.Fd()))}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) binding(cc *runtime.CallContext) {
	fmt.Fprintf(p.w, "%s %s %s\n",
		p.render(titleStyle, cc.Plugin()),
		p.render(entityStyle, cc.ModulePath()+" "+cc.Entity().String()),
		p.render(typeStyle, "("+types.Join(cc.Params())+") -> ("+types.Join(cc.Returns())+")"))
	fmt.Fprintln(p.w, p.render(helpStyle, "dispatch "+cc.Shape().String()))
}

func (p *printer) results(declared []types.Descriptor, values []any) {
	for i, v := range values {
		fmt.Fprintf(p.w, "%s %s\n",
			p.render(typeStyle, declared[i].String()),
			p.render(resultStyle, formatValue(v, declared[i])))
	}
}

func (p *printer) failure(err error) {
	text := err.Error()
	if msg, ok := errors.ForeignMessage(err); ok {
		text = "foreign call failed: " + msg
	}
	fmt.Fprintln(os.Stderr, p.render(errorStyle, "Error: "+text))
}

func formatValue(v any, d types.Descriptor) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	case uint8:
		if d.Kind == types.KindChar8 {
			return fmt.Sprintf("%q", rune(x))
		}
	case uint16:
		if d.Kind == types.KindChar16 {
			return fmt.Sprintf("%q", rune(x))
		}
	case int32:
		if d.Kind == types.KindChar32 {
			return fmt.Sprintf("%q", x)
		}
	case handle.Handle:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
