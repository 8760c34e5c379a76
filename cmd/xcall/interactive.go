package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

// interactiveModel lists the exports of one module, reads arguments for the
// selected one and shows the result of calling it through the bridge.
type interactiveModel struct {
	ctx      context.Context
	err      error
	sess     *session
	module   string
	result   string
	funcs    []plugin.Export
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	loaded   bool
}

func newInteractiveModel(ctx context.Context, sess *session, module string) *interactiveModel {
	return &interactiveModel{
		ctx:    ctx,
		sess:   sess,
		module: module,
		state:  stateSelectFunc,
	}
}

type loadedMsg struct {
	err   error
	funcs []plugin.Export
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadExports
}

func (m *interactiveModel) loadExports() tea.Msg {
	name := m.sess.rt.Name()
	p, _, err := m.sess.bridge.Registry().Get(name)
	if err != nil {
		return loadedMsg{err: err}
	}
	lister, ok := p.(plugin.Lister)
	if !ok {
		return loadedMsg{err: errors.InvalidInput(errors.PhaseResolve, "plugin "+name+" cannot list its exports")}
	}
	funcs, err := lister.Exports(m.ctx, m.module)
	return loadedMsg{funcs: funcs, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		m.loaded = true
		m.funcs = msg.funcs
		m.err = msg.err

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, d := range f.Params {
		ti := textinput.New()
		ti.Placeholder = d.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	args, err := parseArgs(values, f.Params)
	if err != nil {
		return callResultMsg{err: err}
	}

	caller, err := m.sess.rt.LoadModule(m.module).Load(m.ctx, "callable="+f.Name, f.Params, f.Returns)
	if err != nil {
		return callResultMsg{err: err}
	}
	results, err := caller.Call(m.ctx, args...)
	if err != nil {
		return callResultMsg{err: err}
	}

	var b strings.Builder
	(&printer{w: &b}).results(f.Returns, results)
	if b.Len() == 0 {
		b.WriteString("(no results)\n")
	}
	return callResultMsg{result: b.String()}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(m.sess.rt.Name()))
	b.WriteString(" ")
	b.WriteString(m.module)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module exports no callable functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatExport(f)))
			} else {
				b.WriteString("  " + formatExport(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", entityStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", entityStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatExport(f plugin.Export) string {
	return entityStyle.Render(f.Name) +
		typeStyle.Render("("+types.Join(f.Params)+") -> ("+types.Join(f.Returns)+")")
}

func runInteractive(ctx context.Context, logger *zap.Logger, configFile, name, module string) error {
	sess, err := openSession(ctx, logger, configFile, name)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	p := tea.NewProgram(newInteractiveModel(ctx, sess, module), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
