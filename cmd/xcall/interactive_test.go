package main

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/types"
)

func newTestModel(t *testing.T) *interactiveModel {
	t.Helper()
	ctx := context.Background()
	sess, err := openSession(ctx, zap.NewNop(), writeConfig(t), "calc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sess.Close(ctx) })

	m := newInteractiveModel(ctx, sess, "math")
	m.Update(m.loadExports())
	if m.err != nil {
		t.Fatal(m.err)
	}
	return m
}

func TestInteractiveListsExports(t *testing.T) {
	m := newTestModel(t)
	want := []plugin.Export{{
		Name:      "add",
		Signature: plugin.Signature{Params: []types.Descriptor{types.Int32, types.Int32}, Returns: []types.Descriptor{types.Int32}},
	}}
	if diff := cmp.Diff(want, m.funcs); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if view := m.View(); !strings.Contains(view, "add") || !strings.Contains(view, "int32") {
		t.Errorf("view does not show the export:\n%s", view)
	}
}

func TestInteractiveCall(t *testing.T) {
	m := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateInputArgs || len(m.inputs) != 2 {
		t.Fatalf("state=%d inputs=%d, want argument entry for two values", m.state, len(m.inputs))
	}
	m.inputs[0].SetValue("40")
	m.inputs[1].SetValue("2")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter did not start the call")
	}
	m.Update(cmd())
	if m.state != stateShowResult {
		t.Fatalf("state = %d, want result", m.state)
	}
	if m.err != nil {
		t.Fatal(m.err)
	}
	if m.result != "int32 42\n" {
		t.Errorf("result = %q", m.result)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateSelectFunc || m.result != "" {
		t.Errorf("enter on a result did not return to the list")
	}
}

func TestInteractiveBadArgument(t *testing.T) {
	m := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.inputs[0].SetValue("forty")
	m.inputs[1].SetValue("2")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(cmd())
	if m.err == nil {
		t.Fatal("expected a parse error")
	}
	if view := m.View(); !strings.Contains(view, "Error") {
		t.Errorf("view does not show the error:\n%s", view)
	}
}

func TestInteractiveQKeyInInput(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if m.state != stateInputArgs {
		t.Fatalf("q left argument entry")
	}
	if got := m.inputs[0].Value(); got != "q" {
		t.Errorf("input = %q, want the typed q", got)
	}
}
