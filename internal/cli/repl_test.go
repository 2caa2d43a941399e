package cli

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExec records which commands the REPL dispatched.
type stubExec struct {
	calls   []string
	syncErr error
}

func (s *stubExec) record(call string) { s.calls = append(s.calls, call) }

func (s *stubExec) Status(context.Context) error { s.record("status"); return nil }
func (s *stubExec) AddContainer(_ context.Context, order, id string) error {
	s.record("addcontainer " + order + " " + id)
	return nil
}
func (s *stubExec) AddMaterial(_ context.Context, order, material string, kg float64) error {
	s.record("addmaterial " + order + " " + material)
	return nil
}
func (s *stubExec) Sign(_ context.Context, order, signer string) error {
	s.record("sign " + order + " " + signer)
	return nil
}
func (s *stubExec) StartService(_ context.Context, order, st string) error {
	s.record("start " + order + " " + st)
	return nil
}
func (s *stubExec) StopService(_ context.Context, order, st string) error {
	s.record("stop " + order + " " + st)
	return nil
}
func (s *stubExec) Adjust(_ context.Context, order, st, start, end string) error {
	s.record("adjust " + order + " " + st + " " + start + "-" + end)
	return nil
}
func (s *stubExec) Entries(_ context.Context, order string) error {
	s.record("entries " + order)
	return nil
}
func (s *stubExec) Issues(_ context.Context, order string) error {
	s.record("issues " + order)
	return nil
}
func (s *stubExec) Complete(_ context.Context, order string, ack bool) error {
	if ack {
		s.record("complete " + order + " ack")
	} else {
		s.record("complete " + order)
	}
	return nil
}
func (s *stubExec) Sync(context.Context) error { s.record("sync"); return s.syncErr }

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	orig := printlnFn
	t.Cleanup(func() { printlnFn = orig })

	lines := &[]string{}
	printlnFn = func(a ...any) (int, error) {
		parts := make([]string, len(a))
		for i, v := range a {
			parts[i] = strings.TrimSpace(toString(v))
		}
		*lines = append(*lines, strings.Join(parts, " "))
		return 0, nil
	}
	return lines
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return ""
}

func runScript(t *testing.T, a execIface, script string) {
	t.Helper()
	runREPL(context.Background(), a, func() string { return "test" }, bufio.NewScanner(strings.NewReader(script)))
}

func TestREPL_DispatchesCommands(t *testing.T) {
	captureOutput(t)
	stub := &stubExec{}

	runScript(t, stub, strings.Join([]string{
		"status",
		"addcontainer A-1 C-9",
		"addmaterial A-1 absorbent 2.5",
		"sign A-1 Jane Doe",
		"start A-1 collection",
		"stop A-1 collection",
		"adjust A-1 collection 10:00 10:45",
		"entries A-1",
		"issues A-1",
		"complete A-1 ack",
		"sync",
		"exit",
	}, "\n"))

	assert.Equal(t, []string{
		"status",
		"addcontainer A-1 C-9",
		"addmaterial A-1 absorbent",
		"sign A-1 Jane Doe",
		"start A-1 collection",
		"stop A-1 collection",
		"adjust A-1 collection 10:00-10:45",
		"entries A-1",
		"issues A-1",
		"complete A-1 ack",
		"sync",
	}, stub.calls)
}

func TestREPL_UsageAndUnknownCommands(t *testing.T) {
	lines := captureOutput(t)
	stub := &stubExec{}

	runScript(t, stub, strings.Join([]string{
		"addcontainer A-1",
		"frobnicate",
		"",
		"exit",
	}, "\n"))

	assert.Empty(t, stub.calls, "malformed commands must not dispatch")

	joined := strings.Join(*lines, "\n")
	assert.Contains(t, joined, "Usage: addcontainer")
	assert.Contains(t, joined, "Unknown command: frobnicate")
}

func TestREPL_CommandErrorsKeepLoopAlive(t *testing.T) {
	lines := captureOutput(t)
	stub := &stubExec{syncErr: errors.New("device is offline")}

	runScript(t, stub, "sync\nstatus\nexit\n")

	require.Equal(t, []string{"sync", "status"}, stub.calls)
	assert.Contains(t, strings.Join(*lines, "\n"), "device is offline")
}

func TestREPL_ExitsOnEOF(t *testing.T) {
	captureOutput(t)
	stub := &stubExec{}

	runScript(t, stub, "status\n") // no exit, scanner hits EOF

	assert.Equal(t, []string{"status"}, stub.calls)
}
