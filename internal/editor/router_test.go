package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Kind     string
	Code     string
	Language string
}

type fakeReporter struct {
	calls   []call
	cancels int
}

func (f *fakeReporter) Typing(code, language string) {
	f.calls = append(f.calls, call{"typing", code, language})
}

func (f *fakeReporter) Paste(code, language string) {
	f.calls = append(f.calls, call{"paste", code, language})
}

func (f *fakeReporter) Cancel() { f.cancels++ }

func (f *fakeReporter) count(kind string) int {
	n := 0
	for _, c := range f.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

type change struct {
	Content string
	IsPaste bool
}

type harness struct {
	buf      *MemoryBuffer
	reporter *fakeReporter
	router   *Router
	changes  []change
	gateOpen int
}

func newHarness(t *testing.T, initial string) *harness {
	t.Helper()
	h := &harness{
		buf:      NewMemoryBuffer(initial),
		reporter: &fakeReporter{},
	}
	h.router = NewRouter(h.buf, h.reporter, "python",
		WithOnChange(func(content string, isPaste bool) {
			h.changes = append(h.changes, change{content, isPaste})
		}),
		WithOnGateOpen(func() { h.gateOpen++ }),
	)
	t.Cleanup(h.router.Close)
	return h
}

func TestRouter_PastedBlockOpensGate(t *testing.T) {
	h := newHarness(t, "x = 1")
	next := "x = 1\nfor i in range(10):\n    print(i)"

	h.buf.Type(next)

	require.Len(t, h.changes, 1)
	assert.Equal(t, change{next, true}, h.changes[0])
	assert.Equal(t, []call{{"paste", next, "python"}}, h.reporter.calls)
	assert.Equal(t, PasteConfirmationPending, h.router.State())
	assert.Equal(t, 1, h.gateOpen)
	assert.Equal(t, next, h.router.LastKnownContent())
}

func TestRouter_AutocompleteIsTyped(t *testing.T) {
	h := newHarness(t, "pri")

	h.buf.Type("print")

	assert.Equal(t, []change{{"print", false}}, h.changes)
	assert.Equal(t, []call{{"typing", "print", "python"}}, h.reporter.calls)
	assert.Equal(t, Idle, h.router.State())
	assert.Zero(t, h.gateOpen)
	assert.Equal(t, "print", h.router.LastKnownContent())
}

func TestRouter_LongIdentifierIsTyped(t *testing.T) {
	h := newHarness(t, "")

	h.buf.Type("aaaaaaaaaaaaaaaa")

	assert.Equal(t, 1, h.reporter.count("typing"))
	assert.Zero(t, h.reporter.count("paste"))
	assert.Equal(t, Idle, h.router.State())
}

func TestRouter_NativePasteBypassesHeuristic(t *testing.T) {
	h := newHarness(t, "ab")

	// a one character paste is far below the heuristic threshold
	h.buf.Paste("abc")

	assert.Equal(t, 1, h.reporter.count("paste"))
	assert.Equal(t, call{"paste", "abc", "python"}, h.reporter.calls[len(h.reporter.calls)-1])
	assert.Equal(t, change{"abc", true}, h.changes[len(h.changes)-1])
	assert.Equal(t, PasteConfirmationPending, h.router.State())
	assert.Equal(t, 1, h.gateOpen)
	assert.Equal(t, "abc", h.router.LastKnownContent())
}

func TestRouter_NativePasteOfLargeBlockReportsTwice(t *testing.T) {
	h := newHarness(t, "")

	h.buf.Paste("def main():\n    return 0")

	// once from the heuristic, once from the native event
	assert.Equal(t, 2, h.reporter.count("paste"))
	assert.Equal(t, 1, h.gateOpen)
}

func TestRouter_UndoRevertsWithoutReporting(t *testing.T) {
	h := newHarness(t, "x = 1")
	h.buf.Type("x = 1\nfor i in range(10):\n    print(i)")
	reportsBefore := len(h.reporter.calls)

	require.NoError(t, h.router.Acknowledge())
	require.NoError(t, h.router.Undo())

	assert.Equal(t, "x = 1", h.buf.Content())
	assert.Equal(t, "x = 1", h.router.LastKnownContent())
	assert.Len(t, h.reporter.calls, reportsBefore)
	assert.Equal(t, Idle, h.router.State())
	assert.Equal(t, change{"x = 1", false}, h.changes[len(h.changes)-1])

	// the next edit is diffed against the reverted content
	h.buf.Type("x = 12")
	assert.Equal(t, call{"typing", "x = 12", "python"}, h.reporter.calls[len(h.reporter.calls)-1])
}

func TestRouter_ContinueReportsAgain(t *testing.T) {
	h := newHarness(t, "")
	pasted := "import os, sys\nprint(os.getcwd())"
	h.buf.Type(pasted)
	require.Equal(t, 1, h.reporter.count("paste"))

	require.NoError(t, h.router.Acknowledge())
	require.NoError(t, h.router.Continue())

	assert.Equal(t, 2, h.reporter.count("paste"))
	assert.Equal(t, call{"paste", pasted, "python"}, h.reporter.calls[len(h.reporter.calls)-1])
	assert.Equal(t, Idle, h.router.State())
	assert.Equal(t, pasted, h.buf.Content())
}

func TestRouter_GateRequiresAcknowledgement(t *testing.T) {
	h := newHarness(t, "")

	assert.ErrorIs(t, h.router.Acknowledge(), ErrNoPendingPaste)
	assert.ErrorIs(t, h.router.Undo(), ErrNoPendingPaste)
	assert.ErrorIs(t, h.router.Continue(), ErrNoPendingPaste)

	h.buf.Type("hello, world this is long")
	assert.ErrorIs(t, h.router.Undo(), ErrNotAcknowledged)
	assert.ErrorIs(t, h.router.Continue(), ErrNotAcknowledged)
	assert.Equal(t, PasteConfirmationPending, h.router.State())

	require.NoError(t, h.router.Acknowledge())
	require.NoError(t, h.router.Continue())

	// a new paste needs a new acknowledgement
	h.buf.Type("hello, world this is long\nand another pasted line")
	assert.ErrorIs(t, h.router.Continue(), ErrNotAcknowledged)
}

func TestRouter_PendingSuspendsReports(t *testing.T) {
	h := newHarness(t, "")
	h.buf.Type("first pasted, block of code")
	calls := len(h.reporter.calls)

	h.buf.Type("first pasted, block of code!")

	assert.Len(t, h.reporter.calls, calls)
	assert.Equal(t, "first pasted, block of code!", h.router.LastKnownContent())
	assert.Equal(t, change{"first pasted, block of code!", false}, h.changes[len(h.changes)-1])
	assert.Equal(t, 1, h.gateOpen)
}

func TestRouter_ResetIsNotClassified(t *testing.T) {
	h := newHarness(t, "")

	h.router.Reset("# Write your solution here\nprint('Hello, world!')")

	assert.Empty(t, h.reporter.calls)
	assert.Empty(t, h.changes)
	assert.Equal(t, Idle, h.router.State())
	assert.Equal(t, "# Write your solution here\nprint('Hello, world!')", h.router.LastKnownContent())
	assert.Equal(t, 1, h.reporter.cancels)

	h.buf.Type("# Write your solution here\nprint('Hello, world!')\n")
	assert.Equal(t, 1, h.reporter.count("typing"))
}

func TestRouter_ResetClosesGate(t *testing.T) {
	h := newHarness(t, "")
	h.buf.Type("hello, world this is long")
	require.Equal(t, PasteConfirmationPending, h.router.State())

	h.router.Reset("")
	assert.Equal(t, Idle, h.router.State())
}

func TestRouter_MalformedValueDropped(t *testing.T) {
	h := newHarness(t, "abc")

	h.buf.Emit(nil)
	h.buf.Emit(42)

	assert.Empty(t, h.changes)
	assert.Empty(t, h.reporter.calls)
	assert.Equal(t, "abc", h.router.LastKnownContent())
}

func TestRouter_SetLanguage(t *testing.T) {
	h := newHarness(t, "")
	h.router.SetLanguage("javascript")

	h.buf.Type("c")
	assert.Equal(t, call{"typing", "c", "javascript"}, h.reporter.calls[0])
	assert.Equal(t, "javascript", h.router.Language())
}

func TestRouter_CloseDetaches(t *testing.T) {
	h := newHarness(t, "")
	h.router.Close()

	changeSubs, pasteSubs := h.buf.Listeners()
	assert.Zero(t, changeSubs)
	assert.Zero(t, pasteSubs)
	assert.Equal(t, 1, h.reporter.cancels)

	h.buf.Paste("hello, world this is long")
	h.router.HandleChange("direct call")
	h.router.HandleNativePaste()
	assert.Empty(t, h.reporter.calls)
	assert.ErrorIs(t, h.router.Undo(), ErrClosed)

	// closing again is a no-op
	h.router.Close()
	assert.Equal(t, 1, h.reporter.cancels)
}

func TestRouter_CloseAfterDestroyIgnoresDetachError(t *testing.T) {
	buf := NewMemoryBuffer("")
	router := NewRouter(buf, &fakeReporter{}, "c")
	buf.Destroy()

	assert.NotPanics(t, router.Close)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "paste_confirmation_pending", PasteConfirmationPending.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestRouter_OpeningGateCancelsPendingTyping(t *testing.T) {
	h := newHarness(t, "ab")

	h.buf.Paste("abc")

	// typing from the change event, then the native paste
	assert.Equal(t, []string{"typing", "paste"}, []string{h.reporter.calls[0].Kind, h.reporter.calls[1].Kind})
	assert.Equal(t, 1, h.reporter.cancels)
}
