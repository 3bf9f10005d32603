// Package replay drives an editor session from a recorded script of steps.
// It is used to exercise the keystroke pipeline end to end against a live
// backend without a browser.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RishiKendai/keyguard/internal/editor"
	"github.com/rs/zerolog/log"
)

// Op is a replay step kind.
type Op string

const (
	OpType        Op = "type"
	OpPaste       Op = "paste"
	OpEmit        Op = "emit"
	OpUndo        Op = "undo"
	OpAcknowledge Op = "acknowledge"
	OpContinue    Op = "continue"
	OpReset       Op = "reset"
	OpLanguage    Op = "language"
	OpWait        Op = "wait"
)

// Step is one line of a replay script.
type Step struct {
	Op       Op              `json:"op"`
	Content  string          `json:"content,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Language string          `json:"language,omitempty"`
	WaitMS   int             `json:"ms,omitempty"`
}

// Parse reads a JSON-lines script. Blank lines and lines starting with '#'
// are skipped.
func Parse(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var step Step
		if err := json.Unmarshal([]byte(text), &step); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return steps, nil
}

func (s Step) validate() error {
	switch s.Op {
	case OpType, OpPaste, OpReset, OpUndo, OpAcknowledge, OpContinue:
		return nil
	case OpEmit:
		if len(s.Value) == 0 {
			return fmt.Errorf("emit requires a value")
		}
		return nil
	case OpLanguage:
		if s.Language == "" {
			return fmt.Errorf("language requires a language")
		}
		return nil
	case OpWait:
		if s.WaitMS <= 0 {
			return fmt.Errorf("wait requires a positive ms")
		}
		return nil
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}

// Summary counts what happened during a replay.
type Summary struct {
	Steps       int
	Changes     int
	PasteMarked int
	GateOpened  int
	GateErrors  int
	FinalState  editor.State
	FinalBuffer string
}

// Session couples a memory buffer with a router for replaying.
type Session struct {
	Buffer *editor.MemoryBuffer
	Router *editor.Router

	summary Summary
	sleep   func(time.Duration)
}

// NewSession builds a replay session starting from initial content.
func NewSession(initial string, reporter editor.Reporter, language string) *Session {
	s := &Session{
		Buffer: editor.NewMemoryBuffer(initial),
		sleep:  time.Sleep,
	}
	s.Router = editor.NewRouter(s.Buffer, reporter, language,
		editor.WithOnChange(func(_ string, isPaste bool) {
			s.summary.Changes++
			if isPaste {
				s.summary.PasteMarked++
			}
		}),
		editor.WithOnGateOpen(func() { s.summary.GateOpened++ }),
	)
	return s
}

// Run executes steps in order. Gate misuse (e.g. continue without
// acknowledge) is logged and counted, not fatal.
func (s *Session) Run(steps []Step) Summary {
	for i, step := range steps {
		s.summary.Steps++
		if err := s.apply(step); err != nil {
			s.summary.GateErrors++
			log.Warn().Err(err).Int("step", i+1).Str("op", string(step.Op)).Msg("Replay step rejected")
		}
	}
	s.summary.FinalState = s.Router.State()
	s.summary.FinalBuffer = s.Buffer.Content()
	return s.summary
}

func (s *Session) apply(step Step) error {
	switch step.Op {
	case OpType:
		s.Buffer.Type(step.Content)
	case OpPaste:
		s.Buffer.Paste(step.Content)
	case OpEmit:
		var v any
		if err := json.Unmarshal(step.Value, &v); err != nil {
			return err
		}
		s.Buffer.Emit(v)
	case OpUndo:
		return s.Router.Undo()
	case OpAcknowledge:
		return s.Router.Acknowledge()
	case OpContinue:
		return s.Router.Continue()
	case OpReset:
		s.Router.Reset(step.Content)
	case OpLanguage:
		s.Router.SetLanguage(step.Language)
	case OpWait:
		s.sleep(time.Duration(step.WaitMS) * time.Millisecond)
	}
	return nil
}

// Flusher sends a pending debounced report immediately.
type Flusher interface {
	Flush()
}

// Drain flushes the last debounced typing report at the end of a replay. It
// does nothing while a paste awaits confirmation, since reporting is
// suspended until the gate is resolved.
func (s *Session) Drain(f Flusher) bool {
	if s.Router.State() == editor.PasteConfirmationPending {
		return false
	}
	f.Flush()
	return true
}

// Close detaches the router.
func (s *Session) Close() {
	s.Router.Close()
}
