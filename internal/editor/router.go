package editor

import (
	"errors"
	"fmt"

	"github.com/RishiKendai/keyguard/internal/detect"
	"github.com/rs/zerolog/log"
)

// State is the router's confirmation state.
type State int

const (
	Idle State = iota
	PasteConfirmationPending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PasteConfirmationPending:
		return "paste_confirmation_pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNoPendingPaste  = errors.New("no paste awaiting confirmation")
	ErrNotAcknowledged = errors.New("paste warning has not been acknowledged")
	ErrClosed          = errors.New("router is closed")
)

// Reporter receives the router's keystroke reports. report.Dispatcher
// implements it.
type Reporter interface {
	Typing(code, language string)
	Paste(code, language string)
	Cancel()
}

// Router classifies every buffer change as typed or pasted, forwards it to the
// host and reports it. A detected paste opens the confirmation gate, which the
// user resolves with Undo or Continue after acknowledging the warning.
//
// Router is not safe for concurrent use. All methods, and the buffer's
// listeners, must run on the goroutine that owns the editor.
type Router struct {
	buf      Buffer
	reporter Reporter
	language string

	onChange   func(content string, isPaste bool)
	onGateOpen func()

	lastKnown    string
	state        State
	acknowledged bool
	reverting    bool
	closed       bool

	detachChange func()
	detachPaste  func() error
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithOnChange sets the host callback invoked for every accepted change.
func WithOnChange(fn func(content string, isPaste bool)) RouterOption {
	return func(r *Router) {
		r.onChange = fn
	}
}

// WithOnGateOpen sets the callback invoked when a paste opens the gate.
func WithOnGateOpen(fn func()) RouterOption {
	return func(r *Router) {
		r.onGateOpen = fn
	}
}

// NewRouter attaches a router to buf. The current buffer content is taken as
// the last known snapshot.
func NewRouter(buf Buffer, reporter Reporter, language string, opts ...RouterOption) *Router {
	r := &Router{
		buf:       buf,
		reporter:  reporter,
		language:  language,
		lastKnown: buf.Content(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.detachChange = buf.OnChange(r.HandleChange)
	r.detachPaste = buf.OnPaste(r.HandleNativePaste)
	return r
}

func (r *Router) State() State { return r.state }

// LastKnownContent is the most recent buffer snapshot the router has seen.
func (r *Router) LastKnownContent() string { return r.lastKnown }

func (r *Router) Language() string { return r.language }

// SetLanguage changes the language attached to subsequent reports.
func (r *Router) SetLanguage(language string) { r.language = language }

// HandleChange processes one change notification from the buffer.
func (r *Router) HandleChange(value any) {
	if r.closed {
		return
	}
	content, ok := value.(string)
	if !ok {
		log.Warn().Str("type", fmt.Sprintf("%T", value)).Msg("Unexpected editor value, change dropped")
		return
	}

	if r.reverting {
		r.lastKnown = content
		r.forward(content, false)
		return
	}

	span, class := detect.ClassifyChange(r.lastKnown, content)
	r.lastKnown = content
	isPaste := class == detect.Paste

	if r.state == PasteConfirmationPending {
		// reporting is suspended until the gate is resolved
		r.forward(content, isPaste)
		return
	}

	r.forward(content, isPaste)
	if !isPaste {
		r.reporter.Typing(content, r.language)
		return
	}

	log.Debug().Int("inserted", len(span.Text)).Msg("Paste detected heuristically")
	r.reporter.Paste(content, r.language)
	r.openGate()
}

// HandleNativePaste processes the editor's clipboard-paste event. It always
// counts as a paste, whatever the size of the change.
func (r *Router) HandleNativePaste() {
	if r.closed {
		return
	}
	content := r.buf.Content()
	r.reporter.Paste(content, r.language)
	r.forward(content, true)
	r.lastKnown = content
	r.openGate()
}

// Acknowledge records that the user has read the paste warning.
func (r *Router) Acknowledge() error {
	if r.state != PasteConfirmationPending {
		return ErrNoPendingPaste
	}
	r.acknowledged = true
	return nil
}

// Undo reverts the paste through the editor's native undo and closes the gate
// without reporting again.
func (r *Router) Undo() error {
	if err := r.checkGate(); err != nil {
		return err
	}

	r.reverting = true
	r.buf.Undo()
	r.reverting = false
	r.lastKnown = r.buf.Content()
	r.closeGate()
	return nil
}

// Continue keeps the paste, reports it again and closes the gate.
func (r *Router) Continue() error {
	if err := r.checkGate(); err != nil {
		return err
	}

	content := r.buf.Content()
	r.lastKnown = content
	r.reporter.Paste(content, r.language)
	r.closeGate()
	return nil
}

// Reset loads content programmatically, e.g. a new assignment's starter code.
// The change is not classified or reported and any open gate is closed.
func (r *Router) Reset(content string) {
	r.buf.SetContent(content)
	r.lastKnown = content
	r.reporter.Cancel()
	r.closeGate()
}

// Close cancels the pending typing report and detaches from the buffer.
func (r *Router) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.reporter.Cancel()

	if r.detachChange != nil {
		r.detachChange()
	}
	if r.detachPaste != nil {
		if err := r.detachPaste(); err != nil {
			log.Trace().Err(err).Msg("Paste listener already detached")
		}
	}
}

func (r *Router) checkGate() error {
	if r.closed {
		return ErrClosed
	}
	if r.state != PasteConfirmationPending {
		return ErrNoPendingPaste
	}
	if !r.acknowledged {
		return ErrNotAcknowledged
	}
	return nil
}

func (r *Router) openGate() {
	// a queued typing report would carry the pasted buffer past the gate
	r.reporter.Cancel()

	wasOpen := r.state == PasteConfirmationPending
	r.state = PasteConfirmationPending
	r.acknowledged = false
	if !wasOpen && r.onGateOpen != nil {
		r.onGateOpen()
	}
}

func (r *Router) closeGate() {
	r.state = Idle
	r.acknowledged = false
}

func (r *Router) forward(content string, isPaste bool) {
	if r.onChange != nil {
		r.onChange(content, isPaste)
	}
}
