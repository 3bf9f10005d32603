package report

import (
	"context"

	"github.com/RishiKendai/keyguard/internal/models"
)

// Report is one outbound keystroke event. The set of implementations is closed:
// TypingReport, PasteReport and ExitReport.
type Report interface {
	Action() models.Action
	Snapshot() (code, language string)
	sealed()
}

// TypingReport carries the buffer after a quiet period of typing.
type TypingReport struct {
	Code     string
	Language string
}

// PasteReport carries the buffer right after a detected or confirmed paste.
type PasteReport struct {
	Code     string
	Language string
}

// ExitReport is the final snapshot sent when the editor is torn down. It
// carries the token in the body because unload transports cannot set headers.
type ExitReport struct {
	Code     string
	Language string
	Token    string
}

func (TypingReport) Action() models.Action { return models.ActionTyping }
func (PasteReport) Action() models.Action  { return models.ActionPaste }
func (ExitReport) Action() models.Action   { return models.ActionExit }

func (r TypingReport) Snapshot() (string, string) { return r.Code, r.Language }
func (r PasteReport) Snapshot() (string, string)  { return r.Code, r.Language }
func (r ExitReport) Snapshot() (string, string)   { return r.Code, r.Language }

func (TypingReport) sealed() {}
func (PasteReport) sealed()  {}
func (ExitReport) sealed()   {}

// Sender delivers a report to the keystroke backend.
type Sender interface {
	Send(ctx context.Context, r Report) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, r Report) error

func (f SenderFunc) Send(ctx context.Context, r Report) error { return f(ctx, r) }
