package models

import (
	"fmt"
	"time"
)

// Action is the kind of keystroke event reported by the editor.
type Action string

const (
	ActionTyping Action = "typing"
	ActionPaste  Action = "paste"
	ActionExit   Action = "exit"
)

func (a Action) Valid() bool {
	switch a {
	case ActionTyping, ActionPaste, ActionExit:
		return true
	}
	return false
}

// KeystrokeEvent is the body of POST /keystroke.
type KeystrokeEvent struct {
	Action   Action `json:"action" binding:"required"`
	Code     string `json:"code"`
	Language string `json:"language" binding:"required"`
}

// ClearRequest is the body of POST /keystroke/clear. The unload beacon also
// carries the final buffer; the post-submission clear sends only the token.
type ClearRequest struct {
	Action   Action `json:"action,omitempty"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
	Token    string `json:"token"`
}

// Session is the per-user keystroke state served by GET /keystroke/report.
type Session struct {
	Code  string `json:"code"`
	Paste bool   `json:"paste"`
}

// PasteSource says which signal recorded a paste.
type PasteSource string

const (
	// PasteSourceClient is a paste reported explicitly by the editor.
	PasteSourceClient PasteSource = "client"
	// PasteSourceHeuristic is a typing report the backend classified as a paste.
	PasteSourceHeuristic PasteSource = "heuristic"
)

// PasteEvent is a recorded paste, published on the paste stream and stored in MongoDB.
type PasteEvent struct {
	ID         string      `bson:"eventId" json:"eventId"`
	UserID     string      `bson:"userId" json:"userId"`
	Language   string      `bson:"language" json:"language"`
	Source     PasteSource `bson:"source" json:"source"`
	Inserted   string      `bson:"inserted" json:"inserted"`
	Code       string      `bson:"code" json:"code"`
	DetectedAt time.Time   `bson:"detectedAt" json:"detectedAt"`
	CreatedAt  time.Time   `bson:"createdAt" json:"createdAt"`
}

// PasteLogResponse is returned by GET /keystroke/pastes.
type PasteLogResponse struct {
	Pastes []*PasteEvent `json:"pastes"`
	Total  int64         `json:"total"`
}

// StatusResponse is the acknowledgement returned by POST /keystroke.
type StatusResponse struct {
	Status string `json:"status"`
}

// ClearResponse is returned by POST /keystroke/clear.
type ClearResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var starterCode = map[string]string{
	"python":     "# Write your solution here\nprint('Hello, world!')",
	"javascript": "// Write your solution here\nconsole.log('Hello, world!');",
	"c":          "// Write your solution here\n#include <stdio.h>\n\nint main() {\n    printf(\"Hello, world!\\n\");\n    return 0;\n}",
}

// StarterCode returns the default buffer an assignment opens with for language.
// Unknown languages start empty.
func StarterCode(language string) string {
	return starterCode[language]
}

// NewSession returns the session a user starts with before any report.
func NewSession(language string) *Session {
	return &Session{Code: StarterCode(language)}
}

func (s *Session) String() string {
	return fmt.Sprintf("session(len=%d, paste=%t)", len(s.Code), s.Paste)
}
