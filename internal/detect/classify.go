package detect

import (
	"regexp"
	"unicode/utf8"
)

// Classification is the verdict for one inserted span.
type Classification int

const (
	Typed Classification = iota
	Paste
)

func (c Classification) String() string {
	switch c {
	case Paste:
		return "paste"
	case Typed:
		return "typed"
	default:
		return "unknown"
	}
}

// MinPasteLength is the smallest span, in characters, that can be a paste.
// Single keystrokes and accepted completions stay below it.
const MinPasteLength = 10

// structuredPattern matches spans that look like multi-token code: an
// alphanumeric run followed by a comma, slash, '<', '"' or whitespace.
var structuredPattern = regexp.MustCompile(`.*[A-Za-z0-9]*[,\/<"\s].*`)

// Classify decides whether an inserted span was pasted or typed.
func Classify(span string) Classification {
	if utf8.RuneCountInString(span) < MinPasteLength {
		return Typed
	}
	if structuredPattern.MatchString(span) {
		return Paste
	}
	return Typed
}

// ClassifyChange diffs two snapshots and classifies the inserted span.
func ClassifyChange(oldText, newText string) (Span, Classification) {
	span := Diff(oldText, newText)
	return span, Classify(span.Text)
}
