package detect

// Span is the region a single edit changed, in rune offsets.
type Span struct {
	// Start is the length of the common prefix.
	Start int
	// EndOld and EndNew are the last changed indexes in the old and new text.
	// They are Start-1 when that side contributes nothing.
	EndOld int
	EndNew int
	// Text is new[Start : EndNew+1].
	Text string
}

// Diff locates the changed region between two buffer snapshots by stripping
// their common prefix and suffix. It is linear and exact for one contiguous
// edit; multi-cursor edits collapse into a single span covering all of them.
func Diff(oldText, newText string) Span {
	if oldText == newText {
		n := len([]rune(newText))
		return Span{Start: n, EndOld: n - 1, EndNew: n - 1}
	}

	o := []rune(oldText)
	n := []rune(newText)

	start := 0
	for start < len(o) && start < len(n) && o[start] == n[start] {
		start++
	}

	endOld := len(o) - 1
	endNew := len(n) - 1
	for endOld >= start && endNew >= start && o[endOld] == n[endNew] {
		endOld--
		endNew--
	}

	return Span{
		Start:  start,
		EndOld: endOld,
		EndNew: endNew,
		Text:   string(n[start : endNew+1]),
	}
}

// ExtractInserted returns the text newly inserted (or replacing something)
// between oldText and newText. Identical inputs yield "".
func ExtractInserted(oldText, newText string) string {
	return Diff(oldText, newText).Text
}
