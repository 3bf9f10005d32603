package editor

import (
	"errors"
	"sync"
)

// Buffer is the code-editing widget the router is attached to.
//
// Change listeners receive the new full content. The payload is untyped
// because editor bridges do not guarantee a string; the router drops anything
// else. Paste listeners fire on the native clipboard-paste event.
type Buffer interface {
	Content() string
	// SetContent replaces the buffer programmatically without notifying
	// change listeners.
	SetContent(content string)
	// Undo runs the editor's native undo, which notifies change listeners.
	Undo()
	OnChange(fn func(value any)) (detach func())
	OnPaste(fn func()) (detach func() error)
}

// ErrDetached is returned when a paste listener is detached twice or after the
// buffer was destroyed.
var ErrDetached = errors.New("listener already detached")

// MemoryBuffer is an in-process Buffer with a snapshot undo stack. It stands in
// for the embedded editor in tests and session replays.
type MemoryBuffer struct {
	mu         sync.Mutex
	content    string
	undoStack  []string
	maxUndo    int
	nextID     int
	changeSubs map[int]func(any)
	pasteSubs  map[int]func()
	destroyed  bool
}

// NewMemoryBuffer creates a buffer holding content.
func NewMemoryBuffer(content string) *MemoryBuffer {
	return &MemoryBuffer{
		content:    content,
		maxUndo:    1000,
		changeSubs: make(map[int]func(any)),
		pasteSubs:  make(map[int]func()),
	}
}

func (b *MemoryBuffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

func (b *MemoryBuffer) SetContent(content string) {
	b.mu.Lock()
	b.content = content
	b.undoStack = b.undoStack[:0]
	b.mu.Unlock()
}

// Type replaces the content as a user edit: the previous snapshot is pushed on
// the undo stack and change listeners are notified.
func (b *MemoryBuffer) Type(content string) {
	b.mu.Lock()
	b.push(b.content)
	b.content = content
	subs := b.changeListeners()
	b.mu.Unlock()

	for _, fn := range subs {
		fn(content)
	}
}

// Paste is a user edit delivered through the clipboard: the content changes
// and then the native paste event fires.
func (b *MemoryBuffer) Paste(content string) {
	b.Type(content)

	b.mu.Lock()
	subs := make([]func(), 0, len(b.pasteSubs))
	for _, fn := range b.pasteSubs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Emit delivers a raw change payload without touching the content.
func (b *MemoryBuffer) Emit(value any) {
	b.mu.Lock()
	subs := b.changeListeners()
	b.mu.Unlock()

	for _, fn := range subs {
		fn(value)
	}
}

func (b *MemoryBuffer) Undo() {
	b.mu.Lock()
	if len(b.undoStack) == 0 {
		b.mu.Unlock()
		return
	}
	last := len(b.undoStack) - 1
	b.content = b.undoStack[last]
	b.undoStack = b.undoStack[:last]
	content := b.content
	subs := b.changeListeners()
	b.mu.Unlock()

	for _, fn := range subs {
		fn(content)
	}
}

// CanUndo reports whether there is an edit to revert.
func (b *MemoryBuffer) CanUndo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.undoStack) > 0
}

func (b *MemoryBuffer) OnChange(fn func(any)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.changeSubs[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.changeSubs, id)
		b.mu.Unlock()
	}
}

func (b *MemoryBuffer) OnPaste(fn func()) func() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.pasteSubs[id] = fn

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.destroyed {
			return ErrDetached
		}
		if _, ok := b.pasteSubs[id]; !ok {
			return ErrDetached
		}
		delete(b.pasteSubs, id)
		return nil
	}
}

// Destroy tears the buffer down. Later detach calls fail with ErrDetached.
func (b *MemoryBuffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
	b.changeSubs = make(map[int]func(any))
	b.pasteSubs = make(map[int]func())
}

// Listeners returns the number of attached change and paste listeners.
func (b *MemoryBuffer) Listeners() (change, paste int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.changeSubs), len(b.pasteSubs)
}

func (b *MemoryBuffer) push(snapshot string) {
	if len(b.undoStack) >= b.maxUndo {
		b.undoStack = b.undoStack[1:]
	}
	b.undoStack = append(b.undoStack, snapshot)
}

func (b *MemoryBuffer) changeListeners() []func(any) {
	subs := make([]func(any), 0, len(b.changeSubs))
	for _, fn := range b.changeSubs {
		subs = append(subs, fn)
	}
	return subs
}
