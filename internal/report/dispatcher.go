package report

import (
	"context"
	"sync"
	"time"

	"github.com/RishiKendai/keyguard/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultExitTimeout = 2 * time.Second
)

// Dispatcher sends keystroke reports without blocking the editor.
//
// Typing reports are debounced on the trailing edge. Paste reports go out
// immediately, one per call. Failures are logged and dropped; nothing is
// retried.
type Dispatcher struct {
	sender      Sender
	debounce    time.Duration
	exitTimeout time.Duration
	onResult    func(Report, error)

	mu      sync.Mutex
	timer   *time.Timer
	pending *TypingReport
	gen     uint64
	closed  bool

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDebounce sets the quiet period for typing reports.
func WithDebounce(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.debounce = d
		}
	}
}

// WithExitTimeout bounds the synchronous exit report.
func WithExitTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.exitTimeout = d
		}
	}
}

// WithResultHook observes every completed send, successful or not.
func WithResultHook(fn func(Report, error)) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.onResult = fn
	}
}

// NewDispatcher creates a dispatcher delivering through sender.
func NewDispatcher(sender Sender, opts ...DispatcherOption) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:      sender,
		debounce:    DefaultDebounce,
		exitTimeout: DefaultExitTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Typing schedules a typing report. A later call within the debounce window
// replaces it and restarts the window.
func (d *Dispatcher) Typing(code, language string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.pending = &TypingReport{Code: code, Language: language}
	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, func() { d.fire(gen) })
}

func (d *Dispatcher) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	r := *d.pending
	d.pending = nil
	d.timer = nil
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	d.deliver(d.ctx, r)
}

// Paste sends a paste report right away on its own goroutine.
func (d *Dispatcher) Paste(code, language string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inflight.Done()
		d.deliver(d.ctx, PasteReport{Code: code, Language: language})
	}()
}

// Flush sends the pending typing report now instead of waiting for the
// window to elapse. It is a no-op when nothing is pending.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	if d.closed || d.pending == nil {
		d.mu.Unlock()
		return
	}
	r := *d.pending
	d.pending = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	d.deliver(d.ctx, r)
}

// Cancel drops a pending typing report.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelPendingLocked()
}

func (d *Dispatcher) cancelPendingLocked() {
	d.pending = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Exit drops any pending typing report and sends the final snapshot
// synchronously. The error is returned for logging only.
func (d *Dispatcher) Exit(code, language, token string) error {
	d.mu.Lock()
	d.cancelPendingLocked()
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.exitTimeout)
	defer cancel()

	return d.deliver(ctx, ExitReport{Code: code, Language: language, Token: token})
}

// Close cancels the pending typing report and waits for in-flight sends.
// Reports requested afterwards are ignored.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cancelPendingLocked()
	d.mu.Unlock()

	d.inflight.Wait()
	d.cancel()
}

// Wait blocks until reports already handed to the sender have completed.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, r Report) error {
	err := d.sender.Send(ctx, r)
	action := string(r.Action())
	if err != nil {
		metrics.ReportsSent.WithLabelValues(action, "failed").Inc()
		log.Warn().Err(err).Str("action", action).Msg("Keystroke report failed")
	} else {
		metrics.ReportsSent.WithLabelValues(action, "ok").Inc()
		log.Debug().Str("action", action).Msg("Keystroke report sent")
	}
	if d.onResult != nil {
		d.onResult(r, err)
	}
	return err
}
