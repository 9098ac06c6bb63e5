package cart

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// normalize maps unrecognized severities to the info style.
func (s Severity) normalize() Severity {
	switch s {
	case SeveritySuccess, SeverityError, SeverityInfo:
		return s
	default:
		return SeverityInfo
	}
}

const (
	toastVisibleFor = 3 * time.Second
	toastExitAfter  = 300 * time.Millisecond
)

// Toast is one transient notice. Leaving marks the exit transition
// between the visible period and removal.
type Toast struct {
	ID       string    `json:"id"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Leaving  bool      `json:"leaving"`
	ShownAt  time.Time `json:"shown_at"`
}

// Toaster holds at most one toast. Showing a new one removes the
// current one immediately; there is no queue. A generation counter
// keeps a stale timer from tearing down a newer toast.
type Toaster struct {
	mu      sync.Mutex
	current *Toast
	gen     uint64

	visibleFor time.Duration
	exitAfter  time.Duration

	hideTimer   *time.Timer
	removeTimer *time.Timer
}

func NewToaster() *Toaster {
	return newToaster(toastVisibleFor, toastExitAfter)
}

func newToaster(visibleFor, exitAfter time.Duration) *Toaster {
	return &Toaster{
		visibleFor: visibleFor,
		exitAfter:  exitAfter,
	}
}

// Show replaces any current toast with a new one and arms its
// auto-dismissal: visible for the full duration, then a short exit
// transition, then gone.
func (t *Toaster) Show(message string, severity Severity) Toast {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTimersLocked()

	t.gen++
	gen := t.gen

	toast := Toast{
		ID:       "toast_" + uuid.NewString(),
		Message:  message,
		Severity: severity.normalize(),
		ShownAt:  time.Now(),
	}
	t.current = &toast

	t.hideTimer = time.AfterFunc(t.visibleFor, func() { t.beginExit(gen) })

	return toast
}

// Current reports the visible toast, if any.
func (t *Toaster) Current() (Toast, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return Toast{}, false
	}
	return *t.current, true
}

// Dismiss removes the current toast without waiting out the timers.
func (t *Toaster) Dismiss() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTimersLocked()
	t.gen++
	t.current = nil
}

func (t *Toaster) beginExit(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen != gen || t.current == nil {
		return
	}
	t.current.Leaving = true
	t.removeTimer = time.AfterFunc(t.exitAfter, func() { t.remove(gen) })
}

func (t *Toaster) remove(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen != gen {
		return
	}
	t.current = nil
}

func (t *Toaster) stopTimersLocked() {
	if t.hideTimer != nil {
		t.hideTimer.Stop()
		t.hideTimer = nil
	}
	if t.removeTimer != nil {
		t.removeTimer.Stop()
		t.removeTimer = nil
	}
}
