package progress

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// State of one content item for one learner within a session.
type State int

const (
	NotStarted State = iota
	InProgress
	LocallyComplete
	ServerConfirmed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case LocallyComplete:
		return "locally_complete"
	default:
		return "server_confirmed"
	}
}

const (
	// VideoCompletionRatio is the watched fraction at which a video counts
	// as complete, short of an explicit ended event.
	VideoCompletionRatio = 0.8

	// TextDwell is how long a text or PDF item must stay in view before it
	// completes on its own.
	TextDwell = 15 * time.Second

	// ConfirmDebounce guards the server-confirmation write against rapid
	// repeated triggers, e.g. a dwell timer and a manual click racing.
	ConfirmDebounce = 500 * time.Millisecond
)

// VideoComplete reports whether a playback position satisfies the
// completion threshold for the given duration.
func VideoComplete(position, duration float64) bool {
	if duration <= 0 {
		return false
	}
	return position/duration >= VideoCompletionRatio
}

// ConfirmFunc persists a completion to the server. It must be idempotent;
// the tracker may retry it on a later mount after a failure.
type ConfirmFunc func(ctx context.Context) error

// Tracker drives the completion state machine for a single
// (learner, content item) pair. All transitions are one-way; the
// LocallyComplete -> ServerConfirmed write is attempted once per mount,
// behind a debounce window.
type Tracker struct {
	mu sync.Mutex

	contentID string
	chapterID string
	courseID  string

	store   *Store
	confirm ConfirmFunc

	state    State
	fired    bool
	debounce time.Duration
	timer    *time.Timer

	// onConfirmed runs after a successful server write, outside the lock.
	// The orchestrator hooks the chapter recompute here.
	onConfirmed func()
}

type TrackerOption func(*Tracker)

// WithDebounce overrides the confirmation debounce window.
func WithDebounce(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.debounce = d }
}

// WithOnConfirmed registers a callback invoked once the server write
// succeeds.
func WithOnConfirmed(fn func()) TrackerOption {
	return func(t *Tracker) { t.onConfirmed = fn }
}

func NewTracker(store *Store, contentID, chapterID, courseID string, confirm ConfirmFunc, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		contentID: contentID,
		chapterID: chapterID,
		courseID:  courseID,
		store:     store,
		confirm:   confirm,
		state:     NotStarted,
		debounce:  ConfirmDebounce,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Begin moves the tracker out of NotStarted. When the server already has
// a completed row the tracker short-circuits straight to ServerConfirmed
// and no completion side effects will ever run for this mount.
func (t *Tracker) Begin(alreadyConfirmed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != NotStarted {
		return
	}
	if alreadyConfirmed {
		t.state = ServerConfirmed
		t.fired = true
		t.store.SetContentCompleted(t.contentID, t.chapterID, t.courseID, true)
		return
	}
	t.state = InProgress
}

// Complete fires the completion trigger. The local store flips
// immediately for optimistic UI; the server write is scheduled once,
// after the debounce window. Repeated calls are no-ops.
func (t *Tracker) Complete(ctx context.Context) {
	t.mu.Lock()

	if t.state == ServerConfirmed || t.fired {
		t.mu.Unlock()
		return
	}
	if t.state == NotStarted {
		t.state = InProgress
	}

	t.state = LocallyComplete
	t.fired = true
	t.store.SetContentCompleted(t.contentID, t.chapterID, t.courseID, true)

	t.timer = time.AfterFunc(t.debounce, func() {
		t.runConfirm(ctx)
	})
	t.mu.Unlock()
}

// ConfirmPending reports whether the debounced confirmation write is
// scheduled but has not started yet. Reconciliation leaves such items to
// the tracker rather than writing the same row itself.
func (t *Tracker) ConfirmPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Cancel releases the pending confirmation timer, e.g. on unmount before
// the debounce window elapses. State already written to the store stays;
// the next mount reconciles it.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) runConfirm(ctx context.Context) {
	t.store.SetSavingProgress(t.contentID, true)
	t.mu.Lock()
	t.timer = nil
	t.mu.Unlock()
	err := t.confirm(ctx)
	t.store.SetSavingProgress(t.contentID, false)

	if err != nil {
		// Deliberately no rollback: local state stays complete and the
		// write is retried on the next mount of this content.
		log.WithFields(log.Fields{
			"content_id": t.contentID,
			"chapter_id": t.chapterID,
		}).WithError(err).Warn("Failed to save progress, will retry on next view")
		return
	}

	t.mu.Lock()
	t.state = ServerConfirmed
	cb := t.onConfirmed
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}
