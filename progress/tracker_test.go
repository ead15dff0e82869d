package progress

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTracker_BeginAlreadyConfirmedShortCircuits(t *testing.T) {
	store := NewStore()
	var confirms int32

	tr := NewTracker(store, "c1", "ch1", "course1", func(ctx context.Context) error {
		atomic.AddInt32(&confirms, 1)
		return nil
	}, WithDebounce(time.Millisecond))

	tr.Begin(true)
	assert.Equal(t, ServerConfirmed, tr.State())
	assert.True(t, store.IsContentCompleted("c1"))

	// A later trigger must not re-run the completion side effects.
	tr.Complete(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&confirms))
}

func TestTracker_CompleteIsOneShot(t *testing.T) {
	store := NewStore()
	var confirms int32

	tr := NewTracker(store, "c1", "ch1", "course1", func(ctx context.Context) error {
		atomic.AddInt32(&confirms, 1)
		return nil
	}, WithDebounce(time.Millisecond))

	tr.Begin(false)
	assert.Equal(t, InProgress, tr.State())

	tr.Complete(context.Background())
	tr.Complete(context.Background())
	tr.Complete(context.Background())

	assert.True(t, store.IsContentCompleted("c1"))

	waitFor(t, func() bool { return tr.State() == ServerConfirmed })
	assert.Equal(t, int32(1), atomic.LoadInt32(&confirms))
}

func TestTracker_OptimisticFlipBeforeConfirm(t *testing.T) {
	store := NewStore()
	release := make(chan struct{})

	tr := NewTracker(store, "c1", "ch1", "course1", func(ctx context.Context) error {
		<-release
		return nil
	}, WithDebounce(time.Millisecond))

	tr.Begin(false)
	tr.Complete(context.Background())

	// Store flips immediately, before the server write lands.
	assert.True(t, store.IsContentCompleted("c1"))
	assert.Equal(t, LocallyComplete, tr.State())

	waitFor(t, func() bool { return store.IsSaving("c1") })
	close(release)
	waitFor(t, func() bool { return tr.State() == ServerConfirmed })
	assert.False(t, store.IsSaving("c1"))
}

func TestTracker_ConfirmFailureKeepsLocalState(t *testing.T) {
	store := NewStore()
	var confirms int32

	tr := NewTracker(store, "c1", "ch1", "course1", func(ctx context.Context) error {
		atomic.AddInt32(&confirms, 1)
		return errors.New("db down")
	}, WithDebounce(time.Millisecond))

	tr.Begin(false)
	tr.Complete(context.Background())

	waitFor(t, func() bool { return atomic.LoadInt32(&confirms) == 1 })
	time.Sleep(20 * time.Millisecond)

	// No rollback: the optimistic flag survives the failed write.
	assert.True(t, store.IsContentCompleted("c1"))
	assert.Equal(t, LocallyComplete, tr.State())
	assert.False(t, store.IsSaving("c1"))
}

func TestTracker_CancelStopsPendingConfirm(t *testing.T) {
	store := NewStore()
	var confirms int32

	tr := NewTracker(store, "c1", "ch1", "course1", func(ctx context.Context) error {
		atomic.AddInt32(&confirms, 1)
		return nil
	}, WithDebounce(50*time.Millisecond))

	tr.Begin(false)
	tr.Complete(context.Background())
	tr.Cancel()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&confirms))
	// The optimistic flag stays for the next mount to reconcile.
	assert.True(t, store.IsContentCompleted("c1"))
}

func TestTracker_OnConfirmedCallback(t *testing.T) {
	store := NewStore()
	called := make(chan struct{}, 1)

	tr := NewTracker(store, "c1", "ch1", "course1",
		func(ctx context.Context) error { return nil },
		WithDebounce(time.Millisecond),
		WithOnConfirmed(func() { called <- struct{}{} }),
	)

	tr.Begin(false)
	tr.Complete(context.Background())

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("onConfirmed callback never ran")
	}
	require.Equal(t, ServerConfirmed, tr.State())
}

func TestTracker_ConfirmPendingWindow(t *testing.T) {
	store := NewStore()
	release := make(chan struct{})

	tr := NewTracker(store, "c1", "ch1", "course1", func(ctx context.Context) error {
		<-release
		return nil
	}, WithDebounce(20*time.Millisecond))

	tr.Begin(false)
	assert.False(t, tr.ConfirmPending())

	tr.Complete(context.Background())
	assert.True(t, tr.ConfirmPending())

	// Once the write starts, ownership shows through the saving flag
	// instead of the pending timer.
	waitFor(t, func() bool { return store.IsSaving("c1") && !tr.ConfirmPending() })

	close(release)
	waitFor(t, func() bool { return tr.State() == ServerConfirmed })
	assert.False(t, tr.ConfirmPending())
}

func TestVideoComplete(t *testing.T) {
	assert.False(t, VideoComplete(10, 0))
	assert.False(t, VideoComplete(79, 100))
	assert.True(t, VideoComplete(80, 100))
	assert.True(t, VideoComplete(100, 100))
}
