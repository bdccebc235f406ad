package render

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/PageGrab/internal/clock"
)

func newTestBarrier() (*Barrier, *clock.Fake) {
	c := clock.NewFake(time.Unix(1700000000, 0))
	return NewBarrier(Options{Timeout: 45 * time.Second, Clock: c}), c
}

type readyRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *readyRecorder) record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *readyRecorder) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func TestAllPagesResolveBeforeTimeout(t *testing.T) {
	b, c := newTestBarrier()
	ready := &readyRecorder{}
	b.OnReady(ready.record)

	s := b.BeginSession(3)
	for _, page := range []int{3, 1, 2} {
		c.Advance(time.Second)
		require.NoError(t, s.NotifyPageRendered(page))
	}

	outcomes := ready.all()
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Degraded)
	assert.Equal(t, 3, outcomes[0].CompletedCount)
	assert.Equal(t, 3*time.Second, outcomes[0].Elapsed)
	assert.Equal(t, 0, c.Pending(), "timeout must be disarmed")

	c.Advance(time.Minute)
	assert.Len(t, ready.all(), 1)

	out, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.ID(), out.SessionID)
}

func TestNotifyIsIdempotent(t *testing.T) {
	b, _ := newTestBarrier()
	ready := &readyRecorder{}
	b.OnReady(ready.record)

	s := b.BeginSession(2)
	require.NoError(t, s.NotifyPageRendered(1))
	require.NoError(t, s.NotifyPageRendered(1))
	require.NoError(t, s.NotifyPageRendered(1))

	p := s.Progress()
	assert.Equal(t, 1, p.CompletedCount)
	assert.Equal(t, 0.5, p.Ratio)
	assert.Empty(t, ready.all())

	require.NoError(t, s.NotifyPageRendered(2))
	require.NoError(t, s.NotifyPageRendered(2))
	assert.Len(t, ready.all(), 1)
}

func TestTimeoutDegradesWithPartialPages(t *testing.T) {
	b, c := newTestBarrier()
	ready := &readyRecorder{}
	b.OnReady(ready.record)

	s := b.BeginSession(10)
	for page := 1; page <= 7; page++ {
		require.NoError(t, s.NotifyPageRendered(page))
	}

	c.Advance(44 * time.Second)
	assert.Empty(t, ready.all())

	c.Advance(time.Second)
	outcomes := ready.all()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Degraded)
	assert.Equal(t, 7, outcomes[0].CompletedCount)
	assert.Equal(t, 10, outcomes[0].TotalPages)

	p := b.Progress()
	assert.True(t, p.TimedOut)
	assert.Equal(t, "Loaded 7/10 pages. Others will load as needed.", p.Status)

	// Late pages still count but ready does not fire again.
	require.NoError(t, s.NotifyPageRendered(8))
	require.NoError(t, s.NotifyPageRendered(9))
	require.NoError(t, s.NotifyPageRendered(10))
	assert.Len(t, ready.all(), 1)
	assert.Equal(t, 10, b.Progress().CompletedCount)
	assert.Equal(t, "All 10 pages ready", b.Progress().Status)

	out, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, 7, out.CompletedCount)
}

func TestNewSessionIsolatesPreviousDocument(t *testing.T) {
	b, c := newTestBarrier()
	ready := &readyRecorder{}
	b.OnReady(ready.record)

	first := b.BeginSession(5)
	require.NoError(t, first.NotifyPageRendered(1))

	second := b.BeginSession(2)
	assert.ErrorIs(t, first.NotifyPageRendered(2), ErrInvalidSession)

	p := b.Progress()
	assert.Equal(t, second.ID(), p.SessionID)
	assert.Equal(t, 0, p.CompletedCount)
	assert.Equal(t, 2, p.TotalPages)

	_, err := first.Wait(context.Background())
	assert.ErrorIs(t, err, ErrInvalidSession)

	// The first session's timer must not fire ready for either session.
	c.Advance(44 * time.Second)
	assert.Empty(t, ready.all())

	require.NoError(t, second.NotifyPageRendered(1))
	require.NoError(t, second.NotifyPageRendered(2))
	outcomes := ready.all()
	require.Len(t, outcomes, 1)
	assert.Equal(t, second.ID(), outcomes[0].SessionID)
}

func TestZeroPageSessionResolvesImmediately(t *testing.T) {
	b, c := newTestBarrier()
	ready := &readyRecorder{}
	b.OnReady(ready.record)

	s := b.BeginSession(0)
	outcomes := ready.all()
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Degraded)
	assert.Equal(t, 0, c.Pending())

	out, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, out.TotalPages)
	assert.Equal(t, 1.0, b.Progress().Ratio)
}

func TestPageOutOfRange(t *testing.T) {
	b, _ := newTestBarrier()
	s := b.BeginSession(3)

	assert.ErrorIs(t, s.NotifyPageRendered(0), ErrPageOutOfRange)
	assert.ErrorIs(t, s.NotifyPageRendered(4), ErrPageOutOfRange)
	assert.Equal(t, 0, s.Progress().CompletedCount)
}

func TestCancelInvalidatesSession(t *testing.T) {
	b, c := newTestBarrier()
	ready := &readyRecorder{}
	b.OnReady(ready.record)

	s := b.BeginSession(2)
	b.Cancel()

	assert.Nil(t, b.Current())
	assert.ErrorIs(t, s.NotifyPageRendered(1), ErrInvalidSession)
	assert.Equal(t, "No document loaded", b.Progress().Status)

	c.Advance(time.Minute)
	assert.Empty(t, ready.all())
}

func TestProgressListenerSeesEveryChange(t *testing.T) {
	b, _ := newTestBarrier()
	var statuses []string
	unsubscribe := b.OnProgress(func(p Progress) { statuses = append(statuses, p.Status) })

	s := b.BeginSession(4)
	require.NoError(t, s.NotifyPageRendered(2))
	require.NoError(t, s.NotifyPageRendered(4))

	unsubscribe()
	require.NoError(t, s.NotifyPageRendered(1))

	assert.Equal(t, []string{
		"Rendering 4 pages...",
		"Rendering pages... 1/4 (25%)",
		"Rendering pages... 2/4 (50%)",
	}, statuses)
}

func TestCompletedPagesAreSorted(t *testing.T) {
	b, _ := newTestBarrier()
	s := b.BeginSession(5)
	for _, page := range []int{5, 2, 4} {
		require.NoError(t, s.NotifyPageRendered(page))
	}
	assert.Equal(t, []int{2, 4, 5}, s.Progress().CompletedPages)
	assert.Equal(t, 60, s.Progress().Percent)
}

func TestConcurrentNotificationsFireReadyOnce(t *testing.T) {
	b := NewBarrier(Options{})
	ready := &readyRecorder{}
	b.OnReady(ready.record)

	const pages = 50
	s := b.BeginSession(pages)

	var wg sync.WaitGroup
	for page := 1; page <= pages; page++ {
		for repeat := 0; repeat < 3; repeat++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				_ = s.NotifyPageRendered(p)
			}(page)
		}
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Len(t, ready.all(), 1)
}

func TestConcurrentProgressNeverGoesBackwards(t *testing.T) {
	b := NewBarrier(Options{})

	var (
		mu     sync.Mutex
		counts []int
		ready  int
	)
	b.OnProgress(func(p Progress) {
		mu.Lock()
		counts = append(counts, p.CompletedCount)
		mu.Unlock()
	})
	b.OnReady(func(Outcome) {
		mu.Lock()
		ready++
		mu.Unlock()
	})

	const pages = 200
	s := b.BeginSession(pages)

	var wg sync.WaitGroup
	for page := 1; page <= pages; page++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_ = s.NotifyPageRendered(p)
		}(page)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, counts)
	for i := 1; i < len(counts); i++ {
		assert.GreaterOrEqual(t, counts[i], counts[i-1], "progress regressed at event %d", i)
	}
	assert.Equal(t, pages, counts[len(counts)-1])
	assert.Equal(t, 1, ready)
}

func TestNoticeForSupersededSessionIsDropped(t *testing.T) {
	b, _ := newTestBarrier()
	var sessions []string
	b.OnProgress(func(p Progress) { sessions = append(sessions, p.SessionID) })
	ready := &readyRecorder{}
	b.OnReady(ready.record)

	first := b.BeginSession(1)

	// A completion captured for the first document but delivered only after
	// the next document started.
	b.mu.Lock()
	first.completed[1] = struct{}{}
	first.finishLocked(false)
	late := b.noticeLocked(first, true)
	b.mu.Unlock()

	second := b.BeginSession(3)
	b.emit(late)

	assert.Equal(t, []string{first.ID(), second.ID()}, sessions)
	assert.Empty(t, ready.all())
}

func TestWaitHonoursContext(t *testing.T) {
	b, _ := newTestBarrier()
	s := b.BeginSession(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Rendering 10 pages...", StatusText(0, 10, false))
	assert.Equal(t, "Rendering pages... 3/10 (30%)", StatusText(3, 10, false))
	assert.Equal(t, "Loaded 3/10 pages. Others will load as needed.", StatusText(3, 10, true))
	assert.Equal(t, "All 10 pages ready", StatusText(10, 10, false))
	assert.Equal(t, "All 0 pages ready", StatusText(0, 0, false))
}
