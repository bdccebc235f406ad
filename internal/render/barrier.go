// Package render turns independent per-page render completions into a single
// readiness signal for the open document.
package render

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanchriswhite/PageGrab/internal/clock"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// DefaultTimeout bounds how long a session waits for every page.
const DefaultTimeout = 45 * time.Second

var (
	// ErrInvalidSession is returned for operations on a session that has
	// been superseded by a newer document or cancelled.
	ErrInvalidSession = errors.New("render session is no longer current")

	ErrPageOutOfRange = errors.New("page index out of range")
)

// Options configure a Barrier.
type Options struct {
	Timeout time.Duration
	Clock   clock.Clock
}

// Barrier owns the render session of the currently open document. Starting
// a session cancels the previous one.
type Barrier struct {
	mu      sync.Mutex
	clock   clock.Clock
	timeout time.Duration
	current *Session

	listenerSeq       uint64
	progressListeners map[uint64]func(Progress)
	readyListeners    map[uint64]func(Outcome)
	noticeSeq         uint64

	// emitMu orders listener calls; a notice older than the last one
	// delivered is dropped.
	emitMu  sync.Mutex
	emitted uint64
}

// notice is a state change captured under mu, delivered under emitMu.
type notice struct {
	seq         uint64
	session     *Session
	progress    Progress
	outcome     Outcome
	ready       bool
	progressFns []func(Progress)
	readyFns    []func(Outcome)
}

// NewBarrier creates a barrier with no active session
func NewBarrier(opts Options) *Barrier {
	b := &Barrier{
		clock:             opts.Clock,
		timeout:           opts.Timeout,
		progressListeners: make(map[uint64]func(Progress)),
		readyListeners:    make(map[uint64]func(Outcome)),
	}
	if b.clock == nil {
		b.clock = clock.Real{}
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	return b
}

// Session tracks render completion for one document.
type Session struct {
	b     *Barrier
	id    string
	total int

	// guarded by b.mu
	completed  map[int]struct{}
	startedAt  time.Time
	finishedAt time.Time
	finished   bool
	timedOut   bool
	cancelled  bool
	outcome    Outcome
	timer      clock.Timer
	done       chan struct{}

	readyDelivered bool // guarded by b.emitMu
}

// BeginSession replaces the current render progress with a fresh session
// for totalPages pages and starts its timeout.
func (b *Barrier) BeginSession(totalPages int) *Session {
	if totalPages < 0 {
		totalPages = 0
	}

	b.mu.Lock()
	if prev := b.current; prev != nil {
		prev.cancelLocked()
	}

	s := &Session{
		b:         b,
		id:        uuid.NewString(),
		total:     totalPages,
		completed: make(map[int]struct{}, totalPages),
		startedAt: b.clock.Now(),
		done:      make(chan struct{}),
	}
	b.current = s

	if totalPages == 0 {
		s.finishLocked(false)
	} else {
		s.timer = b.clock.AfterFunc(b.timeout, func() { b.expire(s) })
	}

	n := b.noticeLocked(s, s.finished)
	b.mu.Unlock()

	logger.WithComponent("render").Info().
		Str("session", s.id).
		Int("total_pages", totalPages).
		Dur("timeout", b.timeout).
		Msg("Render session started")

	b.emit(n)
	return s
}

// Current returns the active session, if any.
func (b *Barrier) Current() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Cancel invalidates the active session without starting a new one.
func (b *Barrier) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		logger.WithComponent("render").Info().Str("session", b.current.id).Msg("Render session cancelled")
		b.current.cancelLocked()
		b.current = nil
	}
}

// Progress returns the active session's progress, or a zero snapshot when
// no document is loaded.
func (b *Barrier) Progress() Progress {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return Progress{Status: "No document loaded", CompletedPages: []int{}}
	}
	return b.current.progressLocked()
}

// OnProgress registers fn for every progress change of every session.
func (b *Barrier) OnProgress(fn func(Progress)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listenerSeq++
	id := b.listenerSeq
	b.progressListeners[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.progressListeners, id)
		b.mu.Unlock()
	}
}

// OnReady registers fn to be told once per session that it resolved,
// fully or degraded. Superseded sessions never fire.
func (b *Barrier) OnReady(fn func(Outcome)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listenerSeq++
	id := b.listenerSeq
	b.readyListeners[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.readyListeners, id)
		b.mu.Unlock()
	}
}

func (b *Barrier) expire(s *Session) {
	b.mu.Lock()
	if b.current != s || s.finished || s.cancelled {
		b.mu.Unlock()
		return
	}
	s.finishLocked(true)
	n := b.noticeLocked(s, true)
	b.mu.Unlock()

	logger.WithComponent("render").Warn().
		Str("session", s.id).
		Int("completed", n.outcome.CompletedCount).
		Int("total_pages", n.outcome.TotalPages).
		Msg("Render timeout reached, continuing with partial pages")

	b.emit(n)
}

func (b *Barrier) noticeLocked(s *Session, withReady bool) notice {
	b.noticeSeq++
	n := notice{
		seq:      b.noticeSeq,
		session:  s,
		progress: s.progressLocked(),
		outcome:  s.outcome,
		ready:    withReady,
	}
	n.progressFns = make([]func(Progress), 0, len(b.progressListeners))
	for _, fn := range b.progressListeners {
		n.progressFns = append(n.progressFns, fn)
	}
	if withReady {
		n.readyFns = make([]func(Outcome), 0, len(b.readyListeners))
		for _, fn := range b.readyListeners {
			n.readyFns = append(n.readyFns, fn)
		}
	}
	return n
}

// emit calls listeners one notice at a time. Progress older than what was
// already delivered is skipped, and nothing is delivered for a session that
// has been superseded or cancelled. Listeners must not notify the barrier.
func (b *Barrier) emit(n notice) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	stale := b.current != n.session || n.session.cancelled
	b.mu.Unlock()
	if stale {
		return
	}

	if n.seq > b.emitted {
		b.emitted = n.seq
		for _, fn := range n.progressFns {
			fn(n.progress)
		}
	}
	if n.ready && !n.session.readyDelivered {
		n.session.readyDelivered = true
		for _, fn := range n.readyFns {
			fn(n.outcome)
		}
	}
}

// ID identifies the session.
func (s *Session) ID() string { return s.id }

// TotalPages returns the page count the session was started with.
func (s *Session) TotalPages() int { return s.total }

// Done is closed when the session resolves or is invalidated.
func (s *Session) Done() <-chan struct{} { return s.done }

// NotifyPageRendered records that a page finished rendering. Repeated
// notifications for the same page are no-ops.
func (s *Session) NotifyPageRendered(pageIndex int) error {
	b := s.b
	b.mu.Lock()
	if b.current != s || s.cancelled {
		b.mu.Unlock()
		return ErrInvalidSession
	}
	if pageIndex < 1 || pageIndex > s.total {
		b.mu.Unlock()
		return ErrPageOutOfRange
	}
	if _, seen := s.completed[pageIndex]; seen {
		b.mu.Unlock()
		return nil
	}

	s.completed[pageIndex] = struct{}{}
	resolved := false
	if len(s.completed) == s.total && !s.finished {
		s.finishLocked(false)
		resolved = true
	}
	n := b.noticeLocked(s, resolved)
	b.mu.Unlock()

	log := logger.WithComponent("render")
	log.Debug().
		Str("session", s.id).
		Int("page", pageIndex).
		Str("status", n.progress.Status).
		Msg("Page rendered")
	if resolved {
		log.Info().
			Str("session", s.id).
			Int("total_pages", s.total).
			Dur("elapsed", n.outcome.Elapsed).
			Msg("All pages rendered")
	}

	b.emit(n)
	return nil
}

// Progress returns the session's current snapshot.
func (s *Session) Progress() Progress {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.progressLocked()
}

// Wait blocks until the session resolves. A degraded outcome is not an
// error; a superseded or cancelled session returns ErrInvalidSession.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if !s.finished {
		return Outcome{}, ErrInvalidSession
	}
	return s.outcome, nil
}

func (s *Session) finishLocked(degraded bool) {
	s.finished = true
	s.timedOut = degraded
	s.finishedAt = s.b.clock.Now()
	if s.timer != nil && !degraded {
		s.timer.Stop()
	}
	s.outcome = Outcome{
		SessionID:      s.id,
		Degraded:       degraded,
		CompletedCount: len(s.completed),
		TotalPages:     s.total,
		Elapsed:        s.finishedAt.Sub(s.startedAt),
	}
	close(s.done)
}

func (s *Session) cancelLocked() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if !s.finished {
		close(s.done)
	}
}

func (s *Session) progressLocked() Progress {
	pages := make([]int, 0, len(s.completed))
	for p := range s.completed {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	r := ratio(len(pages), s.total)
	p := Progress{
		SessionID:      s.id,
		TotalPages:     s.total,
		CompletedPages: pages,
		CompletedCount: len(pages),
		Ratio:          r,
		Percent:        int(math.Round(r * 100)),
		Status:         StatusText(len(pages), s.total, s.timedOut),
		StartedAt:      s.startedAt,
		TimedOut:       s.timedOut,
	}
	if s.finished {
		at := s.finishedAt
		p.FinishedAt = &at
	}
	return p
}
