package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"interview-room/entities"
)

type SnapshotFetcher interface {
	GetSession(ctx context.Context, sessionID string) (*entities.InterviewSession, error)
}

type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithMaxFailures bounds consecutive failed cycles before polling is abandoned.
func WithMaxFailures(n int) PollerOption {
	return func(p *Poller) { p.maxFailures = n }
}

// WithSnapshotHandler receives every snapshot that replaces the previous one.
func WithSnapshotHandler(fn func(*entities.InterviewSession)) PollerOption {
	return func(p *Poller) { p.onSnapshot = fn }
}

// WithNoticeHandler receives cycle failures. terminal is true when the
// poller stops because of err.
func WithNoticeHandler(fn func(err error, terminal bool)) PollerOption {
	return func(p *Poller) { p.onNotice = fn }
}

// WithTerminalHandler receives the final snapshot of a completed or failed session.
func WithTerminalHandler(fn func(ctx context.Context, s *entities.InterviewSession)) PollerOption {
	return func(p *Poller) { p.onTerminal = fn }
}

// Poller reconciles a session with the backend. It fetches the snapshot,
// replaces the previous one wholesale and waits a fixed interval while the
// backend is still processing. At most one fetch is in flight; each fetch
// gets a sequence number at issue and a response older than the last
// applied one is dropped.
type Poller struct {
	fetcher     SnapshotFetcher
	sessionID   string
	interval    time.Duration
	maxFailures int

	onSnapshot func(*entities.InterviewSession)
	onNotice   func(err error, terminal bool)
	onTerminal func(ctx context.Context, s *entities.InterviewSession)

	nudge    chan struct{}
	inFlight atomic.Bool
	issued   atomic.Uint64

	mu       sync.Mutex
	applied  uint64
	current  *entities.InterviewSession
	failures int
}

func NewPoller(fetcher SnapshotFetcher, sessionID string, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:     fetcher,
		sessionID:   sessionID,
		interval:    8 * time.Second,
		maxFailures: 5,
		nudge:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxFailures < 1 {
		p.maxFailures = 1
	}
	return p
}

func (p *Poller) SessionID() string {
	return p.sessionID
}

// Snapshot returns the last applied snapshot, or nil.
func (p *Poller) Snapshot() *entities.InterviewSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Nudge cuts the current wait short. Extra nudges while one is pending are dropped.
func (p *Poller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

var errCycleBusy = errors.New("poll cycle already in flight")

// Run polls until the session leaves the processing states, ctx is
// cancelled, the credential is rejected or too many cycles failed in a row.
func (p *Poller) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().Str("session_id", p.sessionID).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Dur("interval", p.interval).Msg("result polling started")

	for {
		snapshot, err := p.Cycle(ctx)
		switch {
		case ctx.Err() != nil:
			logger.Info().Msg("result polling cancelled")
			return ctx.Err()
		case errors.Is(err, errCycleBusy):
		case errors.Is(err, entities.ErrUnauthorized), errors.Is(err, entities.ErrNotFound):
			logger.Warn().Err(err).Msg("result polling stopped")
			p.notify(err, true)
			return err
		case err != nil:
			p.mu.Lock()
			p.failures++
			failures := p.failures
			p.mu.Unlock()

			logger.Warn().Err(err).Int("consecutive_failures", failures).Msg("result poll failed")
			if failures >= p.maxFailures {
				abandoned := errors.Join(entities.ErrPollingAbandoned, err)
				p.notify(abandoned, true)
				return abandoned
			}
			p.notify(err, false)
		case snapshot != nil && !snapshot.Status.Pending():
			logger.Info().Str("status", snapshot.Status.String()).Msg("result polling finished")
			if snapshot.Status.Terminal() && p.onTerminal != nil {
				p.onTerminal(ctx, snapshot)
			}
			return nil
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info().Msg("result polling cancelled")
			return ctx.Err()
		case <-p.nudge:
			timer.Stop()
			logger.Debug().Msg("result poll nudged")
		case <-timer.C:
		}
	}
}

// Cycle performs one fetch and applies its result. It returns the snapshot
// that is current afterwards.
func (p *Poller) Cycle(ctx context.Context) (*entities.InterviewSession, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, errCycleBusy
	}
	defer p.inFlight.Store(false)

	seq := p.issued.Add(1)
	snapshot, err := p.fetcher.GetSession(ctx, p.sessionID)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()
	return p.Apply(seq, snapshot), nil
}

// Seed installs a snapshot fetched before polling started, so the first poll
// cannot move the status backwards either.
func (p *Poller) Seed(snapshot *entities.InterviewSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		p.current = snapshot
	}
}

// Apply installs snapshot as the current one unless a newer response was
// already applied or the snapshot would move the session status backwards.
// It returns the snapshot that is current afterwards.
func (p *Poller) Apply(seq uint64, snapshot *entities.InterviewSession) *entities.InterviewSession {
	p.mu.Lock()
	if seq <= p.applied {
		current := p.current
		p.mu.Unlock()
		return current
	}
	p.applied = seq
	if p.current != nil && snapshot.Status.Rank() < p.current.Status.Rank() {
		current := p.current
		p.mu.Unlock()
		return current
	}
	p.current = snapshot
	p.mu.Unlock()

	if p.onSnapshot != nil {
		p.onSnapshot(snapshot)
	}
	return snapshot
}

func (p *Poller) notify(err error, terminal bool) {
	if p.onNotice != nil {
		p.onNotice(err, terminal)
	}
}
