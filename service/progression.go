package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"interview-room/constant"
	"interview-room/entities"
	"interview-room/recorder"
)

type SessionCompleter interface {
	CompleteSession(ctx context.Context, sessionID string) error
}

// Progression walks the ordered question list of one session. It moves to
// the next question only once the current answer was accepted, and completes
// the session once the answer to the last one was.
type Progression struct {
	sessionID string
	questions []entities.QuestionRef
	completer SessionCompleter
	ctrl      *recorder.Controller

	mu        sync.Mutex
	index     int
	completed bool
}

func NewProgression(sessionID string, questions []entities.QuestionRef, completer SessionCompleter, ctrl *recorder.Controller) (*Progression, error) {
	if len(questions) == 0 {
		return nil, errors.New("interview has no questions")
	}
	return &Progression{
		sessionID: sessionID,
		questions: append([]entities.QuestionRef(nil), questions...),
		completer: completer,
		ctrl:      ctrl,
	}, nil
}

func (p *Progression) SessionID() string {
	return p.sessionID
}

func (p *Progression) Questions() []entities.QuestionRef {
	return append([]entities.QuestionRef(nil), p.questions...)
}

// Current returns the active question and its zero-based index.
func (p *Progression) Current() (entities.QuestionRef, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.questions[p.index], p.index
}

func (p *Progression) IsLast() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index == len(p.questions)-1
}

func (p *Progression) Completed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Seek positions the driver at index when resuming a session.
func (p *Progression) Seek(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.questions) || p.completed {
		return entities.ErrInvalidTransition
	}
	p.index = index
	return nil
}

// Advance moves to the next question. The current answer must be uploaded
// and there must be a next question; after the last one use Complete.
func (p *Progression) Advance() error {
	p.mu.Lock()
	blocked := p.completed || p.index >= len(p.questions)-1
	p.mu.Unlock()
	if blocked {
		return entities.ErrInvalidTransition
	}
	if err := p.ctrl.Advance(); err != nil {
		return err
	}
	p.mu.Lock()
	p.index++
	p.mu.Unlock()
	return nil
}

// Complete asks the backend to finalize the session. It is only allowed on
// the last question once its answer was accepted, and does not wait for
// processing. A session the backend already completed counts as completed.
func (p *Progression) Complete(ctx context.Context) error {
	p.mu.Lock()
	completed, last := p.completed, p.index == len(p.questions)-1
	p.mu.Unlock()
	if completed {
		return nil
	}
	if !last || p.ctrl.Status() != constant.RecordingStatusUploaded {
		return entities.ErrInvalidTransition
	}
	return p.finish(ctx)
}

// CompleteAnswered finalizes a resumed session whose every question already
// has an answer on the backend.
func (p *Progression) CompleteAnswered(ctx context.Context) error {
	p.mu.Lock()
	p.index = len(p.questions) - 1
	p.mu.Unlock()
	return p.finish(ctx)
}

func (p *Progression) finish(ctx context.Context) error {
	err := p.completer.CompleteSession(ctx, p.sessionID)
	if errors.Is(err, entities.ErrSessionAlreadyComplete) {
		zerolog.Ctx(ctx).Info().Str("session_id", p.sessionID).Msg("session was already complete")
		err = nil
	}
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.completed = true
	p.mu.Unlock()
	zerolog.Ctx(ctx).Info().Str("session_id", p.sessionID).Msg("session completion requested")
	return nil
}
