package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"interview-room/dto"
)

type SessionNudger interface {
	Nudge(ctx context.Context, sessionID string)
}

type ServiceDependencies struct {
	Room SessionNudger
}

var ErrMissingSessionID = errors.New("session event without session id")

// SessionEventHandler turns a backend session event into an early poll of
// the room. Undecodable events are rejected permanently.
func SessionEventHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var event dto.SessionEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal session event")
		return backoff.Permanent(err)
	}
	if event.SessionID == "" {
		return backoff.Permanent(ErrMissingSessionID)
	}

	zerolog.Ctx(ctx).Debug().
		Str("session_id", event.SessionID).
		Str("question_id", event.QuestionID).
		Str("event", event.Event).
		Msg("received session event")

	deps.Room.Nudge(ctx, event.SessionID)
	return nil
}
