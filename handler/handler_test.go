package handler

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type recordingNudger struct {
	sessions []string
}

func (r *recordingNudger) Nudge(_ context.Context, sessionID string) {
	r.sessions = append(r.sessions, sessionID)
}

func TestSessionEventHandler(t *testing.T) {
	logger := zerolog.Nop()
	ctx := logger.WithContext(context.Background())

	tests := []struct {
		name    string
		body    string
		nudged  bool
		wantErr error
	}{
		{name: "answer processed", body: `{"sessionId":"s1","questionId":"q1","event":"answer_processed"}`, nudged: true},
		{name: "status change", body: `{"sessionId":"s1","status":"completed","event":"session_completed"}`, nudged: true},
		{name: "missing session", body: `{"event":"answer_processed"}`, wantErr: ErrMissingSessionID},
		{name: "malformed", body: `{"sessionId":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nudger := &recordingNudger{}
			err := SessionEventHandler(ctx, amqp.Delivery{Body: []byte(tt.body)}, ServiceDependencies{Room: nudger})

			if tt.nudged {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(nudger.sessions) != 1 || nudger.sessions[0] != "s1" {
					t.Errorf("expected nudge for s1, got %v", nudger.sessions)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if len(nudger.sessions) != 0 {
				t.Errorf("rejected event must not nudge, got %v", nudger.sessions)
			}
		})
	}
}
