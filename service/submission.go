package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"interview-room/backend"
	"interview-room/dto"
	"interview-room/entities"
	"interview-room/recorder"
	"interview-room/storage"
)

type AnswerUploader interface {
	SubmitAnswer(ctx context.Context, upload backend.AnswerUpload) (*dto.SubmitAnswerResponse, error)
}

type Spool interface {
	SpoolAnswer(a storage.SpooledAnswer) error
	UnspoolAnswer(sessionID, questionID string) error
	PendingAnswers(sessionID string) ([]storage.SpooledAnswer, error)
}

type MediaArchiver interface {
	Put(ctx context.Context, sessionID, questionID, mimeType string, data []byte) (string, error)
}

// Submitter delivers recorded answers to the backend. The recording is
// spooled to disk before upload and dropped from the spool once accepted, so
// captured media survives a crash between stop and acceptance.
type Submitter struct {
	uploader AnswerUploader
	spool    Spool
	media    MediaArchiver
}

// NewSubmitter builds a submitter. spool and media may be nil.
func NewSubmitter(uploader AnswerUploader, spool Spool, media MediaArchiver) *Submitter {
	return &Submitter{uploader: uploader, spool: spool, media: media}
}

func (s *Submitter) Submit(ctx context.Context, sessionID string, question entities.QuestionRef, artifact recorder.Artifact) error {
	logger := zerolog.Ctx(ctx).With().
		Str("session_id", sessionID).
		Str("question_id", question.ID).
		Str("artifact_id", artifact.ID).
		Logger()

	if s.spool != nil {
		err := s.spool.SpoolAnswer(storage.SpooledAnswer{
			SessionID:    sessionID,
			QuestionID:   question.ID,
			QuestionText: question.Text,
			ArtifactID:   artifact.ID,
			MimeType:     artifact.MimeType,
			Data:         artifact.Data,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to spool answer, uploading from memory only")
		}
	}

	return s.upload(logger.WithContext(ctx), storage.SpooledAnswer{
		SessionID:    sessionID,
		QuestionID:   question.ID,
		QuestionText: question.Text,
		ArtifactID:   artifact.ID,
		MimeType:     artifact.MimeType,
		Data:         artifact.Data,
	})
}

func (s *Submitter) upload(ctx context.Context, a storage.SpooledAnswer) error {
	logger := zerolog.Ctx(ctx)

	resp, err := s.uploader.SubmitAnswer(ctx, backend.AnswerUpload{
		SessionID:    a.SessionID,
		QuestionID:   a.QuestionID,
		QuestionText: a.QuestionText,
		MimeType:     a.MimeType,
		Data:         a.Data,
	})
	if err != nil {
		logger.Error().Err(err).Int("size", len(a.Data)).Msg("answer upload failed")
		return err
	}
	logger.Info().Bool("processing_started", resp.ProcessingStarted).Int("size", len(a.Data)).Msg("answer accepted")

	if s.spool != nil {
		if err := s.spool.UnspoolAnswer(a.SessionID, a.QuestionID); err != nil {
			logger.Warn().Err(err).Msg("failed to remove spooled answer")
		}
	}
	if s.media != nil {
		if _, err := s.media.Put(ctx, a.SessionID, a.QuestionID, a.MimeType, a.Data); err != nil {
			logger.Warn().Err(err).Msg("failed to archive answer media")
		}
	}
	return nil
}

// Recover re-uploads answers of a session that were spooled but never
// accepted. It returns the question ids that were delivered.
func (s *Submitter) Recover(ctx context.Context, sessionID string) ([]string, error) {
	if s.spool == nil {
		return nil, nil
	}
	pending, err := s.spool.PendingAnswers(sessionID)
	if err != nil {
		return nil, err
	}

	var delivered []string
	var errs []error
	for _, a := range pending {
		logger := zerolog.Ctx(ctx).With().Str("session_id", a.SessionID).Str("question_id", a.QuestionID).Logger()
		if err := s.upload(logger.WithContext(ctx), a); err != nil {
			if errors.Is(err, entities.ErrUnauthorized) {
				return delivered, err
			}
			errs = append(errs, err)
			continue
		}
		delivered = append(delivered, a.QuestionID)
	}
	return delivered, errors.Join(errs...)
}
