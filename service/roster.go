package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"interview-room/aggregate"
	"interview-room/dto"
	"interview-room/entities"
	"interview-room/storage"
)

type RosterBackend interface {
	ListCandidates(ctx context.Context) ([]entities.CandidateRosterEntry, error)
	GetAdminSession(ctx context.Context, sessionID string) (*entities.InterviewSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	AnswerMedia(ctx context.Context, sessionID, questionID string) (*dto.MediaStream, error)
}

// ResultArchive is the local copy of terminal session results.
type ResultArchive interface {
	FindSessionByID(ctx context.Context, id string) (*entities.ArchivedSession, error)
	DeleteSession(ctx context.Context, id string) error
}

type MediaRemover interface {
	RemoveSession(ctx context.Context, sessionID string) error
}

// RosterMedia is the archive of accepted answer recordings.
type RosterMedia interface {
	MediaRemover
	OpenAnswer(ctx context.Context, sessionID, questionID string) (*dto.MediaStream, error)
}

type RosterView struct {
	Entries     []entities.CandidateRosterEntry `json:"entries"`
	Summary     aggregate.RosterSummary         `json:"summary"`
	Matched     int                             `json:"matched"`
	Query       string                          `json:"query,omitempty"`
	SortField   aggregate.SortField             `json:"sort"`
	SortOrder   aggregate.SortOrder             `json:"order"`
	RefreshedAt time.Time                       `json:"refreshed_at"`
}

// Roster is the admin view across all sessions. Entries are fetched on
// Refresh and filtered and sorted locally.
type Roster struct {
	backend RosterBackend
	archive ResultArchive
	media   RosterMedia

	mu          sync.RWMutex
	entries     []entities.CandidateRosterEntry
	refreshedAt time.Time
}

// NewRoster builds the roster service. archive and media may be nil.
func NewRoster(backend RosterBackend, archive ResultArchive, media RosterMedia) *Roster {
	return &Roster{backend: backend, archive: archive, media: media}
}

func (r *Roster) Refresh(ctx context.Context) error {
	entries, err := r.backend.ListCandidates(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to refresh roster")
		return err
	}
	r.mu.Lock()
	r.entries = entries
	r.refreshedAt = time.Now().UTC()
	r.mu.Unlock()
	zerolog.Ctx(ctx).Debug().Int("entries", len(entries)).Msg("roster refreshed")
	return nil
}

// View filters and sorts the last fetched roster. The summary covers the
// whole roster; Matched counts the entries that passed the filter.
func (r *Roster) View(query string, field aggregate.SortField, order aggregate.SortOrder) RosterView {
	r.mu.RLock()
	entries, refreshedAt := r.entries, r.refreshedAt
	r.mu.RUnlock()

	filtered := aggregate.Sort(aggregate.Filter(entries, query), field, order)
	return RosterView{
		Entries:     filtered,
		Summary:     aggregate.Summarize(entries),
		Matched:     len(filtered),
		Query:       query,
		SortField:   field,
		SortOrder:   order,
		RefreshedAt: refreshedAt,
	}
}

// Session returns the detail view of one session. A session the backend no
// longer knows is served from the result archive when it was archived.
func (r *Roster) Session(ctx context.Context, sessionID string) (aggregate.SessionView, error) {
	s, err := r.backend.GetAdminSession(ctx, sessionID)
	if errors.Is(err, entities.ErrNotFound) && r.archive != nil {
		archived, archiveErr := r.archive.FindSessionByID(ctx, sessionID)
		if archiveErr != nil {
			return aggregate.SessionView{}, err
		}
		zerolog.Ctx(ctx).Debug().Str("session_id", sessionID).Msg("session served from archive")
		return aggregate.BuildSessionView(archived.ToSession()), nil
	}
	if err != nil {
		return aggregate.SessionView{}, err
	}
	return aggregate.BuildSessionView(s), nil
}

// AnswerMedia opens the recording of one answer, from the media archive when
// it holds a copy and from the backend otherwise.
func (r *Roster) AnswerMedia(ctx context.Context, sessionID, questionID string) (*dto.MediaStream, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(questionID) == "" {
		return nil, fmt.Errorf("%w: session and question id are required", entities.ErrInvalidArgument)
	}
	if r.media != nil {
		media, err := r.media.OpenAnswer(ctx, sessionID, questionID)
		if err == nil {
			return media, nil
		}
		if !errors.Is(err, storage.ErrMediaNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Str("question_id", questionID).Msg("failed to read archived media")
		}
	}
	return r.backend.AnswerMedia(ctx, sessionID, questionID)
}

// Delete removes a session on the backend and then its archived results and
// media. Local cleanup runs even when the backend no longer knows the
// session; its failures are logged and do not fail the deletion.
func (r *Roster) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", entities.ErrInvalidArgument)
	}
	logger := zerolog.Ctx(ctx).With().Str("session_id", sessionID).Logger()

	err := r.backend.DeleteSession(ctx, sessionID)
	if err != nil && !errors.Is(err, entities.ErrNotFound) {
		logger.Error().Err(err).Msg("failed to delete session")
		return err
	}

	if r.archive != nil {
		if archiveErr := r.archive.DeleteSession(ctx, sessionID); archiveErr != nil {
			logger.Warn().Err(archiveErr).Msg("failed to delete archived results")
		}
	}
	if r.media != nil {
		if mediaErr := r.media.RemoveSession(ctx, sessionID); mediaErr != nil {
			logger.Warn().Err(mediaErr).Msg("failed to remove archived media")
		}
	}

	r.mu.Lock()
	kept := r.entries[:0:0]
	for _, e := range r.entries {
		if e.SessionID != sessionID {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	r.mu.Unlock()

	if err != nil {
		return err
	}
	logger.Info().Msg("session deleted")
	return nil
}
