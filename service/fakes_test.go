package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"interview-room/backend"
	"interview-room/constant"
	"interview-room/dto"
	"interview-room/entities"
	"interview-room/storage"
)

func testContext() context.Context {
	logger := zerolog.Nop()
	return logger.WithContext(context.Background())
}

type fakeBackend struct {
	mu sync.Mutex

	sessionID  string
	questions  []entities.QuestionRef
	uploads    []backend.AnswerUpload
	uploadErrs []error

	completeCalls int
	completeErr   error

	snapshots []*entities.InterviewSession
	fetchErrs []error
	fetches   int
	served    int

	// fetchGate holds the next fetch until closed; fetchHeld is closed once
	// that fetch is waiting.
	fetchGate chan struct{}
	fetchHeld chan struct{}

	candidates []entities.CandidateRosterEntry
	deleted    []string
	deleteErr  error
	mine       []*entities.InterviewSession
	media      map[string]string
}

func newFakeBackend(questions ...string) *fakeBackend {
	fb := &fakeBackend{sessionID: "s1"}
	for _, id := range questions {
		fb.questions = append(fb.questions, entities.QuestionRef{ID: id, Text: "Question " + id}.WithDefaults())
	}
	return fb
}

func (f *fakeBackend) StartSession(context.Context) (string, error) {
	return f.sessionID, nil
}

func (f *fakeBackend) ListQuestions(context.Context) ([]entities.QuestionRef, error) {
	return f.questions, nil
}

func (f *fakeBackend) SubmitAnswer(_ context.Context, upload backend.AnswerUpload) (*dto.SubmitAnswerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.uploadErrs) > 0 {
		err := f.uploadErrs[0]
		f.uploadErrs = f.uploadErrs[1:]
		return nil, err
	}
	f.uploads = append(f.uploads, upload)
	return &dto.SubmitAnswerResponse{SessionID: upload.SessionID, QuestionID: upload.QuestionID, ProcessingStarted: true}, nil
}

func (f *fakeBackend) AnswerStatus(_ context.Context, _, questionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.uploads {
		if u.QuestionID == questionID {
			return true, nil
		}
	}
	return false, entities.ErrNotFound
}

func (f *fakeBackend) CompleteSession(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	return f.completeErr
}

func (f *fakeBackend) GetSession(ctx context.Context, _ string) (*entities.InterviewSession, error) {
	f.mu.Lock()
	gate, held := f.fetchGate, f.fetchHeld
	f.fetchGate, f.fetchHeld = nil, nil
	f.mu.Unlock()
	if gate != nil {
		close(held)
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		return nil, err
	}
	if len(f.snapshots) == 0 {
		return nil, entities.ErrNotFound
	}
	i := f.served
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	f.served++
	return f.snapshots[i], nil
}

func (f *fakeBackend) ListCandidates(context.Context) ([]entities.CandidateRosterEntry, error) {
	return f.candidates, nil
}

func (f *fakeBackend) GetAdminSession(ctx context.Context, id string) (*entities.InterviewSession, error) {
	return f.GetSession(ctx, id)
}

func (f *fakeBackend) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeBackend) MySessions(context.Context) ([]*entities.InterviewSession, error) {
	return f.mine, nil
}

func (f *fakeBackend) AnswerMedia(_ context.Context, sessionID, questionID string) (*dto.MediaStream, error) {
	data, ok := f.media[sessionID+"/"+questionID]
	if !ok {
		return nil, entities.ErrNotFound
	}
	return mediaStream(data), nil
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeBackend) uploadedQuestions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, u := range f.uploads {
		ids = append(ids, u.QuestionID)
	}
	return ids
}

func snapshot(status constant.SessionStatus, answers ...entities.Answer) *entities.InterviewSession {
	s := &entities.InterviewSession{ID: "s1", Status: status, Answers: answers}
	if status == constant.SessionStatusCompleted {
		score := 7.2
		category := constant.CategoryRecommended
		s.FinalScore = &score
		s.Category = &category
	}
	s.Normalize()
	return s
}

type fakeArchive struct {
	mu      sync.Mutex
	saved   []*entities.ArchivedSession
	deleted []string
}

func (a *fakeArchive) SaveSession(_ context.Context, s *entities.ArchivedSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, s)
	return nil
}

func (a *fakeArchive) DeleteSession(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, id)
	return nil
}

func (a *fakeArchive) FindSessionByID(_ context.Context, id string) (*entities.ArchivedSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.saved {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, entities.ErrNotFound
}

func (a *fakeArchive) savedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

type fakeMedia struct {
	mu      sync.Mutex
	put     []string
	removed []string
	putErr  error
	stored  map[string]string
	openErr error
}

func (m *fakeMedia) Put(_ context.Context, sessionID, questionID, _ string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	m.put = append(m.put, sessionID+"/"+questionID)
	return sessionID + "/" + questionID, nil
}

func (m *fakeMedia) RemoveSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, sessionID)
	return nil
}

func (m *fakeMedia) OpenAnswer(_ context.Context, sessionID, questionID string) (*dto.MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	data, ok := m.stored[sessionID+"/"+questionID]
	if !ok {
		return nil, storage.ErrMediaNotFound
	}
	return mediaStream(data), nil
}

func mediaStream(data string) *dto.MediaStream {
	return &dto.MediaStream{Body: io.NopCloser(strings.NewReader(data)), ContentType: "video/webm", Size: int64(len(data))}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
