package service

import (
	"errors"
	"testing"

	"interview-room/entities"
	"interview-room/recorder"
	"interview-room/storage"
)

func openSpool(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSubmitterUnspoolsAcceptedAnswer(t *testing.T) {
	ctx := testContext()
	fb := newFakeBackend("q1")
	store := openSpool(t)
	media := &fakeMedia{}
	s := NewSubmitter(fb, store, media)

	artifact := recorder.Artifact{ID: "a1", MimeType: "video/webm", Data: []byte("video")}
	if err := s.Submit(ctx, "s1", fb.questions[0], artifact); err != nil {
		t.Fatalf("submit: %v", err)
	}

	pending, err := store.PendingAnswers("s1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("accepted answer left in spool: %+v", pending)
	}
	if len(fb.uploads) != 1 || string(fb.uploads[0].Data) != "video" || fb.uploads[0].QuestionText != "Question q1" {
		t.Errorf("unexpected uploads %+v", fb.uploads)
	}
	if len(media.put) != 1 || media.put[0] != "s1/q1" {
		t.Errorf("expected mirrored media, got %v", media.put)
	}
}

func TestSubmitterKeepsSpoolOnFailure(t *testing.T) {
	ctx := testContext()
	fb := newFakeBackend("q1")
	fb.uploadErrs = []error{errors.Join(entities.ErrNetwork, entities.ErrTimeout)}
	store := openSpool(t)
	s := NewSubmitter(fb, store, nil)

	artifact := recorder.Artifact{ID: "a1", MimeType: "video/webm", Data: []byte("video")}
	if err := s.Submit(ctx, "s1", fb.questions[0], artifact); !errors.Is(err, entities.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	spooled, err := store.SpooledAnswer("s1", "q1")
	if err != nil {
		t.Fatalf("spooled answer missing: %v", err)
	}
	if spooled.ArtifactID != "a1" || string(spooled.Data) != "video" {
		t.Errorf("unexpected spooled answer %+v", spooled)
	}
}

func TestSubmitterMediaFailureDoesNotFailSubmit(t *testing.T) {
	fb := newFakeBackend("q1")
	s := NewSubmitter(fb, nil, &fakeMedia{putErr: errors.New("bucket gone")})

	artifact := recorder.Artifact{ID: "a1", MimeType: "video/webm", Data: []byte("video")}
	if err := s.Submit(testContext(), "s1", fb.questions[0], artifact); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmitterRecoverUploadsSpooledAnswers(t *testing.T) {
	ctx := testContext()
	fb := newFakeBackend("q1", "q2")
	store := openSpool(t)
	for _, q := range fb.questions {
		if err := store.SpoolAnswer(storage.SpooledAnswer{SessionID: "s1", QuestionID: q.ID, MimeType: "video/webm", Data: []byte(q.ID)}); err != nil {
			t.Fatalf("spool: %v", err)
		}
	}
	if err := store.SpoolAnswer(storage.SpooledAnswer{SessionID: "other", QuestionID: "q1", Data: []byte("x")}); err != nil {
		t.Fatalf("spool: %v", err)
	}

	fb.uploadErrs = []error{entities.ErrNetwork}
	delivered, err := NewSubmitter(fb, store, nil).Recover(ctx, "s1")
	if !errors.Is(err, entities.ErrNetwork) {
		t.Fatalf("expected the failed upload to be reported, got %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected one delivered answer, got %v", delivered)
	}

	pending, _ := store.PendingAnswers("s1")
	if len(pending) != 1 {
		t.Errorf("expected the failed answer to stay spooled, got %d", len(pending))
	}
	other, _ := store.PendingAnswers("other")
	if len(other) != 1 {
		t.Error("answers of other sessions must not be touched")
	}
}

func TestSubmitterRecoverStopsOnUnauthorized(t *testing.T) {
	fb := newFakeBackend("q1", "q2")
	store := openSpool(t)
	for _, q := range fb.questions {
		store.SpoolAnswer(storage.SpooledAnswer{SessionID: "s1", QuestionID: q.ID, Data: []byte(q.ID)})
	}
	fb.uploadErrs = []error{entities.ErrUnauthorized}

	_, err := NewSubmitter(fb, store, nil).Recover(testContext(), "s1")
	if !errors.Is(err, entities.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(fb.uploads) != 0 {
		t.Errorf("no upload may follow a rejected credential, got %d", len(fb.uploads))
	}
}
