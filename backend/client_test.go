package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"interview-room/constant"
	"interview-room/entities"
)

type fakeCredentials struct {
	mu         sync.Mutex
	token      string
	terminated []error
}

func (f *fakeCredentials) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCredentials) Terminate(_ context.Context, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.terminated = append(f.terminated, cause)
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *fakeCredentials) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	creds := &fakeCredentials{token: "tkn"}
	return NewClient(srv.URL, time.Second, 2*time.Second, creds), creds
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSubmitAnswerSendsMultipart(t *testing.T) {
	var got struct {
		auth, session, question, text, filename, contentType string
		data                                                 []byte
	}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload/answer" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		got.auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		got.session = r.FormValue("session_id")
		got.question = r.FormValue("question_id")
		got.text = r.FormValue("question_text")
		f, header, err := r.FormFile("video")
		if err != nil {
			t.Errorf("video part: %v", err)
			return
		}
		defer f.Close()
		got.filename = header.Filename
		got.contentType = header.Header.Get("Content-Type")
		got.data, _ = io.ReadAll(f)

		writeJSON(w, http.StatusAccepted, map[string]any{
			"session_id":         got.session,
			"question_id":        got.question,
			"message":            "Video uploaded. Processing started in background.",
			"processing_started": true,
		})
	})

	resp, err := client.SubmitAnswer(context.Background(), AnswerUpload{
		SessionID:    "s1",
		QuestionID:   "q1",
		QuestionText: "Tell me about yourself",
		Data:         []byte("webm-bytes"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.ProcessingStarted {
		t.Error("expected processing_started")
	}
	if got.auth != "Bearer tkn" {
		t.Errorf("unexpected authorization %q", got.auth)
	}
	if got.session != "s1" || got.question != "q1" || got.text != "Tell me about yourself" {
		t.Errorf("unexpected fields %+v", got)
	}
	if got.filename != "q1.webm" || got.contentType != "video/webm" {
		t.Errorf("unexpected file part %s %s", got.filename, got.contentType)
	}
	if string(got.data) != "webm-bytes" {
		t.Errorf("unexpected payload %q", got.data)
	}
}

func TestUnauthorizedTerminatesCredential(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, code, map[string]string{"detail": "Could not validate credentials"})
		})

		_, err := client.GetSession(context.Background(), "s1")
		if !errors.Is(err, entities.ErrUnauthorized) {
			t.Fatalf("%d: expected ErrUnauthorized, got %v", code, err)
		}
		if len(creds.terminated) != 1 {
			t.Errorf("%d: expected one termination, got %d", code, len(creds.terminated))
		}
		if creds.Token() != "" {
			t.Errorf("%d: credential should be cleared", code)
		}
	}
}

func TestLoginFailureDoesNotTerminate(t *testing.T) {
	client, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send a bearer token")
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
	})

	_, err := client.Login(context.Background(), "a@b.c", "wrong")
	if !errors.Is(err, entities.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Detail != "Invalid credentials" {
		t.Errorf("expected backend detail, got %v", err)
	}
	if len(creds.terminated) != 0 {
		t.Error("login failure must not terminate the current credential")
	}
}

func TestServerErrorIsRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := client.CompleteSession(context.Background(), "s1")
	if !errors.Is(err, entities.ErrServerRejected) {
		t.Fatalf("expected ErrServerRejected, got %v", err)
	}
	if entities.Retryable(err) {
		t.Error("server rejection is not a network error")
	}
}

func TestCompleteConflictIsInformational(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/interview/session/s1/complete" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "already complete"})
	})

	err := client.CompleteSession(context.Background(), "s1")
	if !errors.Is(err, entities.ErrSessionAlreadyComplete) {
		t.Fatalf("expected ErrSessionAlreadyComplete, got %v", err)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL, 20*time.Millisecond, 40*time.Millisecond, &fakeCredentials{})
	_, err := client.GetSession(context.Background(), "s1")
	if !errors.Is(err, entities.ErrTimeout) || !errors.Is(err, entities.ErrNetwork) {
		t.Fatalf("expected network timeout, got %v", err)
	}
	if !entities.Retryable(err) {
		t.Error("timeouts are retryable")
	}
}

func TestUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client := NewClient(addr, time.Second, 2*time.Second, &fakeCredentials{})
	_, err := client.ListQuestions(context.Background())
	if !errors.Is(err, entities.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestGetSessionNormalizesPlaceholderScore(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":           "s1",
			"candidate_id": "c1",
			"status":       "processing",
			"final_score":  0.0,
			"category":     "Not Recommended",
			"started_at":   "2024-05-01T10:00:00.123000",
			"answers": []map[string]any{{
				"question_id":          "q1",
				"question_text":        "Q1",
				"processed":            true,
				"transcript":           "hi",
				"emotion_distribution": map[string]float64{"happy": 0.7, "neutral": 0.3},
				"llm_evaluation":       nil,
			}},
		})
	})

	s, err := client.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Status != constant.SessionStatusProcessing {
		t.Errorf("unexpected status %s", s.Status)
	}
	if s.FinalScore != nil || s.Category != nil {
		t.Error("score and category must be absent before completion")
	}
	if len(s.Answers) != 1 || s.Answers[0].LLMEvaluation != nil || *s.Answers[0].Transcript != "hi" {
		t.Errorf("unexpected answers %+v", s.Answers)
	}
}

func TestGetSessionRejectsInvalidSnapshot(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "s1", "status": "completed"})
	})

	_, err := client.GetSession(context.Background(), "s1")
	if !errors.Is(err, entities.ErrServerRejected) {
		t.Fatalf("expected ErrServerRejected, got %v", err)
	}
}

func TestGetAdminSessionReadsDocumentShape(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/session/65f0abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":              "65f0abc",
			"candidate_id":    "u1",
			"candidate_name":  "Ana",
			"candidate_email": "ana@example.com",
			"status":          "completed",
			"final_score":     8.4,
			"category":        "Highly Recommended",
			"started_at":      "2024-05-01T10:00:00.123000",
			"completed_at":    "2024-05-01T10:20:00.000000",
			"answers": []map[string]any{{
				"question_id":          "q1",
				"question_text":        "Q1",
				"processed":            true,
				"video_path":           "uploads/65f0abc/q1.webm",
				"emotion_distribution": map[string]float64{"happy": 1},
			}},
		})
	})

	s, err := client.GetAdminSession(context.Background(), "65f0abc")
	if err != nil {
		t.Fatalf("get admin session: %v", err)
	}
	if s.ID != "65f0abc" || s.CandidateID != "u1" || s.CandidateName != "Ana" {
		t.Errorf("identity lost: id=%q candidate=%q name=%q", s.ID, s.CandidateID, s.CandidateName)
	}
	if s.FinalScore == nil || *s.FinalScore != 8.4 || s.Category == nil || *s.Category != constant.CategoryHighlyRecommended {
		t.Errorf("unexpected score %v / category %v", s.FinalScore, s.Category)
	}
	if len(s.Answers) != 1 || s.Answers[0].MediaRef != "uploads/65f0abc/q1.webm" {
		t.Errorf("unexpected answers %+v", s.Answers)
	}
}

func TestMySessions(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/interview/my-sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": []map[string]any{
			{"id": "s1", "candidate_id": "u1", "status": "completed", "final_score": 6.5, "category": "Average"},
			{"id": "s2", "candidate_id": "u1", "status": "in_progress", "final_score": 0.0, "category": "Not Recommended"},
		}})
	})

	sessions, err := client.MySessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s1" || sessions[0].FinalScore == nil {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
	if sessions[1].FinalScore != nil || sessions[1].Category != nil {
		t.Errorf("in-progress session must not carry a score: %+v", sessions[1])
	}
}

func TestAnswerMediaStreamsBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/session/s1/video/q1":
			w.Header().Set("Content-Type", "video/webm")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("webm-bytes"))
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Video not available"})
		}
	})

	media, err := client.AnswerMedia(context.Background(), "s1", "q1")
	if err != nil {
		t.Fatalf("answer media: %v", err)
	}
	defer media.Body.Close()
	data, err := io.ReadAll(media.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "webm-bytes" || media.ContentType != "video/webm" {
		t.Errorf("unexpected media %q (%s)", data, media.ContentType)
	}

	if _, err := client.AnswerMedia(context.Background(), "s1", "q2"); !errors.Is(err, entities.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListQuestionsAppliesDefaults(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"questions": []map[string]any{{"id": "q1", "text": "Why us?"}},
		})
	})

	qs, err := client.ListQuestions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 1 || qs[0].Category != "general" || qs[0].Difficulty != "medium" || qs[0].ExpectedDurationSeconds != 120 {
		t.Errorf("unexpected questions %+v", qs)
	}
}

func TestListCandidatesAndDelete(t *testing.T) {
	var deleted string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/candidates":
			writeJSON(w, http.StatusOK, map[string]any{"candidates": []map[string]any{
				{"session_id": "s1", "candidate_name": "Ana", "status": "completed", "final_score": 8.4, "category": "Highly Recommended"},
				{"session_id": "s2", "candidate_name": "Bo", "status": "in_progress", "final_score": 0.0, "category": "Not Recommended"},
			}})
		case r.Method == http.MethodDelete && r.URL.Path == "/admin/session/missing":
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
			writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	entries, err := client.ListCandidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].FinalScore == nil || *entries[0].FinalScore != 8.4 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[1].FinalScore != nil || entries[1].Category != "" {
		t.Errorf("in-progress entry must not carry a score: %+v", entries[1])
	}

	if err := client.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if deleted != "/admin/session/s1" {
		t.Errorf("unexpected delete path %s", deleted)
	}
	if err := client.DeleteSession(context.Background(), "missing"); !errors.Is(err, entities.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
