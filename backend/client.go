package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"interview-room/dto"
	"interview-room/entities"
)

// Credentials supplies the bearer token and is told when the backend rejects it.
type Credentials interface {
	Token() string
	Terminate(ctx context.Context, cause error)
}

// StatusError carries the HTTP status and detail of a rejected request.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Detail)
}

type Client struct {
	baseURL string
	http    *http.Client
	upload  *http.Client
	creds   Credentials
}

func NewClient(baseURL string, requestTimeout, uploadTimeout time.Duration, creds Credentials) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		upload:  &http.Client{Timeout: uploadTimeout},
		creds:   creds,
	}
}

type call struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	out         any
	accept      string
	upload      bool
	anonymous   bool
}

func (c *Client) do(ctx context.Context, in call) error {
	resp, err := c.send(ctx, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if in.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(in.out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", entities.ErrServerRejected, in.path, err)
	}
	return nil
}

// send performs the request and maps a non-2xx status to the error taxonomy.
// The caller owns the body of a successful response.
func (c *Client) send(ctx context.Context, in call) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, in.method, c.baseURL+in.path, in.body)
	if err != nil {
		return nil, err
	}
	if in.contentType != "" {
		req.Header.Set("Content-Type", in.contentType)
	}
	if in.accept == "" {
		in.accept = "application/json"
	}
	req.Header.Set("Accept", in.accept)
	if !in.anonymous && c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	client := c.http
	if in.upload {
		client = c.upload
	}

	logger := zerolog.Ctx(ctx)
	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug().Err(err).Str("method", in.method).Str("path", in.path).Msg("backend request failed")
		return nil, transportError(ctx, err)
	}

	logger.Debug().
		Str("method", in.method).
		Str("path", in.path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(started)).
		Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		statusErr := &StatusError{Code: resp.StatusCode, Detail: readDetail(resp.Body)}
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			err := errors.Join(entities.ErrUnauthorized, statusErr)
			if !in.anonymous && c.creds != nil {
				c.creds.Terminate(ctx, err)
			}
			return nil, err
		case http.StatusNotFound:
			return nil, errors.Join(entities.ErrNotFound, statusErr)
		default:
			return nil, errors.Join(entities.ErrServerRejected, statusErr)
		}
	}
	return resp, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Join(entities.ErrNetwork, entities.ErrTimeout, err)
	}
	return errors.Join(entities.ErrNetwork, err)
}

func readDetail(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 64*1024))
	var e dto.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(raw))
}

func jsonBody(v any) (io.Reader, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*dto.LoginResponse, error) {
	body, err := jsonBody(dto.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	var out dto.LoginResponse
	err = c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        body,
		contentType: "application/json",
		out:         &out,
		anonymous:   true,
	})
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: login returned no token", entities.ErrServerRejected)
	}
	return &out, nil
}

func (c *Client) StartSession(ctx context.Context) (string, error) {
	var out dto.StartSessionResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: "/interview/session/start", out: &out}); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("%w: no session id returned", entities.ErrServerRejected)
	}
	return out.SessionID, nil
}

func (c *Client) ListQuestions(ctx context.Context) ([]entities.QuestionRef, error) {
	var out dto.QuestionsResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/interview/questions", out: &out}); err != nil {
		return nil, err
	}
	questions := make([]entities.QuestionRef, 0, len(out.Questions))
	for _, q := range out.Questions {
		questions = append(questions, q.WithDefaults())
	}
	return questions, nil
}

type AnswerUpload struct {
	SessionID    string
	QuestionID   string
	QuestionText string
	FileName     string
	MimeType     string
	Data         []byte
}

// SubmitAnswer uploads one recorded answer. The backend accepts it with 202
// and processes it in the background.
func (c *Client) SubmitAnswer(ctx context.Context, upload AnswerUpload) (*dto.SubmitAnswerResponse, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fields := [][2]string{
		{"session_id", upload.SessionID},
		{"question_id", upload.QuestionID},
		{"question_text", upload.QuestionText},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}

	name := upload.FileName
	if name == "" {
		name = upload.QuestionID + ".webm"
	}
	mime := upload.MimeType
	if mime == "" {
		mime = "video/webm"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, name))
	header.Set("Content-Type", mime)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err = part.Write(upload.Data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	var out dto.SubmitAnswerResponse
	err = c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/upload/answer",
		body:        &b,
		contentType: w.FormDataContentType(),
		out:         &out,
		upload:      true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AnswerStatus(ctx context.Context, sessionID, questionID string) (bool, error) {
	var out dto.AnswerStatusResponse
	path := "/upload/status/" + url.PathEscape(sessionID) + "/" + url.PathEscape(questionID)
	if err := c.do(ctx, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return false, err
	}
	return out.Processed, nil
}

// CompleteSession asks the backend to finalize scoring. It does not wait for
// processing to finish.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) error {
	err := c.do(ctx, call{method: http.MethodPost, path: "/interview/session/" + url.PathEscape(sessionID) + "/complete"})
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict {
		return errors.Join(entities.ErrSessionAlreadyComplete, statusErr)
	}
	return err
}

// GetSession fetches the current snapshot of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*entities.InterviewSession, error) {
	return c.getSession(ctx, "/interview/session/"+url.PathEscape(sessionID))
}

func (c *Client) getSession(ctx context.Context, path string) (*entities.InterviewSession, error) {
	var out entities.InterviewSession
	if err := c.do(ctx, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	out.Normalize()
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrServerRejected, err)
	}
	return &out, nil
}

// MySessions lists every session of the logged-in candidate.
func (c *Client) MySessions(ctx context.Context) ([]*entities.InterviewSession, error) {
	var out dto.SessionsResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/interview/my-sessions", out: &out}); err != nil {
		return nil, err
	}
	sessions := make([]*entities.InterviewSession, 0, len(out.Sessions))
	for i := range out.Sessions {
		s := &out.Sessions[i]
		s.Normalize()
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%w: session %s: %w", entities.ErrServerRejected, s.ID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (c *Client) ListCandidates(ctx context.Context) ([]entities.CandidateRosterEntry, error) {
	var out dto.CandidatesResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/admin/candidates", out: &out}); err != nil {
		return nil, err
	}
	for i := range out.Candidates {
		out.Candidates[i].Normalize()
	}
	if out.Candidates == nil {
		out.Candidates = []entities.CandidateRosterEntry{}
	}
	return out.Candidates, nil
}

// GetAdminSession fetches a session through the admin endpoint. The admin
// endpoint returns the same document as the candidate one.
func (c *Client) GetAdminSession(ctx context.Context, sessionID string) (*entities.InterviewSession, error) {
	return c.getSession(ctx, "/admin/session/"+url.PathEscape(sessionID))
}

// AnswerMedia streams the recording the backend kept for one answer. The
// caller closes the returned body. Downloads use the upload timeout.
func (c *Client) AnswerMedia(ctx context.Context, sessionID, questionID string) (*dto.MediaStream, error) {
	resp, err := c.send(ctx, call{
		method: http.MethodGet,
		path:   "/admin/session/" + url.PathEscape(sessionID) + "/video/" + url.PathEscape(questionID),
		accept: "video/*",
		upload: true,
	})
	if err != nil {
		return nil, err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/webm"
	}
	return &dto.MediaStream{Body: resp.Body, ContentType: contentType, Size: resp.ContentLength}, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, call{method: http.MethodDelete, path: "/admin/session/" + url.PathEscape(sessionID)})
}
