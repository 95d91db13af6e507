package dto

import (
	"io"

	"interview-room/constant"
	"interview-room/entities"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type QuestionsResponse struct {
	Questions []entities.QuestionRef `json:"questions"`
}

type SubmitAnswerResponse struct {
	SessionID         string `json:"session_id"`
	QuestionID        string `json:"question_id"`
	Message           string `json:"message"`
	ProcessingStarted bool   `json:"processing_started"`
}

type AnswerStatusResponse struct {
	Processed  bool   `json:"processed"`
	QuestionID string `json:"question_id"`
}

type CandidatesResponse struct {
	Candidates []entities.CandidateRosterEntry `json:"candidates"`
}

type SessionsResponse struct {
	Sessions []entities.InterviewSession `json:"sessions"`
}

// MediaStream is a recorded answer being read from storage. Size is -1 when
// unknown.
type MediaStream struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ErrorResponse is the error body of the analysis backend.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// SessionEvent is published by the backend when it changes a session. The
// room treats it as a hint to poll early.
type SessionEvent struct {
	SessionID  string                 `json:"sessionId"`
	QuestionID string                 `json:"questionId,omitempty"`
	Status     constant.SessionStatus `json:"status,omitempty"`
	Event      string                 `json:"event"`
}

// Room API bodies.

type StartRoomRequest struct {
	SessionID string `json:"session_id"`
}

type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
