package entities

import "interview-room/constant"

type CandidateRosterEntry struct {
	SessionID      string                 `json:"session_id"`
	CandidateID    string                 `json:"candidate_id"`
	CandidateName  string                 `json:"candidate_name"`
	CandidateEmail string                 `json:"candidate_email"`
	Status         constant.SessionStatus `json:"status"`
	AnswerCount    int                    `json:"answer_count"`
	FinalScore     *float64               `json:"final_score"`
	Category       constant.Category      `json:"category"`
	StartedAt      string                 `json:"started_at,omitempty"`
}

// Normalize hides the placeholder score of sessions that are not completed.
func (e *CandidateRosterEntry) Normalize() {
	if e.Status != constant.SessionStatusCompleted {
		e.FinalScore = nil
		e.Category = ""
	}
}
