package entities

import (
	"errors"
	"fmt"

	"interview-room/constant"
)

type QuestionRef struct {
	ID                      string `json:"id"`
	Text                    string `json:"text"`
	Category                string `json:"category"`
	Difficulty              string `json:"difficulty"`
	ExpectedDurationSeconds int    `json:"expected_duration_seconds"`
}

// WithDefaults fills the question bank defaults for fields the backend left empty.
func (q QuestionRef) WithDefaults() QuestionRef {
	if q.Category == "" {
		q.Category = "general"
	}
	if q.Difficulty == "" {
		q.Difficulty = "medium"
	}
	if q.ExpectedDurationSeconds <= 0 {
		q.ExpectedDurationSeconds = 120
	}
	return q
}

// LLMEvaluation is the structured verdict of the language model for one answer.
// A nil *LLMEvaluation means the evaluation is absent.
type LLMEvaluation struct {
	ClarityScore       int            `json:"clarity_score"`
	ConfidenceScore    int            `json:"confidence_score"`
	LogicScore         int            `json:"logic_score"`
	RelevanceScore     int            `json:"relevance_score"`
	OverallScore       int            `json:"overall_score"`
	CommunicationLevel string         `json:"communication_level"`
	PersonalityTraits  map[string]int `json:"personality_traits,omitempty"`
	Strengths          []string       `json:"strengths"`
	Weaknesses         []string       `json:"weaknesses"`
	Reasoning          string         `json:"reasoning"`
	FinalVerdict       string         `json:"final_verdict"`
}

type Answer struct {
	QuestionID          string             `json:"question_id"`
	QuestionText        string             `json:"question_text"`
	MediaRef            string             `json:"video_path,omitempty"`
	Processed           bool               `json:"processed"`
	Transcript          *string            `json:"transcript"`
	EmotionDistribution map[string]float64 `json:"emotion_distribution"`
	ConfidenceIndex     float64            `json:"confidence_index"`
	NervousnessScore    float64            `json:"nervousness_score"`
	HesitationScore     float64            `json:"hesitation_score"`
	PauseCount          int                `json:"pause_count"`
	LLMEvaluation       *LLMEvaluation     `json:"llm_evaluation"`
	AnswerFinalScore    float64            `json:"answer_final_score"`
}

// InterviewSession is an immutable snapshot of one candidate's interview as
// last reported by the backend. Snapshots are replaced, never mutated.
type InterviewSession struct {
	ID             string                 `json:"id"`
	CandidateID    string                 `json:"candidate_id"`
	CandidateName  string                 `json:"candidate_name"`
	CandidateEmail string                 `json:"candidate_email"`
	Questions      []QuestionRef          `json:"questions,omitempty"`
	Status         constant.SessionStatus `json:"status"`
	FinalScore     *float64               `json:"final_score,omitempty"`
	Category       *constant.Category     `json:"category,omitempty"`
	Answers        []Answer               `json:"answers"`
	StartedAt      string                 `json:"started_at,omitempty"`
	CompletedAt    string                 `json:"completed_at,omitempty"`
}

// Normalize drops the score and category the backend reports with default
// values before the session is completed.
func (s *InterviewSession) Normalize() {
	if s.Status != constant.SessionStatusCompleted {
		s.FinalScore = nil
		s.Category = nil
	}
	if s.Answers == nil {
		s.Answers = []Answer{}
	}
}

func (s *InterviewSession) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.Status.Rank() < 0 {
		return fmt.Errorf("invalid session status %q", s.Status)
	}
	completed := s.Status == constant.SessionStatusCompleted
	if completed != (s.FinalScore != nil) || completed != (s.Category != nil) {
		return fmt.Errorf("final score and category must be present iff completed (status %s)", s.Status)
	}
	if s.FinalScore != nil && (*s.FinalScore < 0 || *s.FinalScore > 10) {
		return fmt.Errorf("final score %.2f out of range", *s.FinalScore)
	}
	return nil
}

func (s *InterviewSession) ProcessedCount() int {
	n := 0
	for _, a := range s.Answers {
		if a.Processed {
			n++
		}
	}
	return n
}

func (s *InterviewSession) Answer(questionID string) (Answer, bool) {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return Answer{}, false
}
