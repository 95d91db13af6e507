package entities

import (
	"time"

	"github.com/google/uuid"
	"interview-room/constant"
)

type ArchivedSession struct {
	ID             string                 `json:"id" gorm:"type:varchar(64);primary_key"`
	CandidateID    string                 `json:"candidate_id" gorm:"type:varchar(64);index:idx_archived_sessions_candidate"`
	CandidateName  string                 `json:"candidate_name" gorm:"type:varchar(255)"`
	CandidateEmail string                 `json:"candidate_email" gorm:"type:varchar(255)"`
	Status         constant.SessionStatus `json:"status" gorm:"type:varchar(20);not null"`
	FinalScore     *float64               `json:"final_score" gorm:"type:numeric(4,2)"`
	Category       *string                `json:"category" gorm:"type:varchar(32)"`
	AnswerCount    int                    `json:"answer_count" gorm:"type:integer;default:0"`
	Answers        []ArchivedAnswer       `json:"answers" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	ArchivedAt     time.Time              `json:"archived_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (ArchivedSession) TableName() string {
	return "archived_sessions"
}

type ArchivedAnswer struct {
	ID                  uuid.UUID          `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID           string             `json:"session_id" gorm:"type:varchar(64);not null;index:idx_archived_answers_session"`
	Position            int                `json:"position" gorm:"not null"`
	QuestionID          string             `json:"question_id" gorm:"type:varchar(64);not null"`
	QuestionText        string             `json:"question_text" gorm:"type:text"`
	Transcript          *string            `json:"transcript" gorm:"type:text"`
	EmotionDistribution map[string]float64 `json:"emotion_distribution" gorm:"serializer:json"`
	ConfidenceIndex     float64            `json:"confidence_index"`
	NervousnessScore    float64            `json:"nervousness_score"`
	HesitationScore     float64            `json:"hesitation_score"`
	LLMEvaluation       *LLMEvaluation     `json:"llm_evaluation" gorm:"serializer:json"`
	AnswerFinalScore    float64            `json:"answer_final_score"`
}

func (ArchivedAnswer) TableName() string {
	return "archived_answers"
}

// NewArchivedSession flattens a terminal snapshot into archive rows.
func NewArchivedSession(s *InterviewSession) *ArchivedSession {
	row := &ArchivedSession{
		ID:             s.ID,
		CandidateID:    s.CandidateID,
		CandidateName:  s.CandidateName,
		CandidateEmail: s.CandidateEmail,
		Status:         s.Status,
		FinalScore:     s.FinalScore,
		AnswerCount:    len(s.Answers),
		ArchivedAt:     time.Now(),
	}
	if s.Category != nil {
		c := string(*s.Category)
		row.Category = &c
	}
	for i, a := range s.Answers {
		row.Answers = append(row.Answers, ArchivedAnswer{
			ID:                  uuid.New(),
			SessionID:           s.ID,
			Position:            i,
			QuestionID:          a.QuestionID,
			QuestionText:        a.QuestionText,
			Transcript:          a.Transcript,
			EmotionDistribution: a.EmotionDistribution,
			ConfidenceIndex:     a.ConfidenceIndex,
			NervousnessScore:    a.NervousnessScore,
			HesitationScore:     a.HesitationScore,
			LLMEvaluation:       a.LLMEvaluation,
			AnswerFinalScore:    a.AnswerFinalScore,
		})
	}
	return row
}

// ToSession rebuilds the snapshot an archive row was made from.
func (s *ArchivedSession) ToSession() *InterviewSession {
	session := &InterviewSession{
		ID:             s.ID,
		CandidateID:    s.CandidateID,
		CandidateName:  s.CandidateName,
		CandidateEmail: s.CandidateEmail,
		Status:         s.Status,
		FinalScore:     s.FinalScore,
		Answers:        make([]Answer, 0, len(s.Answers)),
	}
	if s.Category != nil {
		c := constant.Category(*s.Category)
		session.Category = &c
	}
	for _, a := range s.Answers {
		session.Answers = append(session.Answers, Answer{
			QuestionID:          a.QuestionID,
			QuestionText:        a.QuestionText,
			Processed:           true,
			Transcript:          a.Transcript,
			EmotionDistribution: a.EmotionDistribution,
			ConfidenceIndex:     a.ConfidenceIndex,
			NervousnessScore:    a.NervousnessScore,
			HesitationScore:     a.HesitationScore,
			LLMEvaluation:       a.LLMEvaluation,
			AnswerFinalScore:    a.AnswerFinalScore,
		})
	}
	return session
}
