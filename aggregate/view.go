package aggregate

import (
	"interview-room/constant"
	"interview-room/entities"
)

type AnswerCard struct {
	QuestionID       string                  `json:"question_id"`
	QuestionText     string                  `json:"question_text"`
	Processed        bool                    `json:"processed"`
	Transcript       *string                 `json:"transcript"`
	DominantEmotion  string                  `json:"dominant_emotion,omitempty"`
	Emotions         []EmotionShare          `json:"emotions"`
	ConfidenceIndex  float64                 `json:"confidence_index"`
	NervousnessScore float64                 `json:"nervousness_score"`
	HesitationScore  float64                 `json:"hesitation_score"`
	PauseCount       int                     `json:"pause_count"`
	Evaluation       *entities.LLMEvaluation `json:"llm_evaluation"`
	Score            *float64                `json:"score"`
}

// SessionView is the presentation model of a session. Candidate and admin
// screens render the same view.
type SessionView struct {
	SessionID      string                 `json:"session_id"`
	CandidateID    string                 `json:"candidate_id,omitempty"`
	CandidateName  string                 `json:"candidate_name"`
	CandidateEmail string                 `json:"candidate_email"`
	Status         constant.SessionStatus `json:"status"`
	Pending        bool                   `json:"pending"`
	FinalScore     *float64               `json:"final_score"`
	Category       *constant.Category     `json:"category"`
	AnswerCount    int                    `json:"answer_count"`
	ProcessedCount int                    `json:"processed_count"`
	EmotionProfile []EmotionShare         `json:"emotion_profile"`
	MeanConfidence *float64               `json:"mean_confidence"`
	Answers        []AnswerCard           `json:"answers"`
	StartedAt      string                 `json:"started_at,omitempty"`
	CompletedAt    string                 `json:"completed_at,omitempty"`
}

func BuildSessionView(s *entities.InterviewSession) SessionView {
	view := SessionView{
		SessionID:      s.ID,
		CandidateID:    s.CandidateID,
		CandidateName:  s.CandidateName,
		CandidateEmail: s.CandidateEmail,
		Status:         s.Status,
		Pending:        s.Status.Pending(),
		AnswerCount:    len(s.Answers),
		ProcessedCount: s.ProcessedCount(),
		EmotionProfile: EmotionProfile(s.Answers),
		Answers:        make([]AnswerCard, 0, len(s.Answers)),
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
	}
	if s.Status == constant.SessionStatusCompleted {
		view.FinalScore = s.FinalScore
		view.Category = s.Category
	}

	var confidence float64
	processed := 0
	for _, a := range s.Answers {
		card := AnswerCard{
			QuestionID:   a.QuestionID,
			QuestionText: a.QuestionText,
			Processed:    a.Processed,
			Emotions:     []EmotionShare{},
		}
		if a.Processed {
			score := a.AnswerFinalScore
			card.Transcript = a.Transcript
			card.DominantEmotion = Dominant(a.EmotionDistribution)
			card.Emotions = EmotionProfile([]entities.Answer{a})
			card.ConfidenceIndex = a.ConfidenceIndex
			card.NervousnessScore = a.NervousnessScore
			card.HesitationScore = a.HesitationScore
			card.PauseCount = a.PauseCount
			card.Evaluation = a.LLMEvaluation
			card.Score = &score
			confidence += a.ConfidenceIndex
			processed++
		}
		view.Answers = append(view.Answers, card)
	}
	if processed > 0 {
		mean := confidence / float64(processed)
		view.MeanConfidence = &mean
	}
	return view
}
