package ai

import (
	"context"
)

// Evaluation is the structured verdict the dialogue model returns for a
// student answer. FollowUp is nil once understanding is complete.
type Evaluation struct {
	IsCorrect bool    `json:"is_correct"`
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	FollowUp  *string `json:"follow_up"`
}

// Exchange is one prior question/answer/evaluation turn, replayed into the
// model so follow-up evaluations keep their context.
type Exchange struct {
	Question   string     `json:"question"`
	UserAnswer string     `json:"user_answer"`
	Evaluation Evaluation `json:"evaluation"`
}

// Dialogue is the tutoring side of the AI integration: rephrasing card
// questions and evaluating free-text answers Socratically.
type Dialogue interface {
	RephraseQuestion(ctx context.Context, question, answer, topic string) (string, error)
	EvaluateAnswer(ctx context.Context, question, expectedAnswer, userAnswer string, history []Exchange) (*Evaluation, error)
}

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer converts text into spoken audio, returning the encoded bytes
// and their MIME type.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}
