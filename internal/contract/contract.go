package contract

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/maarten-devries/feynman-flashcards/internal/ai"
	"github.com/maarten-devries/feynman-flashcards/internal/db"
)

type JWTClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ServiceStatus reports the result of validating one upstream API key.
type ServiceStatus struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

type ConnectRequest struct {
	Name *string `json:"name"`
}

type ConnectResponse struct {
	Token     string         `json:"token"`
	User      db.User        `json:"user"`
	Mochi     ServiceStatus  `json:"mochi"`
	Anthropic ServiceStatus  `json:"anthropic"`
	OpenAI    *ServiceStatus `json:"openai,omitempty"`
}

type DeckResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ParentID    string `json:"parent_id,omitempty"`
	DisplayName string `json:"display_name"`
}

type StartSessionRequest struct {
	DeckID string `json:"deck_id" validate:"required"`
}

// StartSessionResponse distinguishes "session started" from "nothing due".
type StartSessionResponse struct {
	Session *db.Session `json:"session,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SessionSummary is attached once a session completes.
type SessionSummary struct {
	AnswersEvaluated int     `json:"answers_evaluated"`
	AvgScore         float64 `json:"avg_score"`
}

type SessionDetailResponse struct {
	Session *db.Session     `json:"session"`
	Summary *SessionSummary `json:"summary,omitempty"`
}

// CardView is the current card as the client sees it: the rephrased
// question up front, the original content held back for the reveal.
type CardView struct {
	SessionID     string          `json:"session_id"`
	CardID        string          `json:"card_id"`
	Position      int             `json:"position"`
	TotalCards    int             `json:"total_cards"`
	State         db.SessionState `json:"state"`
	Question      string          `json:"question"`
	FollowUp      *string         `json:"follow_up,omitempty"`
	Content       string          `json:"content"`
	FollowUpCount int             `json:"follow_up_count"`
}

type AnswerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

type AnswerResponse struct {
	Evaluation     ai.Evaluation `json:"evaluation"`
	ExpectedAnswer string        `json:"expected_answer"`
	CanFollowUp    bool          `json:"can_follow_up"`
	History        []db.Exchange `json:"history"`
	Session        *db.Session   `json:"session"`
}

// SaveCardResponse reports the Mochi card created from the rephrased
// question and the advanced session.
type SaveCardResponse struct {
	MochiCardID string      `json:"mochi_card_id"`
	DeckID      string      `json:"deck_id"`
	Session     *db.Session `json:"session"`
}

type UpdateCardRequest struct {
	Content string `json:"content" validate:"required"`
}

type TranscriptionResponse struct {
	Text string `json:"text"`
}

type SynthesizeRequest struct {
	Text string `json:"text" validate:"required"`
}

// SynthesizeURLResponse is returned instead of inline audio when a storage
// provider is configured.
type SynthesizeURLResponse struct {
	AudioURL string `json:"audio_url"`
}
