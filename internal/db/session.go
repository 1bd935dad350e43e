package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

type SessionState string

const (
	// StateQuestion: the current card's rephrased question is (being) shown.
	StateQuestion SessionState = "question"
	// StateEvaluating: an answer was graded; the client decides what next.
	StateEvaluating SessionState = "evaluating"
	// StateFollowUp: the tutor asked a follow-up and awaits another answer.
	StateFollowUp SessionState = "follow_up"
	// StateComplete: every card has been reviewed or skipped.
	StateComplete SessionState = "complete"
)

// MaxFollowUps caps how many Socratic follow-up rounds one card can get.
const MaxFollowUps = 3

type Session struct {
	ID            string       `db:"id" json:"id"`
	UserID        string       `db:"user_id" json:"user_id"`
	DeckID        string       `db:"deck_id" json:"deck_id"`
	DeckName      string       `db:"deck_name" json:"deck_name"`
	State         SessionState `db:"state" json:"state"`
	CurrentIndex  int          `db:"current_index" json:"current_index"`
	TotalCards    int          `db:"total_cards" json:"total_cards"`
	FollowUpCount int          `db:"follow_up_count" json:"follow_up_count"`
	CardsSaved    int          `db:"cards_saved" json:"cards_saved"`
	CardsSkipped  int          `db:"cards_skipped" json:"cards_skipped"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
	CompletedAt   *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}

// SessionCard is the snapshot of one Mochi card inside a session. Content
// is copied at session start so a review is stable even if the card changes
// upstream. Rephrased is filled lazily, either on demand or by the prefetch
// job.
type SessionCard struct {
	ID          string     `db:"id" json:"id"`
	SessionID   string     `db:"session_id" json:"session_id"`
	Position    int        `db:"position" json:"position"`
	CardID      string     `db:"card_id" json:"card_id"`
	DeckID      string     `db:"deck_id" json:"deck_id"`
	Content     string     `db:"content" json:"content"`
	Question    string     `db:"question" json:"question"`
	Answer      string     `db:"answer" json:"answer"`
	Rephrased   *string    `db:"rephrased" json:"rephrased,omitempty"`
	RephrasedAt *time.Time `db:"rephrased_at" json:"rephrased_at,omitempty"`
}

// NewSessionCard describes one card to snapshot when creating a session.
type NewSessionCard struct {
	CardID   string
	DeckID   string
	Content  string
	Question string
	Answer   string
}

func (s *Storage) CreateSession(userID, deckID, deckName string, cards []NewSessionCard) (*Session, error) {
	sessionID := nanoid.Must()
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, user_id, deck_id, deck_name, state, total_cards, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, userID, deckID, deckName, StateQuestion, len(cards), now, now)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO session_cards (id, session_id, position, card_id, deck_id, content, question, answer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, card := range cards {
		_, err = stmt.Exec(nanoid.Must(), sessionID, i, card.CardID, card.DeckID, card.Content, card.Question, card.Answer)
		if err != nil {
			return nil, fmt.Errorf("error inserting session card %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	return s.GetSession(sessionID)
}

func (s *Storage) GetSession(sessionID string) (*Session, error) {
	query := `
		SELECT id, user_id, deck_id, deck_name, state, current_index, total_cards,
		       follow_up_count, cards_saved, cards_skipped, created_at, updated_at, completed_at
		FROM sessions
		WHERE id = ?
	`

	var session Session
	err := s.db.QueryRow(query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.DeckID,
		&session.DeckName,
		&session.State,
		&session.CurrentIndex,
		&session.TotalCards,
		&session.FollowUpCount,
		&session.CardsSaved,
		&session.CardsSkipped,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting session: %w", err)
	}

	return &session, nil
}

func (s *Storage) GetSessionCard(sessionID string, position int) (*SessionCard, error) {
	query := `
		SELECT id, session_id, position, card_id, deck_id, content, question, answer, rephrased, rephrased_at
		FROM session_cards
		WHERE session_id = ? AND position = ?
	`

	var card SessionCard
	err := s.db.QueryRow(query, sessionID, position).Scan(
		&card.ID,
		&card.SessionID,
		&card.Position,
		&card.CardID,
		&card.DeckID,
		&card.Content,
		&card.Question,
		&card.Answer,
		&card.Rephrased,
		&card.RephrasedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting session card: %w", err)
	}

	return &card, nil
}

// SetRephrased stores a generated rephrasing. It writes only when the card
// has none yet, so a concurrent prefetch and an on-demand generation cannot
// clobber each other.
func (s *Storage) SetRephrased(sessionCardID, rephrased string) error {
	now := time.Now()
	result, err := s.db.Exec(`
		UPDATE session_cards
		SET rephrased = ?, rephrased_at = ?
		WHERE id = ? AND rephrased IS NULL
	`, rephrased, now, sessionCardID)
	if err != nil {
		return fmt.Errorf("error setting rephrased question: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		// Already rephrased; not an error.
		return nil
	}

	return nil
}

func (s *Storage) UpdateSessionState(sessionID string, state SessionState, followUpCount int) error {
	_, err := s.db.Exec(`
		UPDATE sessions
		SET state = ?, follow_up_count = ?, updated_at = ?
		WHERE id = ?
	`, state, followUpCount, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("error updating session state: %w", err)
	}

	return nil
}

// AdvanceSession moves a session to its next card, resetting the per-card
// follow-up counter. saved and skipped record how the current card ended.
// When the last card is passed the session flips to complete.
func (s *Storage) AdvanceSession(sessionID string, saved, skipped bool) (*Session, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	if session.State == StateComplete {
		return session, nil
	}

	session.CurrentIndex++
	session.FollowUpCount = 0
	session.State = StateQuestion
	if saved {
		session.CardsSaved++
	}
	if skipped {
		session.CardsSkipped++
	}

	now := time.Now()
	var completedAt *time.Time
	if session.CurrentIndex >= session.TotalCards {
		session.State = StateComplete
		completedAt = &now
	}

	_, err = s.db.Exec(`
		UPDATE sessions
		SET state = ?, current_index = ?, follow_up_count = 0,
		    cards_saved = ?, cards_skipped = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, session.State, session.CurrentIndex, session.CardsSaved, session.CardsSkipped, now, completedAt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error advancing session: %w", err)
	}

	return s.GetSession(sessionID)
}

// GetPendingRephrases returns upcoming session cards that still need a
// rephrased question, across all active sessions. The prefetch job feeds
// on this.
func (s *Storage) GetPendingRephrases(limit int) ([]SessionCard, error) {
	query := `
		SELECT sc.id, sc.session_id, sc.position, sc.card_id, sc.deck_id,
		       sc.content, sc.question, sc.answer, sc.rephrased, sc.rephrased_at
		FROM session_cards sc
		JOIN sessions se ON sc.session_id = se.id
		WHERE se.state != ?
		AND sc.rephrased IS NULL
		AND sc.position >= se.current_index
		ORDER BY se.updated_at DESC, sc.position ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, StateComplete, limit)
	if err != nil {
		return nil, fmt.Errorf("error getting pending rephrases: %w", err)
	}
	defer rows.Close()

	var cards []SessionCard
	for rows.Next() {
		var card SessionCard
		if err := rows.Scan(
			&card.ID,
			&card.SessionID,
			&card.Position,
			&card.CardID,
			&card.DeckID,
			&card.Content,
			&card.Question,
			&card.Answer,
			&card.Rephrased,
			&card.RephrasedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning session card: %w", err)
		}
		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session card rows: %w", err)
	}

	return cards, nil
}

// RecordSavedCard notes that a rephrased card was written back to Mochi.
func (s *Storage) RecordSavedCard(userID, sessionCardID, mochiCardID, deckID string) error {
	_, err := s.db.Exec(`
		INSERT INTO saved_cards (id, user_id, session_card_id, mochi_card_id, deck_id)
		VALUES (?, ?, ?, ?, ?)
	`, nanoid.Must(), userID, sessionCardID, mochiCardID, deckID)
	if err != nil {
		return fmt.Errorf("error recording saved card: %w", err)
	}

	return nil
}
