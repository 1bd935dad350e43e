package db

import (
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Exchange is one graded answer within a card's Socratic dialogue. Round 0
// is the answer to the rephrased question; later rounds answer follow-ups.
type Exchange struct {
	ID            string    `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	SessionCardID string    `db:"session_card_id" json:"session_card_id"`
	Round         int       `db:"round" json:"round"`
	Question      string    `db:"question" json:"question"`
	UserAnswer    string    `db:"user_answer" json:"user_answer"`
	IsCorrect     bool      `db:"is_correct" json:"is_correct"`
	Score         float64   `db:"score" json:"score"`
	Feedback      string    `db:"feedback" json:"feedback"`
	FollowUp      *string   `db:"follow_up" json:"follow_up,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

func (s *Storage) AddExchange(exchange *Exchange) (*Exchange, error) {
	exchange.ID = nanoid.Must()
	exchange.CreatedAt = time.Now()

	query := `
		INSERT INTO exchanges (id, session_id, session_card_id, round, question, user_answer, is_correct, score, feedback, follow_up, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		exchange.ID,
		exchange.SessionID,
		exchange.SessionCardID,
		exchange.Round,
		exchange.Question,
		exchange.UserAnswer,
		exchange.IsCorrect,
		exchange.Score,
		exchange.Feedback,
		exchange.FollowUp,
		exchange.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error adding exchange: %w", err)
	}

	return exchange, nil
}

// GetSessionScore returns how many answers were evaluated in a session and
// their average score.
func (s *Storage) GetSessionScore(sessionID string) (int, float64, error) {
	var count int
	var avg float64
	err := s.db.QueryRow(`
		SELECT COUNT(*), IFNULL(AVG(score), 0)
		FROM exchanges
		WHERE session_id = ?
	`, sessionID).Scan(&count, &avg)
	if err != nil {
		return 0, 0, fmt.Errorf("error getting session score: %w", err)
	}

	return count, avg, nil
}

// GetExchanges returns a card's dialogue in round order.
func (s *Storage) GetExchanges(sessionCardID string) ([]Exchange, error) {
	query := `
		SELECT id, session_id, session_card_id, round, question, user_answer, is_correct, score, feedback, follow_up, created_at
		FROM exchanges
		WHERE session_card_id = ?
		ORDER BY round ASC
	`

	rows, err := s.db.Query(query, sessionCardID)
	if err != nil {
		return nil, fmt.Errorf("error getting exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var exchange Exchange
		if err := rows.Scan(
			&exchange.ID,
			&exchange.SessionID,
			&exchange.SessionCardID,
			&exchange.Round,
			&exchange.Question,
			&exchange.UserAnswer,
			&exchange.IsCorrect,
			&exchange.Score,
			&exchange.Feedback,
			&exchange.FollowUp,
			&exchange.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning exchange: %w", err)
		}
		exchanges = append(exchanges, exchange)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchange rows: %w", err)
	}

	return exchanges, nil
}
