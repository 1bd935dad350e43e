package db

import (
	"time"
)

// StudyStats summarizes a user's review activity.
type StudyStats struct {
	// Today
	CardsAnsweredToday int     `json:"cards_answered_today"`
	AvgScoreToday      float64 `json:"avg_score_today"`

	// Overall
	SessionsCompleted int `json:"sessions_completed"`
	TotalExchanges    int `json:"total_exchanges"`
	CardsSaved        int `json:"cards_saved"`
	StreakDays        int `json:"streak_days"`
}

// GetUserStudyStats retrieves study statistics for a user.
func (s *Storage) GetUserStudyStats(userID string) (StudyStats, error) {
	stats := StudyStats{}

	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todayEnd := todayStart.Add(24 * time.Hour)

	todayQuery := `
		SELECT COUNT(DISTINCT e.session_card_id), IFNULL(AVG(e.score), 0)
		FROM exchanges e
		JOIN sessions se ON se.id = e.session_id
		WHERE se.user_id = ?
		AND e.created_at >= ?
		AND e.created_at < ?
	`
	if err := s.db.QueryRow(todayQuery, userID, todayStart, todayEnd).Scan(&stats.CardsAnsweredToday, &stats.AvgScoreToday); err != nil {
		return stats, err
	}

	overallQuery := `
		SELECT
			(SELECT COUNT(*) FROM sessions WHERE user_id = ? AND state = ?),
			(SELECT COUNT(*) FROM exchanges e JOIN sessions se ON se.id = e.session_id WHERE se.user_id = ?),
			(SELECT COUNT(*) FROM saved_cards WHERE user_id = ?)
	`
	if err := s.db.QueryRow(overallQuery, userID, StateComplete, userID, userID).Scan(
		&stats.SessionsCompleted,
		&stats.TotalExchanges,
		&stats.CardsSaved,
	); err != nil {
		return stats, err
	}

	streak, err := s.getStreakDays(userID, todayStart)
	if err != nil {
		return stats, err
	}
	stats.StreakDays = streak

	return stats, nil
}

// getStreakDays counts consecutive days with at least one exchange, ending
// today (or yesterday if today has none yet).
func (s *Storage) getStreakDays(userID string, todayStart time.Time) (int, error) {
	query := `
		SELECT DISTINCT date(e.created_at)
		FROM exchanges e
		JOIN sessions se ON se.id = e.session_id
		WHERE se.user_id = ?
		ORDER BY date(e.created_at) DESC
	`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return 0, err
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(days) == 0 {
		return 0, nil
	}

	expected := todayStart
	if days[0] != expected.Format("2006-01-02") {
		// No activity today: a streak may still be alive through yesterday.
		expected = expected.AddDate(0, 0, -1)
		if days[0] != expected.Format("2006-01-02") {
			return 0, nil
		}
	}

	streak := 0
	for _, day := range days {
		if day != expected.Format("2006-01-02") {
			break
		}
		streak++
		expected = expected.AddDate(0, 0, -1)
	}

	return streak, nil
}
