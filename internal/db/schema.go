package db

// UpdateSchema creates the review-session tables.
func (s *Storage) UpdateSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	);
	-- Review sessions: one pass over a deck's due cards
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		deck_id TEXT NOT NULL,
		deck_name TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'question',
		current_index INTEGER NOT NULL DEFAULT 0,
		total_cards INTEGER NOT NULL,
		follow_up_count INTEGER NOT NULL DEFAULT 0,
		cards_saved INTEGER NOT NULL DEFAULT 0,
		cards_skipped INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	-- Snapshot of each card pulled into a session, in review order
	CREATE TABLE IF NOT EXISTS session_cards (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		card_id TEXT NOT NULL,
		deck_id TEXT NOT NULL,
		content TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		rephrased TEXT,
		rephrased_at TIMESTAMP,
		UNIQUE (session_id, position),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	-- One row per evaluated answer, including Socratic follow-up rounds
	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		session_card_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		question TEXT NOT NULL,
		user_answer TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL,
		score REAL NOT NULL,
		feedback TEXT NOT NULL,
		follow_up TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (session_card_id) REFERENCES session_cards(id)
	);
	-- Cards written back to the Mochi review deck
	CREATE TABLE IF NOT EXISTS saved_cards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_card_id TEXT NOT NULL,
		mochi_card_id TEXT NOT NULL,
		deck_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (session_card_id) REFERENCES session_cards(id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_session_cards_session_id ON session_cards(session_id);
	CREATE INDEX IF NOT EXISTS idx_exchanges_session_card_id ON exchanges(session_card_id);
	CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON exchanges(created_at);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	return nil
}
