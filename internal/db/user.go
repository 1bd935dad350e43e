package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

type User struct {
	ID        string     `db:"id" json:"id"`
	Name      *string    `db:"name" json:"name"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// GetPrimaryUser returns the single local user. The service is
// single-tenant; a user row is created on first connect.
func (s *Storage) GetPrimaryUser() (*User, error) {
	var user User
	query := `SELECT id, name, created_at, updated_at FROM users WHERE deleted_at IS NULL ORDER BY created_at LIMIT 1`
	err := s.db.QueryRow(query).Scan(
		&user.ID,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return &user, nil
}

func (s *Storage) SaveUser(name *string) (*User, error) {
	user := User{
		ID:   nanoid.Must(),
		Name: name,
	}

	query := `INSERT INTO users (id, name) VALUES (?, ?)`
	if _, err := s.db.Exec(query, user.ID, user.Name); err != nil {
		return nil, fmt.Errorf("error saving user: %w", err)
	}

	return s.GetPrimaryUser()
}
