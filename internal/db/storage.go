package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

type Storage struct {
	db *sql.DB
}

func ConnectDB(dbPath string) (*Storage, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// SQLite handles concurrent writers poorly; serialize through one conn.
	conn.SetMaxOpenConns(1)

	storage := &Storage{db: conn}
	if err := storage.UpdateSchema(); err != nil {
		return nil, fmt.Errorf("error updating schema: %w", err)
	}

	return storage, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
