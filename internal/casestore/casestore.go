// Package casestore keeps case definitions in a SQLite database keyed by
// their unique name. Cases are collaborators of the conversation core:
// sessions copy the prompt at open time, so edits here never touch
// previously saved sessions.
package casestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"CaseChat/internal/session"
)

// ErrCaseExists reports a create or rename that collides with an
// existing case name.
var ErrCaseExists = errors.New("a case with this name already exists")

// Store is a SQLite-backed case collection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the case database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open case database: %w", err)
	}

	createCasesTable := `
	CREATE TABLE IF NOT EXISTS cases (
		name TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);`

	if _, err := db.Exec(createCasesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cases table: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns all cases, newest first.
func (s *Store) List() ([]session.Case, error) {
	rows, err := s.db.Query("SELECT name, prompt, timestamp FROM cases ORDER BY timestamp DESC, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	cases := []session.Case{}
	for rows.Next() {
		var c session.Case
		if err := rows.Scan(&c.Name, &c.Prompt, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// Get returns the case with the given name, if present.
func (s *Store) Get(name string) (session.Case, bool, error) {
	var c session.Case
	err := s.db.QueryRow("SELECT name, prompt, timestamp FROM cases WHERE name = ?", name).
		Scan(&c.Name, &c.Prompt, &c.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Case{}, false, nil
	}
	if err != nil {
		return session.Case{}, false, fmt.Errorf("failed to load case: %w", err)
	}
	return c, true, nil
}

// Create inserts a new case. The name must not already exist.
func (s *Store) Create(c session.Case) (session.Case, error) {
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now()
	}

	_, exists, err := s.Get(c.Name)
	if err != nil {
		return session.Case{}, err
	}
	if exists {
		return session.Case{}, ErrCaseExists
	}

	if _, err := s.db.Exec(
		"INSERT INTO cases (name, prompt, timestamp) VALUES (?, ?, ?)",
		c.Name, c.Prompt, c.Timestamp,
	); err != nil {
		return session.Case{}, fmt.Errorf("failed to save case: %w", err)
	}
	return c, nil
}

// Update replaces the case stored under name, allowing a rename as long
// as the new name is free. The original timestamp survives unless the
// update carries one. The bool reports whether the case was found.
func (s *Store) Update(name string, c session.Case) (session.Case, bool, error) {
	existing, found, err := s.Get(name)
	if err != nil {
		return session.Case{}, false, err
	}
	if !found {
		return session.Case{}, false, nil
	}

	if c.Name != name {
		if _, taken, err := s.Get(c.Name); err != nil {
			return session.Case{}, false, err
		} else if taken {
			return session.Case{}, false, ErrCaseExists
		}
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = existing.Timestamp
	}

	if _, err := s.db.Exec(
		"UPDATE cases SET name = ?, prompt = ?, timestamp = ? WHERE name = ?",
		c.Name, c.Prompt, c.Timestamp, name,
	); err != nil {
		return session.Case{}, false, fmt.Errorf("failed to update case: %w", err)
	}
	return c, true, nil
}

// Delete removes a case by name. Absence is reported, not an error.
func (s *Store) Delete(name string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM cases WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to delete case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete case: %w", err)
	}
	return n > 0, nil
}
