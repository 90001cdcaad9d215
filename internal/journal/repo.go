package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/aislemap/internal/apperr"
	"github.com/starford/aislemap/internal/mapview"
)

// Entry is one row of the removals table.
type Entry struct {
	Token      string     `json:"token"`
	RecordID   string     `json:"record_id"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Verify *DB satisfies mapview.Recorder at compile time.
var _ mapview.Recorder = (*DB)(nil)

// Begin records a removal entering the pending state.
func (db *DB) Begin(token, recordID string, at time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO removals (token, record_id, state, started_at)
		VALUES (?, ?, ?, ?)
	`, token, recordID, mapview.StatePending.String(), at.UTC())
	if err != nil {
		return fmt.Errorf("journal: begin %s: %w", token, err)
	}
	return nil
}

// Resolve records the final state of a removal.
func (db *DB) Resolve(token string, state mapview.State, cause error, at time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := db.conn.Exec(`
		UPDATE removals SET state = ?, error = ?, resolved_at = ?
		WHERE token = ?
	`, state.String(), msg, at.UTC(), token)
	if err != nil {
		return fmt.Errorf("journal: resolve %s: %w", token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("journal: resolve %s: %w", token, apperr.ErrNotFound)
	}
	return nil
}

// Get returns one entry by token.
func (db *DB) Get(token string) (*Entry, error) {
	row := db.conn.QueryRow(`
		SELECT token, record_id, state, error, started_at, resolved_at
		FROM removals WHERE token = ?
	`, token)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("journal: get %s: %w", token, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get %s: %w", token, err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means 50.
func (db *DB) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT token, record_id, state, error, started_at, resolved_at
		FROM removals ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var resolved sql.NullTime
	if err := s.Scan(&e.Token, &e.RecordID, &e.State, &e.Error, &e.StartedAt, &resolved); err != nil {
		return nil, err
	}
	if resolved.Valid {
		t := resolved.Time
		e.ResolvedAt = &t
	}
	return &e, nil
}
