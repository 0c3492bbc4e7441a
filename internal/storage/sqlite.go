package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrEmptySource = errors.New("playback state has no source url")

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS playback_states (
		source_url TEXT PRIMARY KEY,
		source_type TEXT NOT NULL DEFAULT '',
		position REAL NOT NULL,
		duration REAL NOT NULL,
		progress REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_playback_updated ON playback_states(updated_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SavePlaybackState saves or updates the position for a source. Progress is
// derived from position and duration when the caller leaves it zero.
func (s *SQLiteStorage) SavePlaybackState(state *PlaybackState) error {
	if state.SourceURL == "" {
		return ErrEmptySource
	}
	if state.Progress == 0 && state.Duration > 0 {
		state.Progress = state.Position / state.Duration
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO playback_states (source_url, source_type, position, duration, progress, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_url) DO UPDATE SET
			source_type = excluded.source_type,
			position = excluded.position,
			duration = excluded.duration,
			progress = excluded.progress,
			updated_at = excluded.updated_at
	`, state.SourceURL, state.SourceType, state.Position, state.Duration, state.Progress, state.UpdatedAt)
	return err
}

// GetPlaybackState returns the state for a source, or nil when none is saved.
func (s *SQLiteStorage) GetPlaybackState(sourceURL string) (*PlaybackState, error) {
	row := s.db.QueryRow(`
		SELECT source_url, source_type, position, duration, progress, updated_at
		FROM playback_states WHERE source_url = ?
	`, sourceURL)

	var state PlaybackState
	err := row.Scan(&state.SourceURL, &state.SourceType, &state.Position, &state.Duration, &state.Progress, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &state, nil
}

// GetContinueWatching returns sources with playback progress (not finished),
// most recently updated first.
// Progress between 2% and 95% is considered "in progress"
func (s *SQLiteStorage) GetContinueWatching(limit int) ([]PlaybackState, error) {
	rows, err := s.db.Query(`
		SELECT source_url, source_type, position, duration, progress, updated_at
		FROM playback_states
		WHERE progress > ? AND progress < ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, MinResumeProgress, MaxResumeProgress, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []PlaybackState
	for rows.Next() {
		var state PlaybackState
		if err := rows.Scan(
			&state.SourceURL, &state.SourceType, &state.Position,
			&state.Duration, &state.Progress, &state.UpdatedAt,
		); err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	return states, rows.Err()
}

// DeletePlaybackState forgets the position for a source
func (s *SQLiteStorage) DeletePlaybackState(sourceURL string) error {
	_, err := s.db.Exec("DELETE FROM playback_states WHERE source_url = ?", sourceURL)
	return err
}
