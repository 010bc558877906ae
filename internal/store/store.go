// Package store persists rider choice histories in SQLite so adaptation
// carries over between rides.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/personality"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load for an unknown session.
var ErrNotFound = errors.New("store: session not found")

// Store wraps a SQLite connection.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// SessionInfo summarizes one saved session.
type SessionInfo struct {
	ID           uuid.UUID `json:"id"`
	UpdatedAt    time.Time `json:"updated_at"`
	TotalChoices int       `json:"total_choices"`
	Preferred    string    `json:"preferred"`
}

type historyRow struct {
	ID             string  `db:"id"`
	UpdatedAt      int64   `db:"updated_at"`
	TotalChoices   int     `db:"total_choices"`
	LeftChoices    int     `db:"left_choices"`
	RightChoices   int     `db:"right_choices"`
	Preferred      string  `db:"preferred"`
	AdaptiveWeight float64 `db:"adaptive_weight"`
	RecentJSON     string  `db:"recent_json"`
	PrefsJSON      string  `db:"prefs_json"`
}

type recent struct {
	Choices       []bool                    `json:"choices"`
	Biomes        []biome.Biome             `json:"biomes"`
	Personalities []personality.Personality `json:"personalities"`
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS histories (
		id TEXT PRIMARY KEY,
		updated_at INTEGER NOT NULL,
		total_choices INTEGER NOT NULL,
		left_choices INTEGER NOT NULL,
		right_choices INTEGER NOT NULL,
		preferred TEXT NOT NULL,
		adaptive_weight REAL NOT NULL,
		recent_json TEXT NOT NULL,
		prefs_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS histories_updated ON histories(updated_at);
	`)
	return err
}

// Save upserts the history for a session.
func (s *Store) Save(ctx context.Context, id uuid.UUID, h *personality.History) error {
	if h == nil {
		h = personality.NewHistory()
	}
	rec := recent{
		Choices:       h.RecentChoices,
		Biomes:        h.RecentBiomes,
		Personalities: h.RecentPersonalities,
	}
	recentJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode recent: %w", err)
	}
	prefsJSON, err := json.Marshal(h.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	row := historyRow{
		ID:             id.String(),
		UpdatedAt:      s.now().UnixMilli(),
		TotalChoices:   h.TotalChoices,
		LeftChoices:    h.LeftChoices,
		RightChoices:   h.RightChoices,
		Preferred:      h.Preferred.String(),
		AdaptiveWeight: h.AdaptiveWeight,
		RecentJSON:     string(recentJSON),
		PrefsJSON:      string(prefsJSON),
	}
	_, err = s.db.NamedExecContext(ctx, `
	INSERT INTO histories (id, updated_at, total_choices, left_choices, right_choices, preferred, adaptive_weight, recent_json, prefs_json)
	VALUES (:id, :updated_at, :total_choices, :left_choices, :right_choices, :preferred, :adaptive_weight, :recent_json, :prefs_json)
	ON CONFLICT(id) DO UPDATE SET
		updated_at = excluded.updated_at,
		total_choices = excluded.total_choices,
		left_choices = excluded.left_choices,
		right_choices = excluded.right_choices,
		preferred = excluded.preferred,
		adaptive_weight = excluded.adaptive_weight,
		recent_json = excluded.recent_json,
		prefs_json = excluded.prefs_json`, row)
	if err != nil {
		return fmt.Errorf("save history %s: %w", id, err)
	}
	return nil
}

// Load returns the saved history for a session.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*personality.History, error) {
	var row historyRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM histories WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	return row.history()
}

// Latest returns the most recently saved session.
func (s *Store) Latest(ctx context.Context) (uuid.UUID, *personality.History, error) {
	var row historyRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM histories ORDER BY updated_at DESC, id LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("load latest: %w", err)
	}
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("bad session id %q: %w", row.ID, err)
	}
	h, err := row.history()
	return id, h, err
}

// Sessions lists saved sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var rows []struct {
		ID           string `db:"id"`
		UpdatedAt    int64  `db:"updated_at"`
		TotalChoices int    `db:"total_choices"`
		Preferred    string `db:"preferred"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, updated_at, total_choices, preferred FROM histories ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]SessionInfo, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", r.ID, err)
		}
		out = append(out, SessionInfo{
			ID:           id,
			UpdatedAt:    time.UnixMilli(r.UpdatedAt),
			TotalChoices: r.TotalChoices,
			Preferred:    r.Preferred,
		})
	}
	return out, nil
}

func (r historyRow) history() (*personality.History, error) {
	h := personality.NewHistory()
	h.TotalChoices = r.TotalChoices
	h.LeftChoices = r.LeftChoices
	h.RightChoices = r.RightChoices
	h.AdaptiveWeight = r.AdaptiveWeight
	if p, err := personality.Parse(r.Preferred); err == nil {
		h.Preferred = p
	}

	var rec recent
	if err := json.Unmarshal([]byte(r.RecentJSON), &rec); err != nil {
		return nil, fmt.Errorf("decode recent: %w", err)
	}
	h.RecentChoices = rec.Choices
	h.RecentBiomes = rec.Biomes
	h.RecentPersonalities = rec.Personalities

	if err := json.Unmarshal([]byte(r.PrefsJSON), &h.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if h.Preferences == nil {
		h.Preferences = make(map[personality.Personality]float64)
	}
	return h, nil
}
