// Package store persists accounts, player stats and match history in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"rts-server/internal/game"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// AccountRow represents an account record
type AccountRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents account stats
type StatsRow struct {
	AccountID int64   `json:"account_id"`
	Matches   int     `json:"matches"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	Playtime  float64 `json:"playtime"` // seconds
}

// MatchRow represents a finished match with its players
type MatchRow struct {
	ID        uuid.UUID        `json:"id"`
	Map       string           `json:"map"`
	Winner    string           `json:"winner"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Players   []MatchPlayerRow `json:"players"`
}

// MatchPlayerRow represents one participant of a match
type MatchPlayerRow struct {
	AccountID  int64  `json:"account_id,omitempty"`
	Name       string `json:"name"`
	Winner     bool   `json:"winner"`
	Eliminated bool   `json:"eliminated"`
}

// Open opens (or creates) the SQLite database
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL lets the HTTP handlers read while the recorder writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		account_id INTEGER PRIMARY KEY REFERENCES accounts(id),
		matches INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		playtime REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		map TEXT NOT NULL,
		winner TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id TEXT NOT NULL REFERENCES matches(id),
		slot INTEGER NOT NULL,
		account_id INTEGER REFERENCES accounts(id),
		name TEXT NOT NULL,
		winner INTEGER NOT NULL DEFAULT 0,
		eliminated INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, slot)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_players_account ON match_players(account_id);
	CREATE INDEX IF NOT EXISTS idx_matches_ended ON matches(ended_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateAccount creates an account and its stats row, returning the account ID
func (db *DB) CreateAccount(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO accounts (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = db.conn.Exec("INSERT INTO stats (account_id) VALUES (?)", id)
	return id, err
}

// GetAccountByUsername returns nil, nil when no such account exists
func (db *DB) GetAccountByUsername(username string) (*AccountRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM accounts WHERE username = ?",
		username,
	)
	a := &AccountRow{}
	err := row.Scan(&a.ID, &a.Username, &a.PassHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM accounts WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetStats returns nil, nil for unknown accounts
func (db *DB) GetStats(accountID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT account_id, matches, wins, losses, playtime FROM stats WHERE account_id = ?",
		accountID,
	)
	s := &StatsRow{}
	err := row.Scan(&s.AccountID, &s.Matches, &s.Wins, &s.Losses, &s.Playtime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// GetSetting returns "" for missing keys
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// RecordMatches stores finished matches and updates the stats of every
// participating account, all in one transaction.
func (db *DB) RecordMatches(results []game.MatchResult) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	matchStmt, err := tx.Prepare(`INSERT INTO matches (id, map, winner, started_at, ended_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare match: %w", err)
	}
	defer matchStmt.Close()
	playerStmt, err := tx.Prepare(`INSERT INTO match_players (match_id, slot, account_id, name, winner, eliminated) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare player: %w", err)
	}
	defer playerStmt.Close()
	statsStmt, err := tx.Prepare(`
		UPDATE stats SET
			matches = matches + 1,
			wins = wins + ?,
			losses = losses + ?,
			playtime = playtime + ?
		WHERE account_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare stats: %w", err)
	}
	defer statsStmt.Close()

	for _, r := range results {
		if _, err := matchStmt.Exec(r.ID.String(), r.Map, r.Winner, r.StartedAt.UTC(), r.EndedAt.UTC()); err != nil {
			return fmt.Errorf("insert match %s: %w", r.ID, err)
		}
		duration := r.EndedAt.Sub(r.StartedAt).Seconds()
		for slot, p := range r.Players {
			account := sql.NullInt64{Int64: p.AccountID, Valid: p.AccountID > 0}
			if _, err := playerStmt.Exec(r.ID.String(), slot, account, p.Name, p.Winner, p.Eliminated); err != nil {
				return fmt.Errorf("insert match player: %w", err)
			}
			if !account.Valid {
				continue
			}
			win, loss := 0, 1
			if p.Winner {
				win, loss = 1, 0
			}
			if _, err := statsStmt.Exec(win, loss, duration, p.AccountID); err != nil {
				return fmt.Errorf("update stats: %w", err)
			}
		}
	}
	return tx.Commit()
}

// RecentMatches returns the latest finished matches, newest first
func (db *DB) RecentMatches(limit int) ([]MatchRow, error) {
	rows, err := db.conn.Query(
		"SELECT id, map, winner, started_at, ended_at FROM matches ORDER BY ended_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchRow
	for rows.Next() {
		var m MatchRow
		var id string
		if err := rows.Scan(&id, &m.Map, &m.Winner, &m.StartedAt, &m.EndedAt); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("match id %q: %w", id, err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		players, err := db.matchPlayers(result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Players = players
	}
	return result, nil
}

func (db *DB) matchPlayers(id uuid.UUID) ([]MatchPlayerRow, error) {
	rows, err := db.conn.Query(
		"SELECT COALESCE(account_id, 0), name, winner, eliminated FROM match_players WHERE match_id = ? ORDER BY slot",
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchPlayerRow
	for rows.Next() {
		var p MatchPlayerRow
		if err := rows.Scan(&p.AccountID, &p.Name, &p.Winner, &p.Eliminated); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
