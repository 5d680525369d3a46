package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary database tables
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			total_rounds INTEGER NOT NULL,
			rounds_played INTEGER NOT NULL DEFAULT 0,
			winner_id TEXT,
			finish_reason TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS game_players (
			game_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			player_name TEXT NOT NULL,
			is_ai INTEGER NOT NULL DEFAULT 0,
			score INTEGER NOT NULL DEFAULT 0,
			rounds_won INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (game_id, player_id),
			FOREIGN KEY (game_id) REFERENCES games(id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS game_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sequence_number INTEGER NOT NULL,
			game_id TEXT NOT NULL,
			player_id TEXT,
			event_type TEXT NOT NULL,
			event_id TEXT,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS command_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id TEXT NOT NULL,
			player_id TEXT,
			command TEXT NOT NULL,
			payload TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_game_log_game ON game_log(game_id, sequence_number)
	`)
	return err
}

// GameRecord is the persisted subset of a game.
type GameRecord struct {
	ID           string
	Status       string
	TotalRounds  int
	RoundsPlayed int
	WinnerID     string
	FinishReason string
}

// PlayerRecord is a seat's persisted tally.
type PlayerRecord struct {
	GameID    string
	PlayerID  string
	Name      string
	IsAI      bool
	Score     int
	RoundsWon int
}

// SaveGame inserts or updates a game's persisted fields together with
// its per-player tallies.
func (db *DB) SaveGame(game *GameRecord, players []*PlayerRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO games (id, status, total_rounds, rounds_played, winner_id, finish_reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			rounds_played = excluded.rounds_played,
			winner_id = excluded.winner_id,
			finish_reason = excluded.finish_reason,
			updated_at = CURRENT_TIMESTAMP
	`, game.ID, game.Status, game.TotalRounds, game.RoundsPlayed, game.WinnerID, game.FinishReason)
	if err != nil {
		return err
	}

	for _, p := range players {
		_, err = tx.Exec(`
			INSERT INTO game_players (game_id, player_id, player_name, is_ai, score, rounds_won)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(game_id, player_id) DO UPDATE SET
				score = excluded.score,
				rounds_won = excluded.rounds_won
		`, p.GameID, p.PlayerID, p.Name, p.IsAI, p.Score, p.RoundsWon)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadGame returns a persisted game record.
func (db *DB) LoadGame(gameID string) (*GameRecord, error) {
	rec := &GameRecord{ID: gameID}
	var winner, reason sql.NullString
	err := db.QueryRow(`
		SELECT status, total_rounds, rounds_played, winner_id, finish_reason
		FROM games WHERE id = ?
	`, gameID).Scan(&rec.Status, &rec.TotalRounds, &rec.RoundsPlayed, &winner, &reason)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("game not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %v", err)
	}
	rec.WinnerID = winner.String
	rec.FinishReason = reason.String
	return rec, nil
}

// AppendGameLog appends one replay-worthy event record.
func (db *DB) AppendGameLog(gameID string, seq uint64, eventType, eventID string, at time.Time, payload []byte) error {
	_, err := db.Exec(`
		INSERT INTO game_log (sequence_number, game_id, event_type, event_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, seq, gameID, eventType, eventID, string(payload), at)
	return err
}

// AppendCommandLog records a received command for audit.
func (db *DB) AppendCommandLog(gameID, playerID, command string, payload []byte) error {
	_, err := db.Exec(`
		INSERT INTO command_log (game_id, player_id, command, payload)
		VALUES (?, ?, ?, ?)
	`, gameID, playerID, command, string(payload))
	return err
}

// LogRecord is one game-log row in replay order.
type LogRecord struct {
	SequenceNumber uint64
	GameID         string
	EventType      string
	EventID        string
	Payload        []byte
	CreatedAt      time.Time
}

// LoadGameLog returns a game's event log ordered by sequence number.
func (db *DB) LoadGameLog(gameID string) ([]*LogRecord, error) {
	rows, err := db.Query(`
		SELECT sequence_number, event_type, event_id, payload, created_at
		FROM game_log WHERE game_id = ? ORDER BY sequence_number
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game log: %v", err)
	}
	defer rows.Close()

	var records []*LogRecord
	for rows.Next() {
		rec := &LogRecord{GameID: gameID}
		var payload string
		if err := rows.Scan(&rec.SequenceNumber, &rec.EventType, &rec.EventID, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
