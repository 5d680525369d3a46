package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
	"github.com/ychleo102615/hanahuda-sub006/pkg/server/internal/db"
)

// Database defines the interface for database operations
type Database interface {
	// Game persistence: only the subset that must survive restart.
	SaveGame(game *db.GameRecord, players []*db.PlayerRecord) error
	LoadGame(gameID string) (*db.GameRecord, error)

	// Durable event log for replay and audit.
	AppendGameLog(gameID string, seq uint64, eventType, eventID string, at time.Time, payload []byte) error
	LoadGameLog(gameID string) ([]*db.LogRecord, error)
	AppendCommandLog(gameID, playerID, command string, payload []byte) error

	// Close closes the database connection
	Close() error
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (Database, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	return db.NewDB(dbPath)
}

// gameRecords maps a live aggregate onto its persisted subset.
func gameRecords(g *hanafuda.Game) (*db.GameRecord, []*db.PlayerRecord) {
	rec := &db.GameRecord{
		ID:           g.ID,
		Status:       string(g.Status),
		TotalRounds:  g.Ruleset.TotalRounds,
		RoundsPlayed: g.RoundsPlayed,
		WinnerID:     g.WinnerID,
		FinishReason: string(g.FinishReason),
	}

	players := make([]*db.PlayerRecord, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, &db.PlayerRecord{
			GameID:    g.ID,
			PlayerID:  p.ID,
			Name:      p.Name,
			IsAI:      p.IsAI,
			Score:     g.CumulativeScores[p.ID],
			RoundsWon: g.RoundsWon[p.ID],
		})
	}
	return rec, players
}
