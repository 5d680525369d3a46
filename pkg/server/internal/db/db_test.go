package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndLoadGame(t *testing.T) {
	db := openTestDB(t)

	rec := &GameRecord{ID: "g1", Status: "IN_PROGRESS", TotalRounds: 12}
	players := []*PlayerRecord{
		{GameID: "g1", PlayerID: "p1", Name: "Alice"},
		{GameID: "g1", PlayerID: "p2", Name: "Koi", IsAI: true},
	}
	require.NoError(t, db.SaveGame(rec, players))

	loaded, err := db.LoadGame("g1")
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", loaded.Status)
	assert.Equal(t, 12, loaded.TotalRounds)
	assert.Empty(t, loaded.WinnerID)
}

func TestSaveGameUpserts(t *testing.T) {
	db := openTestDB(t)

	rec := &GameRecord{ID: "g1", Status: "IN_PROGRESS", TotalRounds: 2}
	players := []*PlayerRecord{
		{GameID: "g1", PlayerID: "p1", Name: "Alice"},
		{GameID: "g1", PlayerID: "p2", Name: "Bob"},
	}
	require.NoError(t, db.SaveGame(rec, players))

	rec.Status = "FINISHED"
	rec.RoundsPlayed = 2
	rec.WinnerID = "p1"
	rec.FinishReason = "COMPLETED"
	players[0].Score = 13
	players[0].RoundsWon = 2
	require.NoError(t, db.SaveGame(rec, players))

	loaded, err := db.LoadGame("g1")
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", loaded.Status)
	assert.Equal(t, 2, loaded.RoundsPlayed)
	assert.Equal(t, "p1", loaded.WinnerID)
	assert.Equal(t, "COMPLETED", loaded.FinishReason)
}

func TestLoadGameMissing(t *testing.T) {
	db := openTestDB(t)

	_, err := db.LoadGame("nope")
	assert.Error(t, err)
}

func TestGameLogRoundTrip(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.AppendGameLog("g1", 1, "GameStarted", "e1", now, []byte(`{"game_id":"g1"}`)))
	require.NoError(t, db.AppendGameLog("g1", 2, "RoundDealt", "e2", now, []byte(`{"round_number":1}`)))
	require.NoError(t, db.AppendGameLog("g2", 1, "GameStarted", "e3", now, []byte(`{}`)))

	records, err := db.LoadGameLog("g1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].SequenceNumber)
	assert.Equal(t, "GameStarted", records[0].EventType)
	assert.Equal(t, "e1", records[0].EventID)
	assert.JSONEq(t, `{"game_id":"g1"}`, string(records[0].Payload))
	assert.Equal(t, uint64(2), records[1].SequenceNumber)

	empty, err := db.LoadGameLog("g3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCommandLog(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.AppendCommandLog("g1", "p1", "PlayHandCard", []byte(`{"cardId":"0111"}`)))
	require.NoError(t, db.AppendCommandLog("g1", "p1", "LeaveGame", nil))

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM command_log WHERE game_id = ?`, "g1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
