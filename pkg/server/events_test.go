package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
)

func TestWireJSONMergesEnvelope(t *testing.T) {
	event := NewEvent(EventTypeDecisionMade, "g1", "p1", &DecisionMadePayload{
		PlayerID: "p1",
		Decision: "KOI_KOI",
	})

	raw, err := event.WireJSON("p1")
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Equal(t, "DecisionMade", obj["event_type"])
	assert.Equal(t, event.ID, obj["event_id"])
	assert.Equal(t, "p1", obj["player_id"])
	assert.Equal(t, "KOI_KOI", obj["decision"])

	_, err = time.Parse(time.RFC3339, obj["timestamp"].(string))
	assert.NoError(t, err)
}

func TestWireJSONUsesPlayerView(t *testing.T) {
	event := NewEvent(EventTypeRoundDealt, "g1", "", &RoundDealtPayload{RoundNumber: 1})
	event.View = func(playerID string) any {
		return &RoundDealtPayload{RoundNumber: 1, Hand: []hanafuda.Card{"0111"}}
	}

	raw, err := event.WireJSON("p1")
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Contains(t, obj, "hand")
}

type recordingSink struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recordingSink) HandleEvent(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type panickingSink struct{}

func (panickingSink) HandleEvent(*Event) { panic("bad sink") }

func TestCompositePublisherIsolatesSinkFailures(t *testing.T) {
	rec := &recordingSink{}
	pub := NewCompositePublisher(testLogger(), panickingSink{}, rec)

	pub.Publish(NewEvent(EventTypeGameStarted, "g1", "", &GameStartedPayload{GameID: "g1"}))
	assert.Equal(t, 1, rec.len(), "later sinks still receive the event")
}

type memLogStore struct {
	mu      sync.Mutex
	records []logRecord
}

func (m *memLogStore) AppendGameLog(gameID string, seq uint64, eventType, eventID string, at time.Time, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, logRecord{
		gameID: gameID, seq: seq, eventType: eventType, eventID: eventID, at: at, payload: payload,
	})
	return nil
}

func (m *memLogStore) all() []logRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logRecord(nil), m.records...)
}

func TestGameLogWriterPersistsReplayableEvents(t *testing.T) {
	store := &memLogStore{}
	w := newGameLogWriter(store, testLogger(), 16)
	w.Start()

	w.HandleEvent(NewEvent(EventTypeRoundDealt, "g1", "", &RoundDealtPayload{RoundNumber: 1}))
	w.HandleEvent(NewEvent(EventTypeInitialState, "g1", "", &InitialStatePayload{}))
	w.HandleEvent(NewEvent(EventTypeTurnCompleted, "g1", "p1", &TurnCompletedPayload{PlayerID: "p1"}))
	w.Stop()

	records := store.all()
	require.Len(t, records, 2, "transient events are not logged")
	assert.Equal(t, "RoundDealt", records[0].eventType)
	assert.Equal(t, "TurnCompleted", records[1].eventType)
	assert.Equal(t, uint64(1), records[0].seq)
	assert.Equal(t, uint64(2), records[1].seq, "sequence follows publish order")
}

func TestGameLogWriterDropsOnOverflow(t *testing.T) {
	store := &memLogStore{}
	w := newGameLogWriter(store, testLogger(), 1)
	// Never started: the queue holds one record, the rest drop.

	w.HandleEvent(NewEvent(EventTypeRoundEnded, "g1", "", &RoundEndedPayload{}))
	w.HandleEvent(NewEvent(EventTypeRoundEnded, "g1", "", &RoundEndedPayload{}))
	w.HandleEvent(NewEvent(EventTypeRoundEnded, "g1", "", &RoundEndedPayload{}))

	assert.Equal(t, uint64(2), w.Dropped())
}
