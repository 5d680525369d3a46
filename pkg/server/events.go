package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
)

// EventType identifies a game event on the wire and in the game log.
type EventType string

const (
	EventTypeInitialState               EventType = "InitialState"
	EventTypeGameStarted                EventType = "GameStarted"
	EventTypeRoundDealt                 EventType = "RoundDealt"
	EventTypeTurnCompleted              EventType = "TurnCompleted"
	EventTypeSelectionRequired          EventType = "SelectionRequired"
	EventTypeTurnProgressAfterSelection EventType = "TurnProgressAfterSelection"
	EventTypeDecisionRequired           EventType = "DecisionRequired"
	EventTypeDecisionMade               EventType = "DecisionMade"
	EventTypeRoundEnded                 EventType = "RoundEnded"
	EventTypeGameFinished               EventType = "GameFinished"
	EventTypeGameSnapshotRestore        EventType = "GameSnapshotRestore"
	EventTypeRoomCreated                EventType = "RoomCreated"
	EventTypeContinueRequired           EventType = "ContinueConfirmationRequired"
)

// Event is an immutable record of something that happened in a game. It
// is fanned out to every sink: live SSE connections, the opponent bus
// that drives AI seats, and the durable game log.
type Event struct {
	Type     EventType
	ID       string
	GameID   string
	PlayerID string // acting player, empty for system-originated events
	At       time.Time
	Payload  any

	// View, when set, returns a payload personalized for the receiving
	// player. Connection sinks use it so each seat sees only its own
	// hand; the game log always records the full Payload.
	View func(playerID string) any
}

// NewEvent stamps an event with identity and time.
func NewEvent(typ EventType, gameID, playerID string, payload any) *Event {
	return &Event{
		Type:     typ,
		ID:       uuid.New().String(),
		GameID:   gameID,
		PlayerID: playerID,
		At:       time.Now().UTC(),
		Payload:  payload,
	}
}

// PayloadFor resolves the payload a given player should receive.
func (e *Event) PayloadFor(playerID string) any {
	if e.View != nil {
		return e.View(playerID)
	}
	return e.Payload
}

// WireJSON flattens the payload and merges the event envelope into it,
// producing the JSON object written to the SSE data field.
func (e *Event) WireJSON(playerID string) ([]byte, error) {
	raw, err := json.Marshal(e.PayloadFor(playerID))
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	put := func(k string, v any) {
		b, _ := json.Marshal(v)
		obj[k] = b
	}
	put("event_type", string(e.Type))
	put("event_id", e.ID)
	put("timestamp", e.At.Format(time.RFC3339))
	return json.Marshal(obj)
}

// replayableEvents are the types worth keeping in the durable game log
// for audit and debugging. Ephemeral connection bookkeeping is not.
var replayableEvents = map[EventType]bool{
	EventTypeGameStarted:                true,
	EventTypeRoundDealt:                 true,
	EventTypeTurnCompleted:              true,
	EventTypeSelectionRequired:          true,
	EventTypeTurnProgressAfterSelection: true,
	EventTypeDecisionRequired:           true,
	EventTypeDecisionMade:               true,
	EventTypeRoundEnded:                 true,
	EventTypeGameFinished:               true,
}

// EventSink consumes published events. Sinks must not block; anything
// slow belongs behind its own queue.
type EventSink interface {
	HandleEvent(event *Event)
}

// Publisher is the output port use cases publish through.
type Publisher interface {
	Publish(event *Event)
}

// CompositePublisher fans each event out to all registered sinks in
// order. Registration happens at wiring time, before any publish.
type CompositePublisher struct {
	sinks []EventSink
	log   slog.Logger
}

// NewCompositePublisher creates a publisher with the given sinks.
func NewCompositePublisher(log slog.Logger, sinks ...EventSink) *CompositePublisher {
	return &CompositePublisher{sinks: sinks, log: log}
}

// Publish delivers the event to every sink. A panicking sink is
// contained and logged so the remaining sinks still see the event.
func (p *CompositePublisher) Publish(event *Event) {
	for _, sink := range p.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Errorf("event sink panic on %s for game %s: %v", event.Type, event.GameID, r)
				}
			}()
			sink.HandleEvent(event)
		}()
	}
}

// GameLogStore persists the append-only per-game event log.
type GameLogStore interface {
	AppendGameLog(gameID string, seq uint64, eventType, eventID string, at time.Time, payload []byte) error
}

// gameLogWriter is the persistence sink. Writes go through a bounded
// queue so a slow disk never stalls the publish path; overflow drops the
// record and counts it.
type gameLogWriter struct {
	store GameLogStore
	log   slog.Logger

	queue    chan *logRecord
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex

	seq     atomic.Uint64
	dropped atomic.Uint64
}

type logRecord struct {
	gameID    string
	seq       uint64
	eventType string
	eventID   string
	at        time.Time
	payload   []byte
}

func newGameLogWriter(store GameLogStore, log slog.Logger, queueSize int) *gameLogWriter {
	return &gameLogWriter{
		store:    store,
		log:      log,
		queue:    make(chan *logRecord, queueSize),
		stopChan: make(chan struct{}),
	}
}

// Start begins draining the write queue.
func (w *gameLogWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.run()
}

// Stop drains outstanding records and stops the writer.
func (w *gameLogWriter) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
}

// HandleEvent implements EventSink. The sequence number is assigned here,
// at publish order, so the log preserves the order events were emitted
// even though writes complete asynchronously.
func (w *gameLogWriter) HandleEvent(event *Event) {
	if !replayableEvents[event.Type] {
		return
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		w.log.Errorf("game log: marshal %s for game %s: %v", event.Type, event.GameID, err)
		return
	}

	rec := &logRecord{
		gameID:    event.GameID,
		seq:       w.seq.Add(1),
		eventType: string(event.Type),
		eventID:   event.ID,
		at:        event.At,
		payload:   payload,
	}

	select {
	case w.queue <- rec:
	default:
		n := w.dropped.Add(1)
		w.log.Errorf("game log queue full, dropping %s for game %s (%d dropped total)", event.Type, event.GameID, n)
	}
}

// Dropped returns the number of log records lost to queue overflow.
func (w *gameLogWriter) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *gameLogWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case rec := <-w.queue:
			w.write(rec)
		case <-w.stopChan:
			for {
				select {
				case rec := <-w.queue:
					w.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *gameLogWriter) write(rec *logRecord) {
	start := time.Now()
	err := w.store.AppendGameLog(rec.gameID, rec.seq, rec.eventType, rec.eventID, rec.at, rec.payload)
	if err != nil {
		w.log.Errorf("game log: append %s for game %s: %v", rec.eventType, rec.gameID, err)
		return
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		w.log.Warnf("game log: slow append %s for game %s took %s", rec.eventType, rec.gameID, elapsed)
	}
}
