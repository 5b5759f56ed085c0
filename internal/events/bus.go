// Package events provides an in-memory event bus using Go channels.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Task lifecycle
	EventTaskCreated   EventType = "task.created"
	EventTaskStarted   EventType = "task.started"
	EventTaskPaused    EventType = "task.paused"
	EventTaskResumed   EventType = "task.resumed"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"

	// Step execution
	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"

	// Assessment
	EventAssessmentReady EventType = "assessment.ready"

	// Scheduler
	EventScheduleTrigger EventType = "schedule.trigger"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceOrchestrator EventSource = "orchestrator"
	SourceExecutor     EventSource = "executor"
	SourceAssessor     EventSource = "assessor"
	SourceScheduler    EventSource = "scheduler"
)

// Event represents an event in the system.
type Event struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// eventIDCounter is used to generate sequential event IDs.
var eventIDCounter uint64

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

// NewEvent creates an event from a typed payload.
func NewEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		TaskID:    payload.TaskRef(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// toMap round-trips a payload through JSON into a generic map.
func toMap(payload EventPayload) map[string]any {
	data, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return m
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// subscriber pairs a handler with the set of event types it wants; a nil
// set means every type.
type subscriber struct {
	types   map[EventType]struct{}
	deliver Subscriber
}

// Bus is an in-memory publish/subscribe bus. Publishing never blocks:
// events queue into a bounded channel and a single dispatch goroutine
// records them in the history ring and fans them out to subscribers,
// each on its own goroutine.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]subscriber
	lastSub uint64
	closed  bool

	queue   chan Event
	history *RingBuffer
	quit    chan struct{}
}

// NewBus creates a bus whose queue and history both hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	b := &Bus{
		subs:    make(map[uint64]subscriber),
		queue:   make(chan Event, bufferSize),
		history: NewRingBuffer(bufferSize),
		quit:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case e := <-b.queue:
			b.history.Add(e)
			b.fanOut(e)
		case <-b.quit:
			return
		}
	}
}

func (b *Bus) fanOut(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.types != nil {
			if _, ok := sub.types[e.Type]; !ok {
				continue
			}
		}
		go sub.deliver(e)
	}
}

// Publish queues an event for dispatch. When the queue is full the event
// is dropped; publishers are never stalled by slow consumers. Publishing
// on a closed bus is a no-op.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	select {
	case b.queue <- e:
	default:
	}
}

// Subscribe registers a handler for the given event types, or for every
// event when none are named. The returned function unsubscribes.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	var types map[EventType]struct{}
	if len(eventTypes) > 0 {
		types = make(map[EventType]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.lastSub++
	id := b.lastSub
	b.subs[id] = subscriber{types: types, deliver: handler}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// History returns up to limit most recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.history.Get(limit)
}

// Close stops dispatch. Events still queued are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.quit)
}
