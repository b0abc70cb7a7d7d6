// Package notify implements the per-job pub-sub hub that fans live job
// events out to observer connections.
//
// Delivery is best effort: a sink that fails to accept an event is removed
// from the subscriber set as a side effect of the failed delivery. The
// publisher never sees delivery errors.
package notify

import "sync"

// Event names delivered to sinks. All but "pong" carry a full job snapshot.
const (
	EventCreated   = "created"
	EventStarted   = "started"
	EventProgress  = "progress"
	EventFinished  = "finished"
	EventCancelled = "cancelled"
	EventConnected = "connected"
	EventPong      = "pong"
)

// Event is the structured record delivered to sinks.
//
// Job is a snapshot of the job at publish time; its concrete type is owned
// by the jobs package and only travels through here for serialization.
type Event struct {
	Event string `json:"event"`
	Job   any    `json:"job,omitempty"`
}

// Sink receives events for one job id. Send must return an error when the
// observer can no longer accept events (closed connection, full buffer);
// that error is the hub's signal to deregister the sink.
//
// Implementations must be comparable (use pointer receivers) so the hub can
// identify them for removal, and must bound how long Send can block: the
// hub calls Send from the scheduler's worker loop.
type Sink interface {
	Send(Event) error
}

// Hub is the per-job subscriber registry.
//
// Safe for concurrent use: connection handlers subscribe and unsubscribe
// while the worker loop publishes.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]Sink
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[string][]Sink{}}
}

// Subscribe registers sink for events about jobID.
func (h *Hub) Subscribe(jobID string, sink Sink) {
	if sink == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[jobID] = append(h.subs[jobID], sink)
}

// Unsubscribe removes sink from jobID's subscriber set. Unknown sinks are a
// no-op.
func (h *Hub) Unsubscribe(jobID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(jobID, sink)
}

func (h *Hub) removeLocked(jobID string, sink Sink) {
	subs := h.subs[jobID]
	kept := subs[:0]
	for _, s := range subs {
		if s != sink {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(h.subs, jobID)
		return
	}
	h.subs[jobID] = kept
}

// Publish delivers ev to every current subscriber of jobID, in subscription
// order. Sinks whose Send fails are silently dropped from the set; delivery
// to the remaining sinks is unaffected.
func (h *Hub) Publish(jobID string, ev Event) {
	h.mu.Lock()
	subs := make([]Sink, len(h.subs[jobID]))
	copy(subs, h.subs[jobID])
	h.mu.Unlock()

	var dead []Sink
	for _, s := range subs {
		if err := s.Send(ev); err != nil {
			dead = append(dead, s)
		}
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, s := range dead {
		h.removeLocked(jobID, s)
	}
	h.mu.Unlock()
}

// Subscribers reports the current subscriber count for jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
