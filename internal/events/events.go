// Package events fans job and entry changes out to live subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/hpungsan/plate/internal/telemetry"
)

// Type names a kind of change.
type Type string

const (
	JobUpdated    Type = "job.updated"
	FixJobUpdated Type = "fix_job.updated"
	EntryUpdated  Type = "entry.updated"
	EntryDeleted  Type = "entry.deleted"
)

// Event is a change notification. It carries ids only; clients re-read the
// record through the query API.
type Event struct {
	Type      Type   `json:"type"`
	UserID    string `json:"userId"`
	ID        string `json:"id"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// subscriberBuffer bounds per-subscriber backlog; slow readers lose events.
const subscriberBuffer = 32

// Publisher is what writers depend on.
type Publisher interface {
	Publish(ev Event)
}

type subscriber struct {
	id     string
	userID string
	ch     chan Event
}

// Hub is an in-process pub/sub keyed by user id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	logger *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]*subscriber),
		logger: telemetry.OrNop(logger),
	}
}

// Subscribe registers interest in one user's events (all users when userID is
// empty). The returned cancel func closes the channel.
func (h *Hub) Subscribe(userID string) (string, <-chan Event, func()) {
	s := &subscriber{
		id:     uuid.New().String(),
		userID: userID,
		ch:     make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	h.subs[s.id] = s
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug().Str("subscriber_id", s.id).Str("user_id", userID).Int("subscriber_count", count).Msg("subscribed")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s.id)
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.id, s.ch, cancel
}

// Publish delivers ev to matching subscribers without blocking.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if s.userID != "" && s.userID != ev.UserID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn().Str("subscriber_id", s.id).Str("event_type", string(ev.Type)).Msg("subscriber backlog full, dropping event")
		}
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) {}
