package notify

import (
	"sync"

	"talko/pkg/logger"
	"talko/pkg/models"
)

type EventType string

const (
	EventMessageNew     EventType = "message_new"
	EventMessageUpdated EventType = "message_updated"
	EventMessageRemoved EventType = "message_removed"
	EventFriendRequest  EventType = "friend_request"
	EventFriendAccepted EventType = "friend_accepted"
	// EventGap tells a subscriber it missed events and must resynchronize
	// by re-reading from the store; the hub does not replay.
	EventGap EventType = "gap"
)

// Event is one committed mutation fanned out to subscribers of a topic.
// Seq is per-topic and strictly increasing in commit order.
type Event struct {
	Type  EventType          `json:"type"`
	Topic string             `json:"topic"`
	Seq   uint64             `json:"seq"`
	Msg   *models.Message    `json:"message,omitempty"`
	Edge  *models.FriendEdge `json:"friend,omitempty"`
}

// Hub is the in-process fan-out for store mutations. Topics are
// conversation keys for message events and "user:<id>" for relationship
// events. Delivery is at-least-once and order-preserving per topic; a
// subscriber that cannot keep up is handed an EventGap instead of blocking
// the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	seq    map[string]uint64
	buffer int
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		seq:    make(map[string]uint64),
		buffer: buffer,
	}
}

// Subscription receives events for a single topic until Close.
type Subscription struct {
	topic string
	ch    chan Event
	hub   *Hub

	// gapped is guarded by the hub mutex; set when an event was dropped
	// and cleared once the gap marker was delivered.
	gapped bool

	closeOnce sync.Once
}

// Events returns the receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Close unregisters the subscription. Safe to call multiple times; after
// Close returns the hub performs no further sends on the channel.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.mu.Lock()
		if set, ok := s.hub.subs[s.topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.topic)
			}
		}
		s.hub.mu.Unlock()
		subscribersGauge.Dec()
		close(s.ch)
	})
}

// Subscribe registers for a topic.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan Event, h.buffer), hub: h}
	h.mu.Lock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[topic] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	subscribersGauge.Inc()
	return sub
}

// Publish assigns the next per-topic sequence number and fans the event out
// to every live subscriber of the topic. Publishing never blocks on slow
// subscribers.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	h.seq[ev.Topic]++
	ev.Seq = h.seq[ev.Topic]
	set := h.subs[ev.Topic]
	for sub := range set {
		if sub.gapped {
			// deliver the gap marker before anything newer
			select {
			case sub.ch <- Event{Type: EventGap, Topic: ev.Topic, Seq: ev.Seq}:
				sub.gapped = false
			default:
				droppedTotal.Inc()
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			sub.gapped = true
			droppedTotal.Inc()
			logger.Warn("notify_subscriber_gapped", "topic", ev.Topic, "seq", ev.Seq)
		}
	}
	h.mu.Unlock()
	publishedTotal.Inc()
}

// UserTopic names the relationship-event topic for an identity.
func UserTopic(identity string) string { return "user:" + identity }
