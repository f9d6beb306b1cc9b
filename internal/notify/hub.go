package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventConnectionStatus EventType = "connection-status"
	EventQRCode           EventType = "qr-code"
	EventMessageExchanged EventType = "message-exchanged"
	EventAlert            EventType = "alert"
)

const DefaultBuffer = 32

type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type ConnectionData struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

type QRCodeData struct {
	Code string `json:"code"`
}

type MessageData struct {
	Sender    string `json:"sender"`
	Direction string `json:"direction"`
	Kind      string `json:"kind"`
	Summary   string `json:"summary"`
}

type AlertData struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

func ConnectionStatus(state string, connected bool, reason string) Event {
	return Event{Type: EventConnectionStatus, Data: ConnectionData{State: state, Connected: connected, Reason: reason}}
}

func QRCode(code string) Event {
	return Event{Type: EventQRCode, Data: QRCodeData{Code: code}}
}

func MessageExchanged(sender, direction, kind, summary string) Event {
	return Event{Type: EventMessageExchanged, Data: MessageData{Sender: sender, Direction: direction, Kind: kind, Summary: summary}}
}

func Alert(severity, text string) Event {
	return Event{Type: EventAlert, Data: AlertData{Severity: severity, Text: text}}
}

// Hub fans events out to observers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Int64
}

type Subscription struct {
	C   <-chan Event
	ch  chan Event
	hub *Hub
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

func (h *Hub) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub] = struct{}{}

	return sub
}

// Close ends every subscription. Later subscriptions start closed and
// Publish becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	if _, ok := s.hub.subs[s]; !ok {
		return
	}
	delete(s.hub.subs, s)
	close(s.ch)
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
