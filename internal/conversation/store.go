package conversation

import "sync"

const defaultMaxTurns = 10

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role
	Text string
}

// Store keeps the most recent turns per sender in memory. The sender map is
// guarded, but appends for a single sender must be serialized by the caller.
type Store struct {
	mu       sync.RWMutex
	maxTurns int
	history  map[string][]Turn
}

// NewStore creates a conversation buffer bounded to maxTurns per sender
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Store{
		maxTurns: maxTurns,
		history:  make(map[string][]Turn),
	}
}

// Append adds a turn at the tail and evicts the oldest turns past the bound.
func (s *Store) Append(sender string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.history[sender], turn)

	// trim to max turns (FIFO)
	if overflow := len(turns) - s.maxTurns; overflow > 0 {
		trimmed := make([]Turn, s.maxTurns)
		copy(trimmed, turns[overflow:])
		turns = trimmed
	}

	s.history[sender] = turns
}

// Read returns a copy of the sender's history in insertion order.
func (s *Store) Read(sender string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.history[sender]
	copied := make([]Turn, len(turns))
	copy(copied, turns)

	return copied
}

func (s *Store) Len(sender string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[sender])
}

func (s *Store) Clear(sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, sender)
}

// Senders returns how many conversations are being tracked
func (s *Store) Senders() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

func (s *Store) MaxTurns() int {
	return s.maxTurns
}
