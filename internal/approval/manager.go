package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/courier/internal/logger"
	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("approval not found")
	ErrSenderMismatch   = errors.New("approving sender does not match requester")
	ErrAlreadyResolved  = errors.New("approval already resolved")
	ErrApprovalTimedOut = errors.New("approval timed out")
)

type PendingApproval struct {
	ID          string
	Sender      string
	Command     string
	Description string
	CreatedAt   time.Time
	resultCh    chan bool
	resolved    bool
}

// Manager tracks confirmations a sender must give before a command runs.
// Each sender has at most one open approval; starting a new one replaces it.
type Manager struct {
	pending  map[string]*PendingApproval
	bySender map[string]string
	mu       sync.RWMutex
	timeout  time.Duration
}

func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		pending:  make(map[string]*PendingApproval),
		bySender: make(map[string]string),
		timeout:  timeout,
	}
}

func (m *Manager) Start(sender, command, description string) string {
	id := uuid.New().String()[:8]

	approval := &PendingApproval{
		ID:          id,
		Sender:      sender,
		Command:     command,
		Description: description,
		CreatedAt:   time.Now(),
		resultCh:    make(chan bool, 1),
	}

	m.mu.Lock()
	if prev, ok := m.bySender[sender]; ok {
		delete(m.pending, prev)
	}
	m.pending[id] = approval
	m.bySender[sender] = id
	m.mu.Unlock()

	logger.Info("approval started", "id", id, "sender", sender, "command", command)
	return id
}

func (m *Manager) Wait(ctx context.Context, approvalID string) (bool, error) {
	m.mu.RLock()
	approval, ok := m.pending[approvalID]
	m.mu.RUnlock()

	if !ok {
		return false, ErrNotFound
	}

	defer m.Cancel(approvalID)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		logger.Info("approval timed out", "id", approvalID)
		return false, fmt.Errorf("%w after %s", ErrApprovalTimedOut, m.timeout)
	case approved := <-approval.resultCh:
		return approved, nil
	}
}

func (m *Manager) Request(ctx context.Context, sender, command, description string) (string, bool, error) {
	id := m.Start(sender, command, description)
	approved, err := m.Wait(ctx, id)
	return id, approved, err
}

func (m *Manager) Get(approvalID string) (*PendingApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	approval, ok := m.pending[approvalID]
	if !ok {
		return nil, ErrNotFound
	}
	return approval, nil
}

// PendingFor returns the open approval for sender, if any.
func (m *Manager) PendingFor(sender string) (*PendingApproval, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySender[sender]
	if !ok {
		return nil, false
	}
	approval, ok := m.pending[id]
	if !ok || approval.resolved {
		return nil, false
	}
	return approval, true
}

func (m *Manager) Cancel(approvalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	approval, ok := m.pending[approvalID]
	if !ok {
		return
	}
	delete(m.pending, approvalID)
	if m.bySender[approval.Sender] == approvalID {
		delete(m.bySender, approval.Sender)
	}
}

func (m *Manager) Resolve(approvalID string, approved bool, sender string) error {
	m.mu.Lock()
	approval, ok := m.pending[approvalID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}

	if approval.resolved {
		m.mu.Unlock()
		return ErrAlreadyResolved
	}

	if approval.Sender != sender {
		m.mu.Unlock()
		logger.Warn("approval sender mismatch", "id", approvalID, "expected", approval.Sender, "got", sender)
		return ErrSenderMismatch
	}

	approval.resolved = true
	m.mu.Unlock()

	select {
	case approval.resultCh <- approved:
		logger.Info("approval resolved", "id", approvalID, "approved", approved, "sender", sender)
	default:
		logger.Warn("approval channel full", "id", approvalID)
	}

	return nil
}

func (m *Manager) Timeout() time.Duration {
	return m.timeout
}
