package approval

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestApprovalFlow(t *testing.T) {
	mgr := NewManager(time.Second)

	id := mgr.Start("alice", "ls -la", "list files")
	if id == "" {
		t.Fatal("expected non-empty approval ID")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := mgr.Resolve(id, true, "alice"); err != nil {
			t.Errorf("resolve failed: %v", err)
		}
	}()

	approved, err := mgr.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if !approved {
		t.Error("expected approved=true")
	}
}

func TestApprovalDeny(t *testing.T) {
	mgr := NewManager(time.Second)

	id := mgr.Start("alice", "rm -rf /tmp/x", "remove dir")

	go func() {
		time.Sleep(10 * time.Millisecond)
		mgr.Resolve(id, false, "alice")
	}()

	approved, err := mgr.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if approved {
		t.Error("expected approved=false")
	}
}

func TestApprovalTimeout(t *testing.T) {
	mgr := NewManager(20 * time.Millisecond)

	id := mgr.Start("alice", "uptime", "uptime")

	_, err := mgr.Wait(context.Background(), id)
	if !errors.Is(err, ErrApprovalTimedOut) {
		t.Errorf("expected ErrApprovalTimedOut, got %v", err)
	}

	if _, ok := mgr.PendingFor("alice"); ok {
		t.Error("timed out approval should no longer be pending")
	}
}

func TestApprovalSenderMismatch(t *testing.T) {
	mgr := NewManager(time.Second)

	id := mgr.Start("alice", "uptime", "uptime")

	err := mgr.Resolve(id, true, "mallory")
	if err != ErrSenderMismatch {
		t.Errorf("expected ErrSenderMismatch, got %v", err)
	}
}

func TestApprovalAlreadyResolved(t *testing.T) {
	mgr := NewManager(time.Second)

	id := mgr.Start("alice", "uptime", "uptime")
	if err := mgr.Resolve(id, true, "alice"); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	if err := mgr.Resolve(id, true, "alice"); err != ErrAlreadyResolved {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestApprovalCancel(t *testing.T) {
	mgr := NewManager(time.Second)

	id := mgr.Start("alice", "uptime", "uptime")
	mgr.Cancel(id)

	_, err := mgr.Get(id)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound after cancel, got %v", err)
	}
	if _, ok := mgr.PendingFor("alice"); ok {
		t.Error("cancelled approval should not be pending")
	}
}

func TestApprovalPendingFor(t *testing.T) {
	mgr := NewManager(time.Second)

	if _, ok := mgr.PendingFor("alice"); ok {
		t.Fatal("expected nothing pending initially")
	}

	first := mgr.Start("alice", "uptime", "uptime")
	second := mgr.Start("alice", "df -h", "disk")

	pending, ok := mgr.PendingFor("alice")
	if !ok {
		t.Fatal("expected a pending approval")
	}
	if pending.ID != second || pending.Command != "df -h" {
		t.Errorf("expected latest approval, got %+v", pending)
	}

	if _, err := mgr.Get(first); err != ErrNotFound {
		t.Errorf("replaced approval should be gone, got %v", err)
	}

	if _, ok := mgr.PendingFor("bob"); ok {
		t.Error("bob has nothing pending")
	}
}

func TestApprovalContextCancel(t *testing.T) {
	mgr := NewManager(5 * time.Second)

	id := mgr.Start("alice", "uptime", "uptime")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := mgr.Wait(ctx, id)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
