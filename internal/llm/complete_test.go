package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeLLM struct {
	vision   bool
	reply    string
	err      error
	delay    time.Duration
	system   string
	messages []Message
}

func (f *fakeLLM) Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	f.system = systemPrompt
	f.messages = messages

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeLLM) Capabilities() Capabilities {
	return Capabilities{Vision: f.vision}
}

func TestCompleteSendsHistoryThenPrompt(t *testing.T) {
	model := &fakeLLM{reply: "  sure thing  "}

	reply, err := Complete(context.Background(), model, Request{
		Prompt: "and tomorrow?",
		History: []Message{
			{Role: RoleUser, Content: "weather today?"},
			{Role: RoleAssistant, Content: "sunny"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reply != "sure thing" {
		t.Errorf("expected trimmed reply, got %q", reply)
	}

	if len(model.messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(model.messages))
	}
	if model.messages[1].Role != RoleAssistant || model.messages[2].Content != "and tomorrow?" {
		t.Errorf("unexpected messages: %+v", model.messages)
	}
	if model.system == "" {
		t.Error("expected a system prompt")
	}
}

func TestCompleteAppendsNote(t *testing.T) {
	model := &fakeLLM{reply: "ok"}

	_, err := Complete(context.Background(), model, Request{Prompt: "list files", Note: "reply with one command"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := model.messages[0].Content
	if !strings.HasPrefix(got, "list files") || !strings.HasSuffix(got, "reply with one command") {
		t.Errorf("note not appended: %q", got)
	}
}

func TestCompleteImageWithVision(t *testing.T) {
	model := &fakeLLM{vision: true, reply: "a cat"}
	img := &ImageContent{Data: []byte{1, 2, 3}, MimeType: "image/jpeg"}

	if _, err := Complete(context.Background(), model, Request{Prompt: "what is this?", Image: img}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(model.messages[0].Images) != 1 {
		t.Fatalf("expected image to be attached")
	}
}

func TestCompleteImageWithoutVisionDegrades(t *testing.T) {
	model := &fakeLLM{vision: false, reply: "I can't see images"}
	img := &ImageContent{Data: []byte{1, 2, 3}, MimeType: "image/jpeg"}

	reply, err := Complete(context.Background(), model, Request{Prompt: "what is this?", Image: img})
	if err != nil {
		t.Fatalf("expected degraded answer, got error: %v", err)
	}
	if reply == "" {
		t.Error("expected a textual answer")
	}

	if len(model.messages[0].Images) != 0 {
		t.Error("image should not reach a model without vision")
	}
	if !strings.Contains(model.messages[0].Content, "cannot view images") {
		t.Errorf("expected degradation note, got %q", model.messages[0].Content)
	}
}

func TestCompleteEmptyReplyIsMalformed(t *testing.T) {
	model := &fakeLLM{reply: "   "}

	_, err := Complete(context.Background(), model, Request{Prompt: "hi"})
	if !IsKind(err, KindMalformed) {
		t.Errorf("expected malformed error, got %v", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	model := &fakeLLM{reply: "late", delay: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Complete(ctx, model, Request{Prompt: "hi"})
	if !IsKind(err, KindTimeout) {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestCompleteClassifiesErrors(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{errors.New("POST /v1/messages: 429 Too Many Requests rate_limit_error"), KindQuota},
		{errors.New("RESOURCE_EXHAUSTED: quota exceeded"), KindQuota},
		{errors.New("unmarshal response: invalid character"), KindMalformed},
		{errors.New("dial tcp: connection refused"), KindUnavailable},
		{&Error{Kind: KindQuota, Err: ErrQuotaExceeded}, KindQuota},
	}

	for _, tt := range tests {
		model := &fakeLLM{err: tt.err}
		_, err := Complete(context.Background(), model, Request{Prompt: "hi"})

		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("expected *Error for %v, got %T", tt.err, err)
		}
		if e.Kind != tt.kind {
			t.Errorf("%v: expected kind %s, got %s", tt.err, tt.kind, e.Kind)
		}
	}
}

type countingQuota struct {
	left int
}

func (q *countingQuota) Take() bool {
	if q.left <= 0 {
		return false
	}
	q.left--
	return true
}

func TestWithQuota(t *testing.T) {
	inner := &fakeLLM{reply: "ok"}
	model := WithQuota(inner, &countingQuota{left: 2})

	for i := 0; i < 2; i++ {
		if _, err := Complete(context.Background(), model, Request{Prompt: "hi"}); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}

	inner.messages = nil
	_, err := Complete(context.Background(), model, Request{Prompt: "hi"})
	if !IsKind(err, KindQuota) {
		t.Errorf("expected quota error, got %v", err)
	}
	if inner.messages != nil {
		t.Error("backend should not be called once quota is spent")
	}
}

func TestWithQuotaKeepsCapabilities(t *testing.T) {
	model := WithQuota(&fakeLLM{vision: true}, &countingQuota{left: 1})
	if !model.Capabilities().Vision {
		t.Error("expected vision to pass through the quota wrapper")
	}

	if WithQuota(&fakeLLM{}, nil) == nil {
		t.Error("nil quota should return the model unchanged")
	}
}
