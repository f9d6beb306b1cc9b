package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bowerhall/courier/internal/approval"
	"github.com/bowerhall/courier/internal/conversation"
	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/presence"
	"github.com/bowerhall/courier/internal/transport"
	"github.com/bowerhall/courier/internal/video"
)

func init() {
	logger.SetOutput(discard{}, false)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []transport.Content
	presence []transport.Presence

	media   []byte
	dlErr   error
	sendErr error
}

func (m *fakeMessenger) Send(ctx context.Context, to string, c transport.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, c)
	return nil
}

func (m *fakeMessenger) SetPresence(ctx context.Context, to string, p transport.Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence = append(m.presence, p)
	return nil
}

func (m *fakeMessenger) Download(ctx context.Context, ref transport.MediaRef) ([]byte, error) {
	return m.media, m.dlErr
}

func (m *fakeMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.sent {
		out = append(out, c.Summary())
	}
	return out
}

func (m *fakeMessenger) last() transport.Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return transport.Content{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) presences() []transport.Presence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.Presence(nil), m.presence...)
}

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	messages []llm.Message
}

func (f *fakeLLM) Chat(ctx context.Context, systemPrompt string, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = messages
	return f.reply, f.err
}

func (f *fakeLLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{Vision: true}
}

type fakeTranscoder struct {
	called bool
	err    error
}

func (f *fakeTranscoder) ToWAV(ctx context.Context, data []byte) ([]byte, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("RIFF"), data...), nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return f.text, f.err
}

type fakeSynthesizer struct {
	err error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("OggS" + text), "audio/ogg; codecs=opus", nil
}

type fakeScreen struct {
	err error
}

func (f *fakeScreen) Capture(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG"), nil
}

type fakePlayer struct {
	opened []string
}

func (f *fakePlayer) Open(ctx context.Context, link string) error {
	f.opened = append(f.opened, link)
	return nil
}

type fakeSearcher struct {
	results []video.Result
	queries []string
	max     []int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, max int) ([]video.Result, error) {
	f.queries = append(f.queries, query)
	f.max = append(f.max, max)
	if len(f.results) > max {
		return f.results[:max], nil
	}
	return f.results, nil
}

type fakeRunner struct {
	ran    []string
	output string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, command string) (string, error) {
	f.ran = append(f.ran, command)
	return f.output, f.err
}

type fixture struct {
	exec *Executor
	msgr *fakeMessenger
	ai   *fakeLLM
	hist *conversation.Store
}

func newFixture(mod func(*Deps)) *fixture {
	msgr := &fakeMessenger{}
	ai := &fakeLLM{reply: "hello back"}
	hist := conversation.NewStore(10)

	deps := Deps{
		Messenger: msgr,
		Presence:  presence.New(msgr, presence.Config{Clock: instantClock{}}),
		History:   hist,
		AI:        ai,
		Clock:     instantClock{},
	}
	if mod != nil {
		mod(&deps)
	}

	return &fixture{exec: New(deps), msgr: msgr, ai: ai, hist: hist}
}

var errBoom = errors.New("boom")

func newApprovals() *approval.Manager {
	return approval.NewManager(time.Second)
}
