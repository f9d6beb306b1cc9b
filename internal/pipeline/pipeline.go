package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/bowerhall/courier/internal/approval"
	"github.com/bowerhall/courier/internal/command"
	"github.com/bowerhall/courier/internal/conversation"
	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/media"
	"github.com/bowerhall/courier/internal/notify"
	"github.com/bowerhall/courier/internal/presence"
	"github.com/bowerhall/courier/internal/shell"
	"github.com/bowerhall/courier/internal/speech"
	"github.com/bowerhall/courier/internal/transport"
	"github.com/bowerhall/courier/internal/video"
)

// Messenger is the part of a transport the pipelines talk through.
type Messenger interface {
	Send(ctx context.Context, to string, content transport.Content) error
	SetPresence(ctx context.Context, to string, p transport.Presence) error
	Download(ctx context.Context, ref transport.MediaRef) ([]byte, error)
}

type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

type Archiver interface {
	Archive(ctx context.Context, kind, sender string, data []byte, contentType string) (string, error)
}

type Publisher interface {
	Publish(e notify.Event)
}

type Timeouts struct {
	AI         time.Duration
	Transcribe time.Duration
	Synthesize time.Duration
	Search     time.Duration
	Capture    time.Duration
	Download   time.Duration
	Transcode  time.Duration
	Send       time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		AI:         60 * time.Second,
		Transcribe: 60 * time.Second,
		Synthesize: 60 * time.Second,
		Search:     15 * time.Second,
		Capture:    15 * time.Second,
		Download:   30 * time.Second,
		Transcode:  30 * time.Second,
		Send:       30 * time.Second,
	}
}

const (
	DefaultLongText      = 280
	DefaultSearchResults = 5
	DefaultSettleDelay   = 5 * time.Second
)

// Deps wires an Executor. Optional collaborators may be nil; the commands
// that need them then reply that the feature is not configured.
type Deps struct {
	Messenger Messenger
	Presence  *presence.Simulator
	History   *conversation.Store
	AI        llm.LLM

	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Transcoder  media.Transcoder
	Screen      media.ScreenCapturer
	Player      media.Player
	Videos      video.Searcher

	Shell     Runner
	Policy    shell.Policy
	Approvals *approval.Manager

	Archive Archiver
	Events  Publisher

	// OnAIError receives every failed AI completion.
	OnAIError func(err error)

	Timeouts      Timeouts
	LongText      int
	SearchResults int
	SettleDelay   time.Duration
	Clock         presence.Clock
}

// Executor runs the four pipelines. Every method sends exactly one final
// message to the sender and always clears presence; the returned error is
// for logging only.
type Executor struct {
	Deps
	handlers map[command.Intent]handler
}

func New(deps Deps) *Executor {
	def := DefaultTimeouts()
	t := &deps.Timeouts
	for _, pair := range []struct {
		v *time.Duration
		d time.Duration
	}{
		{&t.AI, def.AI},
		{&t.Transcribe, def.Transcribe},
		{&t.Synthesize, def.Synthesize},
		{&t.Search, def.Search},
		{&t.Capture, def.Capture},
		{&t.Download, def.Download},
		{&t.Transcode, def.Transcode},
		{&t.Send, def.Send},
	} {
		if *pair.v <= 0 {
			*pair.v = pair.d
		}
	}

	if deps.LongText <= 0 {
		deps.LongText = DefaultLongText
	}
	if deps.SearchResults <= 0 {
		deps.SearchResults = DefaultSearchResults
	}
	if deps.SettleDelay <= 0 {
		deps.SettleDelay = DefaultSettleDelay
	}
	if deps.Clock == nil {
		deps.Clock = presence.Real()
	}
	if deps.Presence == nil {
		deps.Presence = presence.New(deps.Messenger, presence.Config{Clock: deps.Clock})
	}
	if deps.History == nil {
		deps.History = conversation.NewStore(0)
	}

	e := &Executor{Deps: deps, handlers: make(map[command.Intent]handler)}
	e.register(command.IntentScreenshot, e.screenshot)
	e.register(command.IntentSearchVideo, e.searchVideo)
	e.register(command.IntentPlayVideo, e.playVideo)
	e.register(command.IntentShellGenerate, e.generateShell)
	return e
}

// send delivers content and records it for observers. Failures are
// returned, never retried here.
func (e *Executor) send(ctx context.Context, to string, content transport.Content) error {
	ctx, cancel := context.WithTimeout(ctx, e.Timeouts.Send)
	defer cancel()

	if err := e.Messenger.Send(ctx, to, content); err != nil {
		logger.Error("reply send failed", "sender", to, "error", err)
		return err
	}

	if e.Events != nil {
		e.Events.Publish(notify.MessageExchanged(to, "out", string(content.Kind()), content.Summary()))
	}
	return nil
}

// fail sends a single apology and passes cause through.
func (e *Executor) fail(ctx context.Context, to, text string, cause error) error {
	if err := e.send(ctx, to, transport.Text(text)); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (e *Executor) complete(ctx context.Context, req llm.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeouts.AI)
	defer cancel()

	reply, err := llm.Complete(ctx, e.AI, req)
	if err != nil {
		logger.Warn("ai completion failed", "error", err)
		if e.OnAIError != nil {
			e.OnAIError(err)
		}
		return "", err
	}
	return reply, nil
}

func (e *Executor) download(ctx context.Context, ref *transport.MediaRef) ([]byte, error) {
	if ref == nil {
		return nil, errors.New("message has no media")
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeouts.Download)
	defer cancel()

	return e.Messenger.Download(ctx, *ref)
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-e.Clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
