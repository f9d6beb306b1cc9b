// Package orchestrator routes supervisor events. Connection changes go to
// observers; inbound messages are classified and queued on the sender's
// lane so each sender is served in order while senders run in parallel.
package orchestrator

import (
	"context"
	"strings"

	"github.com/bowerhall/courier/internal/approval"
	"github.com/bowerhall/courier/internal/command"
	"github.com/bowerhall/courier/internal/connection"
	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/notify"
	"github.com/bowerhall/courier/internal/session"
	"github.com/bowerhall/courier/internal/transport"
)

const ownerOnly = "❌ Commands are restricted to the owner of this bot."

type Supervisor interface {
	Events() <-chan connection.Event
	State() connection.Snapshot
	ReportFailure(err error)
}

type Executor interface {
	Conversational(ctx context.Context, msg transport.Message) error
	Voice(ctx context.Context, msg transport.Message) error
	Image(ctx context.Context, msg transport.Message) error
	System(ctx context.Context, msg transport.Message, cmd command.Command, parseErr error) error
}

type Sender interface {
	Send(ctx context.Context, to string, content transport.Content) error
}

type Publisher interface {
	Publish(e notify.Event)
}

type Config struct {
	// Owners may run "/s " commands. Empty means everyone may.
	Owners []string
	// Approvals receives yes/no answers to pending shell confirmations.
	Approvals *approval.Manager
	Events    Publisher
	// Replies is used for the owner-only refusal.
	Replies Sender
	// OnCode is called with every new link code, e.g. to print it.
	OnCode func(code string)
}

type Orchestrator struct {
	sup   Supervisor
	exec  Executor
	lanes *session.Lanes

	owners    map[string]bool
	approvals *approval.Manager
	events    Publisher
	replies   Sender
	onCode    func(string)
}

func New(sup Supervisor, exec Executor, cfg Config) *Orchestrator {
	owners := make(map[string]bool, len(cfg.Owners))
	for _, o := range cfg.Owners {
		if o = strings.TrimSpace(o); o != "" {
			owners[o] = true
		}
	}

	return &Orchestrator{
		sup:       sup,
		exec:      exec,
		lanes:     session.NewLanes(),
		owners:    owners,
		approvals: cfg.Approvals,
		events:    cfg.Events,
		replies:   cfg.Replies,
		onCode:    cfg.OnCode,
	}
}

// ActiveLanes reports senders with queued or running work.
func (o *Orchestrator) ActiveLanes() int {
	return o.lanes.Active()
}

// Run consumes supervisor events until ctx is done or the event stream
// closes, then waits for queued pipelines to finish.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.lanes.Close()

	events := o.sup.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handle(ctx, ev)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev connection.Event) {
	switch ev.Type {
	case connection.EventCode:
		o.publish(notify.QRCode(ev.Code))
		o.publishState()
		if o.onCode != nil {
			o.onCode(ev.Code)
		}

	case connection.EventConnectivity, connection.EventLoggedOut:
		o.publishState()

	case connection.EventMessage:
		o.dispatch(ctx, ev.Message)
	}
}

func (o *Orchestrator) publishState() {
	snap := o.sup.State()
	o.publish(notify.ConnectionStatus(string(snap.State), snap.State == connection.Connected, snap.Reason))
}

func (o *Orchestrator) publish(e notify.Event) {
	if o.events != nil {
		o.events.Publish(e)
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, msg transport.Message) {
	if msg.FromMe {
		logger.Debug("own message ignored", "id", msg.ID)
		return
	}
	if msg.Sender == "" {
		logger.Warn("message without sender dropped", "id", msg.ID)
		return
	}

	summary := msg.Text
	if msg.Kind != transport.KindText {
		summary = "[" + string(msg.Kind) + "] " + msg.Caption
	}
	o.publish(notify.MessageExchanged(msg.Sender, "in", string(msg.Kind), strings.TrimSpace(summary)))

	switch msg.Kind {
	case transport.KindText:
		// answers must bypass the lane, which is blocked on the confirmation
		if o.resolveApproval(msg) {
			return
		}

		if command.IsCommand(msg.Text) {
			if !o.isOwner(msg.Sender) {
				logger.Warn("command from non-owner refused", "sender", msg.Sender)
				o.submit(ctx, msg, "refusal", func(ctx context.Context) error {
					return o.refuse(ctx, msg.Sender)
				})
				return
			}

			cmd, err := command.Interpret(msg.Text)
			o.submit(ctx, msg, "system", func(ctx context.Context) error {
				return o.exec.System(ctx, msg, cmd, err)
			})
			return
		}

		o.submit(ctx, msg, "conversational", func(ctx context.Context) error {
			return o.exec.Conversational(ctx, msg)
		})

	case transport.KindVoice:
		o.submit(ctx, msg, "voice", func(ctx context.Context) error {
			return o.exec.Voice(ctx, msg)
		})

	case transport.KindImage:
		o.submit(ctx, msg, "image", func(ctx context.Context) error {
			return o.exec.Image(ctx, msg)
		})

	default:
		logger.Debug("unsupported message kind", "kind", msg.Kind, "sender", msg.Sender)
	}
}

// submit queues a pipeline on the sender's lane. Its error has already been
// turned into a reply; here it is only logged and, for link failures,
// handed to the supervisor.
func (o *Orchestrator) submit(ctx context.Context, msg transport.Message, name string, run func(context.Context) error) {
	err := o.lanes.Submit(msg.Sender, func() {
		if err := run(ctx); err != nil {
			logger.Warn("pipeline failed", "pipeline", name, "sender", msg.Sender, "id", msg.ID, "error", err)
			o.sup.ReportFailure(err)
			return
		}
		logger.Debug("pipeline done", "pipeline", name, "sender", msg.Sender, "id", msg.ID)
	})
	if err != nil {
		logger.Warn("message dropped", "sender", msg.Sender, "error", err)
	}
}

func (o *Orchestrator) isOwner(sender string) bool {
	return len(o.owners) == 0 || o.owners[sender]
}

func (o *Orchestrator) refuse(ctx context.Context, sender string) error {
	if o.replies == nil {
		return nil
	}
	return o.replies.Send(ctx, sender, transport.Text(ownerOnly))
}

func (o *Orchestrator) resolveApproval(msg transport.Message) bool {
	if o.approvals == nil {
		return false
	}

	pending, ok := o.approvals.PendingFor(msg.Sender)
	if !ok {
		return false
	}

	approved, ok := parseAnswer(msg.Text)
	if !ok {
		return false
	}

	if err := o.approvals.Resolve(pending.ID, approved, msg.Sender); err != nil {
		logger.Warn("approval answer rejected", "id", pending.ID, "error", err)
		return false
	}

	logger.Info("approval answered", "id", pending.ID, "sender", msg.Sender, "approved", approved)
	return true
}

func parseAnswer(text string) (approved, ok bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "ok", "run", "approve":
		return true, true
	case "no", "n", "cancel", "stop", "deny":
		return false, true
	}
	return false, false
}
