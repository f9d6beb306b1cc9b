package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bowerhall/courier/internal/approval"
	"github.com/bowerhall/courier/internal/command"
	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/shell"
	"github.com/bowerhall/courier/internal/transport"
	"github.com/bowerhall/courier/internal/video"
)

var errNotConfigured = errors.New("not configured")

// handler runs one command intent for sender and builds the final reply.
type handler func(ctx context.Context, sender, arg string) (transport.Content, error)

func (e *Executor) register(intent command.Intent, h handler) {
	e.handlers[intent] = h
}

// System executes an interpreted "/s " command. parseErr is the error
// returned by command.Interpret, if any.
//
// The sender gets an acknowledgement first and then one final message
// prefixed with ✅ or ❌.
func (e *Executor) System(ctx context.Context, msg transport.Message, cmd command.Command, parseErr error) error {
	sender := msg.Sender

	ind := e.Presence.Begin(ctx, sender, transport.PresenceComposing)
	defer ind.End()

	h, ok := e.handlers[cmd.Intent]
	if errors.Is(parseErr, command.ErrMissingArgument) || !ok {
		return e.send(ctx, sender, transport.Text(usageFor(cmd.Intent)))
	}

	if err := e.send(ctx, sender, transport.Text(ackFor(cmd))); err != nil {
		return err
	}

	content, err := h(ctx, sender, cmd.Argument)
	if err != nil {
		logger.Warn("system command failed", "sender", sender, "intent", cmd.Intent, "error", err)
		return e.fail(ctx, sender, failMark+" "+describeFailure(cmd.Intent, err), err)
	}

	return e.send(ctx, sender, content)
}

func describeFailure(intent command.Intent, err error) string {
	if errors.Is(err, errNotConfigured) {
		return fmt.Sprintf("%s is not available on this host.", strings.ReplaceAll(string(intent), "_", " "))
	}
	var aiErr *llm.Error
	if errors.As(err, &aiErr) {
		return aiApology(err)
	}

	switch intent {
	case command.IntentScreenshot:
		return "Couldn't take a screenshot: " + err.Error()
	case command.IntentSearchVideo:
		return "Video search failed: " + err.Error()
	case command.IntentPlayVideo:
		return "Couldn't play that: " + err.Error()
	default:
		return err.Error()
	}
}

func (e *Executor) capture(ctx context.Context) ([]byte, error) {
	if e.Screen == nil {
		return nil, errNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeouts.Capture)
	defer cancel()
	return e.Screen.Capture(ctx)
}

// archive keeps a copy of captured media when an archive is configured.
// It never fails the command.
func (e *Executor) archive(ctx context.Context, kind, sender string, data []byte, mime string) {
	if e.Archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeouts.Send)
	defer cancel()

	name, err := e.Archive.Archive(ctx, kind, sender, data, mime)
	if err != nil {
		logger.Warn("archive failed", "kind", kind, "error", err)
		return
	}
	logger.Debug("archived", "kind", kind, "name", name)
}

func (e *Executor) screenshot(ctx context.Context, sender, _ string) (transport.Content, error) {
	img, err := e.capture(ctx)
	if err != nil {
		return transport.Content{}, err
	}

	e.archive(ctx, "screenshots", sender, img, "image/png")
	return transport.Image(img, "image/png", okMark+" Screenshot taken at "+time.Now().Format("15:04:05")), nil
}

func (e *Executor) search(ctx context.Context, query string, max int) ([]video.Result, error) {
	if e.Videos == nil {
		return nil, errNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeouts.Search)
	defer cancel()
	return e.Videos.Search(ctx, query, max)
}

func (e *Executor) searchVideo(ctx context.Context, _, query string) (transport.Content, error) {
	results, err := e.search(ctx, query, e.SearchResults)
	if err != nil {
		return transport.Content{}, err
	}

	if len(results) == 0 {
		return transport.Text(fmt.Sprintf("%s No videos found for \"%s\".", okMark, query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Top results for \"%s\":\n", okMark, query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n   %s\n", i+1, r.Title, r.Channel, r.URL)
	}
	return transport.Text(strings.TrimRight(b.String(), "\n")), nil
}

// playVideo opens the best match on the host, waits for playback to settle
// and replies with a screenshot of it. A failed capture still reports the
// video as playing.
func (e *Executor) playVideo(ctx context.Context, sender, query string) (transport.Content, error) {
	if e.Player == nil {
		return transport.Content{}, errNotConfigured
	}

	results, err := e.search(ctx, query, 1)
	if err != nil {
		return transport.Content{}, err
	}
	if len(results) == 0 {
		return transport.Text(fmt.Sprintf("%s No videos found for \"%s\", nothing to play.", failMark, query)), nil
	}

	top := results[0]
	if err := e.Player.Open(ctx, top.URL); err != nil {
		return transport.Content{}, err
	}

	caption := fmt.Sprintf("%s Now playing: %s\n%s\n%s", okMark, top.Title, top.Channel, top.URL)

	if err := e.wait(ctx, e.SettleDelay); err != nil {
		return transport.Content{}, err
	}

	img, err := e.capture(ctx)
	if err != nil {
		logger.Warn("playback screenshot failed", "error", err)
		return transport.Text(caption), nil
	}

	e.archive(ctx, "playback", sender, img, "image/png")
	return transport.Image(img, "image/png", caption), nil
}

// generateShell asks the model for a command, checks it against the
// policy, optionally waits for the sender to confirm and runs it.
func (e *Executor) generateShell(ctx context.Context, sender, task string) (transport.Content, error) {
	if e.Shell == nil {
		return transport.Content{}, errNotConfigured
	}

	raw, err := e.complete(ctx, llm.Request{Prompt: task, Note: shellNote})
	if err != nil {
		return transport.Content{}, err
	}

	line := shell.StripFences(raw)
	if line == "" {
		return transport.Content{}, fmt.Errorf("the model did not produce a command")
	}

	if err := e.Policy.Check(line); err != nil {
		return transport.Content{}, fmt.Errorf("refusing to run `%s`: %w", line, err)
	}

	if e.Policy.NeedsConfirmation() && e.Approvals != nil {
		ok, err := e.confirm(ctx, sender, line, task)
		if err != nil {
			return transport.Content{}, err
		}
		if !ok {
			return transport.Text(fmt.Sprintf("%s Cancelled `%s`.", failMark, line)), nil
		}
	}

	out, err := e.Shell.Run(ctx, line)
	if err != nil {
		var execErr *shell.ExecError
		if errors.As(err, &execErr) {
			return transport.Text(fmt.Sprintf("%s $ %s\n\n%s", failMark, line, execErr.Error())), nil
		}
		return transport.Content{}, err
	}

	if out == "" {
		out = "(no output)"
	}
	return transport.Text(fmt.Sprintf("%s $ %s\n\n%s", okMark, line, out)), nil
}

// confirm blocks this sender's lane until they answer yes or no. Replies
// are routed to the approval manager before they reach the lane.
func (e *Executor) confirm(ctx context.Context, sender, line, task string) (bool, error) {
	id := e.Approvals.Start(sender, line, task)

	prompt := fmt.Sprintf("⚠️ About to run:\n\n$ %s\n\nReply yes to run it or no to cancel (expires in %s).",
		line, e.Approvals.Timeout().Round(time.Second))
	if err := e.send(ctx, sender, transport.Text(prompt)); err != nil {
		e.Approvals.Cancel(id)
		return false, err
	}

	ok, err := e.Approvals.Wait(ctx, id)
	if errors.Is(err, approval.ErrApprovalTimedOut) {
		return false, nil
	}
	return ok, err
}
