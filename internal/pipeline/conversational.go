package pipeline

import (
	"context"
	"unicode/utf8"

	"github.com/bowerhall/courier/internal/conversation"
	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/transport"
)

// Conversational answers a free text message with the sender's recent
// history as context.
func (e *Executor) Conversational(ctx context.Context, msg transport.Message) error {
	sender := msg.Sender

	ind := e.Presence.Begin(ctx, sender, transport.PresenceComposing)
	defer ind.End()

	// history is captured before the new turn so the prompt isn't repeated
	history := e.History.Read(sender)
	e.History.Append(sender, conversation.Turn{Role: conversation.RoleUser, Text: msg.Text})

	if utf8.RuneCountInString(msg.Text) > e.LongText {
		if err := e.send(ctx, sender, transport.Text(workingOnIt)); err != nil {
			return err
		}
	}

	if err := e.Presence.Think(ctx); err != nil {
		// the apology still goes out after cancellation, bounded by the send timeout
		return e.fail(context.WithoutCancel(ctx), sender, aiApology(err), err)
	}

	reply, err := e.complete(ctx, llm.Request{
		Prompt:  msg.Text,
		History: toMessages(history),
	})
	if err != nil {
		return e.fail(ctx, sender, aiApology(err), err)
	}

	e.History.Append(sender, conversation.Turn{Role: conversation.RoleAssistant, Text: reply})

	logger.Debug("conversational reply", "sender", sender, "history", len(history))
	return e.send(ctx, sender, transport.Text(reply))
}

// toMessages maps history to model messages. Leading assistant turns are
// dropped: eviction after a failed exchange can leave one at the front, and
// the model backends expect the conversation to open with the user.
func toMessages(turns []conversation.Turn) []llm.Message {
	for len(turns) > 0 && turns[0].Role == conversation.RoleAssistant {
		turns = turns[1:]
	}

	messages := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Text})
	}
	return messages
}
