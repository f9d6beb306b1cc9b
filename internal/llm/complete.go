package llm

import (
	"context"
	"strings"

	"github.com/bowerhall/courier/internal/logger"
)

const systemPrompt = `You are a friendly assistant replying inside a personal chat app.
Answer in plain text suitable for a phone screen. Keep replies short unless asked for detail.
Do not use markdown headings or tables.`

const noVisionNote = "[The user attached an image, but this model cannot view images. Say so briefly and answer from the text alone.]"

// Request is one completion: the new prompt plus optional prior turns, an
// auxiliary note appended to the prompt, and an optional image.
type Request struct {
	Prompt  string
	History []Message
	Note    string
	Image   *ImageContent
}

// Complete runs req against model. Failures are always returned as *Error.
// An image sent to a backend without vision is dropped and replaced with a
// note so the caller still gets a textual answer.
func Complete(ctx context.Context, model LLM, req Request) (string, error) {
	messages := make([]Message, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}

	content := req.Prompt
	if req.Note != "" {
		content = strings.TrimSpace(content + "\n\n" + req.Note)
	}

	user := Message{Role: RoleUser, Content: content}
	if req.Image != nil {
		if model.Capabilities().Vision {
			user.Images = []ImageContent{*req.Image}
		} else {
			logger.Debug("model lacks vision, dropping image")
			user.Content = strings.TrimSpace(user.Content + "\n\n" + noVisionNote)
		}
	}
	messages = append(messages, user)

	reply, err := model.Chat(ctx, systemPrompt, messages)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", classify(err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &Error{Kind: KindMalformed, Err: ErrEmptyResponse}
	}

	return reply, nil
}
