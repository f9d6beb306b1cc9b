package pipeline

import (
	"context"
	"strings"

	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/transport"
)

// Image answers a photo. The caption, if any, is the question; otherwise
// the model is asked to describe the picture.
func (e *Executor) Image(ctx context.Context, msg transport.Message) error {
	sender := msg.Sender

	ind := e.Presence.Begin(ctx, sender, transport.PresenceComposing)
	defer ind.End()

	data, err := e.download(ctx, msg.Media)
	if err != nil {
		return e.fail(ctx, sender, downloadApology, err)
	}

	prompt := strings.TrimSpace(msg.Caption)
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	mime := "image/jpeg"
	if msg.Media != nil && msg.Media.MimeType != "" {
		mime = msg.Media.MimeType
	}

	reply, err := e.complete(ctx, llm.Request{
		Prompt: prompt,
		Image:  &llm.ImageContent{Data: data, MimeType: mime},
	})
	if err != nil {
		return e.fail(ctx, sender, aiApology(err), err)
	}

	return e.send(ctx, sender, transport.Text(reply))
}
