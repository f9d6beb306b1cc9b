package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/media"
	"github.com/bowerhall/courier/internal/speech"
	"github.com/bowerhall/courier/internal/transport"
)

// Voice transcribes a voice note, answers it without conversation history
// and replies with synthesized audio. If synthesis fails the answer is
// sent as text instead.
func (e *Executor) Voice(ctx context.Context, msg transport.Message) error {
	sender := msg.Sender

	ind := e.Presence.Begin(ctx, sender, transport.PresenceRecording)
	defer ind.End()

	if e.Transcriber == nil || e.Transcoder == nil {
		err := &speech.TranscriptionError{Kind: speech.ErrUnavailable, Err: errors.New("speech not configured")}
		return e.fail(ctx, sender, transcriptionApology(err), err)
	}

	data, err := e.download(ctx, msg.Media)
	if err != nil {
		return e.fail(ctx, sender, downloadApology, err)
	}

	text, err := e.transcribe(ctx, data)
	if err != nil {
		return e.fail(ctx, sender, transcriptionApology(err), err)
	}
	logger.Debug("voice transcribed", "sender", sender, "chars", len(text))

	reply, err := e.complete(ctx, llm.Request{Prompt: text})
	if err != nil {
		return e.fail(ctx, sender, aiApology(err), err)
	}

	if e.Synthesizer != nil {
		audio, mime, err := e.synthesize(ctx, reply)
		if err == nil {
			return e.send(ctx, sender, transport.Audio(audio, mime))
		}
		logger.Warn("speech synthesis failed, replying with text", "sender", sender, "error", err)
	}

	return e.send(ctx, sender, transport.Text(reply))
}

// transcribe converts the downloaded note to WAV and then to text. Every
// failure comes back as a *speech.TranscriptionError.
func (e *Executor) transcribe(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &speech.TranscriptionError{Kind: speech.ErrBadAudio, Err: media.ErrEmptyInput}
	}

	tctx, cancel := context.WithTimeout(ctx, e.Timeouts.Transcode)
	wav, err := e.Transcoder.ToWAV(tctx, data)
	cancel()
	if err != nil {
		kind := speech.ErrUnavailable
		if errors.Is(err, media.ErrDecode) || errors.Is(err, media.ErrEmptyInput) {
			kind = speech.ErrBadAudio
		}
		return "", &speech.TranscriptionError{Kind: kind, Err: err}
	}

	sctx, cancel := context.WithTimeout(ctx, e.Timeouts.Transcribe)
	defer cancel()

	text, err := e.Transcriber.Transcribe(sctx, wav)
	if err != nil {
		var terr *speech.TranscriptionError
		if errors.As(err, &terr) {
			return "", err
		}
		return "", &speech.TranscriptionError{Kind: speech.ErrUnavailable, Err: err}
	}
	return text, nil
}

func (e *Executor) synthesize(ctx context.Context, text string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeouts.Synthesize)
	defer cancel()

	audio, mime, err := e.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		return nil, "", err
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("synthesizer returned no audio")
	}
	return audio, mime, nil
}
