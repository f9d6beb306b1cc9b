package speech

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBadAudio    = errors.New("bad audio")
	ErrUnavailable = errors.New("speech service unavailable")
)

// TranscriptionError separates audio we could not understand from a
// backend we could not reach. Kind is ErrBadAudio or ErrUnavailable.
type TranscriptionError struct {
	Kind error
	Err  error
}

func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcription failed: %v", e.Kind)
	}
	return fmt.Sprintf("transcription failed: %v: %v", e.Kind, e.Err)
}

func (e *TranscriptionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func badAudio(err error) error {
	return &TranscriptionError{Kind: ErrBadAudio, Err: err}
}

func unavailable(err error) error {
	return &TranscriptionError{Kind: ErrUnavailable, Err: err}
}

// Transcriber turns mono 16 kHz WAV audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Synthesizer turns text into a voice note. It returns the audio and its
// MIME type.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}
