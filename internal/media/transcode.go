package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/bowerhall/courier/internal/logger"
)

var (
	ErrEmptyInput = errors.New("empty input")
	ErrDecode     = errors.New("audio could not be decoded")
	// ErrUnavailable means the transcoder itself could not run.
	ErrUnavailable = errors.New("ffmpeg not available")
)

// Transcoder normalizes arbitrary voice-note audio for speech-to-text.
type Transcoder interface {
	ToWAV(ctx context.Context, data []byte) ([]byte, error)
}

// FFmpeg shells out to ffmpeg to produce mono 16 kHz WAV.
type FFmpeg struct {
	Path   string
	TmpDir string
}

func NewFFmpeg(path, tmpDir string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, TmpDir: tmpDir}
}

func (f *FFmpeg) ToWAV(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	in, err := createTemp(f.TmpDir, ".audio")
	if err != nil {
		return nil, fmt.Errorf("create input file: %w", err)
	}
	defer removeTemp(in.Name())

	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("write input file: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close input file: %w", err)
	}

	out, err := createTemp(f.TmpDir, ".wav")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	out.Close()
	defer removeTemp(out.Name())

	cmd := exec.CommandContext(ctx, f.Path,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y", "-i", in.Name(),
		"-ac", "1", "-ar", "16000", "-f", "wav",
		out.Name(),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var execErr *exec.Error
		if cmd.ProcessState == nil || errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		logger.Debug("ffmpeg failed", "stderr", strings.TrimSpace(stderr.String()))
		return nil, fmt.Errorf("%w: %s", ErrDecode, strings.TrimSpace(stderr.String()))
	}

	wav, err := os.ReadFile(out.Name())
	if err != nil {
		return nil, fmt.Errorf("read output file: %w", err)
	}
	if len(wav) == 0 {
		return nil, ErrDecode
	}

	return wav, nil
}
