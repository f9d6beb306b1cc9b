package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var ErrNoCaptureTool = errors.New("no screen capture tool found")

type ScreenCapturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// captureTool is a command template; "{out}" is replaced by the PNG path.
type captureTool struct {
	name string
	args []string
}

var captureTools = map[string][]captureTool{
	"darwin": {
		{name: "screencapture", args: []string{"-x", "{out}"}},
	},
	"linux": {
		{name: "gnome-screenshot", args: []string{"-f", "{out}"}},
		{name: "scrot", args: []string{"-o", "{out}"}},
		{name: "import", args: []string{"-window", "root", "{out}"}},
	},
}

// Screen captures the host display with whichever platform tool is installed.
type Screen struct {
	TmpDir   string
	tools    []captureTool
	lookPath func(string) (string, error)
}

func NewScreen(tmpDir string) *Screen {
	return &Screen{
		TmpDir:   tmpDir,
		tools:    captureTools[runtime.GOOS],
		lookPath: exec.LookPath,
	}
}

func (s *Screen) tool() (captureTool, error) {
	for _, t := range s.tools {
		if _, err := s.lookPath(t.name); err == nil {
			return t, nil
		}
	}
	return captureTool{}, ErrNoCaptureTool
}

func (s *Screen) Capture(ctx context.Context) ([]byte, error) {
	tool, err := s.tool()
	if err != nil {
		return nil, err
	}

	f, err := createTemp(s.TmpDir, ".png")
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	f.Close()
	defer removeTemp(f.Name())

	args := make([]string, len(tool.args))
	for i, a := range tool.args {
		args[i] = strings.ReplaceAll(a, "{out}", f.Name())
	}

	cmd := exec.CommandContext(ctx, tool.name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s failed: %w: %s", tool.name, err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s produced an empty image", tool.name)
	}

	return data, nil
}
