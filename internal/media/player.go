package media

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/bowerhall/courier/internal/logger"
)

// Player opens a URL on the host, typically in the default browser.
type Player interface {
	Open(ctx context.Context, link string) error
}

type Opener struct {
	command func(ctx context.Context, link string) *exec.Cmd
}

func NewOpener() *Opener {
	return &Opener{command: openCommand}
}

func openCommand(ctx context.Context, link string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "open", link)
	case "windows":
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", link)
	default:
		return exec.CommandContext(ctx, "xdg-open", link)
	}
}

// Open starts the opener and does not wait for the player to exit.
func (o *Opener) Open(ctx context.Context, link string) error {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL %q: must be http or https", link)
	}

	// detached from ctx so the browser outlives the request
	cmd := o.command(context.WithoutCancel(ctx), u.String())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", u.Host, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debug("opener exited", "error", err)
		}
	}()

	return nil
}
