package shell

import (
	"errors"
	"fmt"
	"strings"
)

type Mode string

const (
	ModeOpen      Mode = "open"
	ModeAllowlist Mode = "allowlist"
	ModeConfirm   Mode = "confirm"
)

var ErrNotAllowed = errors.New("command not allowed")

// ParseMode accepts the SHELL_POLICY values; empty means open.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeOpen, nil
	case ModeOpen, ModeAllowlist, ModeConfirm:
		return m, nil
	default:
		return "", fmt.Errorf("unknown shell policy %q", s)
	}
}

// Policy decides whether a generated command may run.
type Policy struct {
	Mode    Mode
	allowed map[string]bool
}

func NewPolicy(mode Mode, allow []string) Policy {
	allowed := make(map[string]bool, len(allow))
	for _, a := range allow {
		if a = strings.TrimSpace(a); a != "" {
			allowed[a] = true
		}
	}
	return Policy{Mode: mode, allowed: allowed}
}

// dangerous is rejected in allowlist mode so an allowed first word can't
// chain into something else.
var dangerous = []string{";", "&", "|", "`", "$", "(", ")", "{", "}", "<", ">", "\\", "\n", "\r"}

// Check validates command against the policy. Confirmation is not decided
// here; see NeedsConfirmation.
func (p Policy) Check(command string) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}

	if p.Mode != ModeAllowlist {
		return nil
	}

	if !p.allowed[parts[0]] {
		return fmt.Errorf("%w: %s", ErrNotAllowed, parts[0])
	}

	for _, d := range dangerous {
		if strings.Contains(command, d) {
			return fmt.Errorf("%w: invalid characters in command", ErrNotAllowed)
		}
	}

	return nil
}

func (p Policy) NeedsConfirmation() bool {
	return p.Mode == ModeConfirm
}
