// Package command parses the privileged "/s " prefix into a typed intent.
//
// Rules are evaluated top to bottom and the first satisfied rule wins.
// Keyword detection is substring based and case-sensitive.
package command

import (
	"errors"
	"strings"
)

// Marker routes a message to the interpreter instead of the chat pipeline.
const Marker = "/s "

type Intent string

const (
	IntentNone          Intent = "none"
	IntentScreenshot    Intent = "screenshot"
	IntentSearchVideo   Intent = "search_video"
	IntentPlayVideo     Intent = "play_video"
	IntentShellGenerate Intent = "shell_generate"
	IntentUnknown       Intent = "unknown"
)

// ErrMissingArgument is returned alongside the matched intent when a
// search or play command has nothing to search for.
var ErrMissingArgument = errors.New("missing_argument")

type Command struct {
	Intent   Intent
	Argument string
}

type rule struct {
	intent        Intent
	match         func(body string) bool
	argument      func(body string) string
	needsArgument bool
}

var (
	screenshotKeywords = []string{"screenshot", "screen shot", "screencap"}

	// searched in order; the argument is whatever follows the first hit
	searchTriggers = []string{"search youtube for", "search youtube", "youtube"}

	mediaKeywords = []string{"video", "song", "music", "clip"}
)

var rules = []rule{
	{
		intent:   IntentScreenshot,
		match:    containsAny(screenshotKeywords),
		argument: func(string) string { return "" },
	},
	{
		intent:        IntentSearchVideo,
		match:         containsAny(searchTriggers),
		argument:      searchArgument,
		needsArgument: true,
	},
	{
		intent:        IntentPlayVideo,
		match:         isPlayRequest,
		argument:      playArgument,
		needsArgument: true,
	},
	{
		intent:   IntentShellGenerate,
		match:    func(string) bool { return true },
		argument: func(body string) string { return body },
	},
}

// IsCommand reports whether text carries the privileged marker.
func IsCommand(text string) bool {
	return strings.HasPrefix(text, Marker)
}

// Interpret maps text onto a Command. Text without the marker yields
// IntentNone. A search or play request with an empty argument returns the
// intent together with ErrMissingArgument.
func Interpret(text string) (Command, error) {
	if !IsCommand(text) {
		return Command{Intent: IntentNone}, nil
	}

	body := strings.TrimSpace(strings.TrimPrefix(text, Marker))
	if body == "" {
		return Command{Intent: IntentUnknown}, nil
	}

	for _, r := range rules {
		if !r.match(body) {
			continue
		}

		cmd := Command{Intent: r.intent, Argument: r.argument(body)}
		if r.needsArgument && cmd.Argument == "" {
			return cmd, ErrMissingArgument
		}
		return cmd, nil
	}

	return Command{Intent: IntentUnknown}, nil
}

func containsAny(keywords []string) func(string) bool {
	return func(body string) bool {
		for _, kw := range keywords {
			if strings.Contains(body, kw) {
				return true
			}
		}
		return false
	}
}

func searchArgument(body string) string {
	for _, trigger := range searchTriggers {
		if idx := strings.Index(body, trigger); idx >= 0 {
			return strings.TrimSpace(body[idx+len(trigger):])
		}
	}
	return ""
}

func isPlayRequest(body string) bool {
	fields := strings.Fields(body)
	if len(fields) == 0 || fields[0] != "play" {
		return false
	}
	return containsAny(mediaKeywords)(body)
}

func playArgument(body string) string {
	return strings.TrimSpace(strings.TrimPrefix(body, "play"))
}
