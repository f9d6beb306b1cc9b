package pipeline

import (
	"errors"

	"github.com/bowerhall/courier/internal/command"
	"github.com/bowerhall/courier/internal/llm"
	"github.com/bowerhall/courier/internal/speech"
)

const (
	okMark   = "✅"
	failMark = "❌"

	workingOnIt = "⏳ Working on it, this one may take a moment..."

	defaultImagePrompt = "Describe this image and point out anything notable."

	shellNote = "Reply with exactly one shell command that accomplishes the task above. " +
		"Output only the command, with no explanation and no markdown."

	usage = "Commands start with /s followed by a space:\n" +
		"/s screenshot - capture the host screen\n" +
		"/s search youtube for <query> - list matching videos\n" +
		"/s play <query> video - play a video on the host\n" +
		"/s <task> - generate and run a shell command"
)

func aiApology(err error) string {
	switch {
	case llm.IsKind(err, llm.KindTimeout):
		return "Sorry, that took too long to think about. Please try again."
	case llm.IsKind(err, llm.KindQuota):
		return "Sorry, I've reached my usage limit for now. Please try again later."
	default:
		return "Sorry, I couldn't come up with a reply right now. Please try again."
	}
}

func transcriptionApology(err error) string {
	if errors.Is(err, speech.ErrBadAudio) {
		return "Sorry, I couldn't make out that voice message. Could you record it again?"
	}
	return "Sorry, voice messages can't be processed right now. Please send text instead."
}

const downloadApology = "Sorry, I couldn't download that attachment. Please send it again."

func usageFor(intent command.Intent) string {
	switch intent {
	case command.IntentSearchVideo:
		return failMark + " Tell me what to search for, e.g. /s search youtube for lofi beats"
	case command.IntentPlayVideo:
		return failMark + " Tell me what to play, e.g. /s play lofi beats video"
	default:
		return failMark + " I didn't understand that command.\n\n" + usage
	}
}

func ackFor(cmd command.Command) string {
	switch cmd.Intent {
	case command.IntentScreenshot:
		return "📸 Taking a screenshot..."
	case command.IntentSearchVideo:
		return "🔎 Searching YouTube for \"" + cmd.Argument + "\"..."
	case command.IntentPlayVideo:
		return "▶️ Looking up \"" + cmd.Argument + "\" to play..."
	default:
		return "🛠️ Working out a command for \"" + cmd.Argument + "\"..."
	}
}
