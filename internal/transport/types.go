package transport

import (
	"context"
	"time"
)

// Transport is the messaging network link. Implementations deliver events
// through the emit callback passed to Connect; every call to Connect
// replaces the previous connection.
type Transport interface {
	Name() string
	Connect(ctx context.Context, emit func(Event)) error
	Disconnect()
	Send(ctx context.Context, to string, content Content) error
	SetPresence(ctx context.Context, to string, presence Presence) error
	Download(ctx context.Context, ref MediaRef) ([]byte, error)
	// Reset clears stored link credentials so the next Connect issues a new code.
	Reset(ctx context.Context) error
}

type Config struct {
	Provider    string
	Token       string // telegram / discord bot token
	GatewayURL  string // linked-device gateway websocket endpoint
	GatewayKey  string
	HTTPTimeout time.Duration
}

type EventType string

const (
	EventCode        EventType = "code-ready"
	EventConnection  EventType = "connection-changed"
	EventMessage     EventType = "message-received"
	EventCredentials EventType = "credentials-updated"
)

// Disconnect reasons reported with EventConnection.
const (
	ReasonLoggedOut      = "logged_out"
	ReasonConnectionLost = "connection_lost"
	ReasonSendFailed     = "send_failed"
	ReasonShutdown       = "shutdown"
)

type Event struct {
	Type      EventType
	Code      string
	Connected bool
	Reason    string
	Message   Message
}

type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
	KindImage Kind = "image"
)

// MediaRef identifies downloadable media on the transport side.
type MediaRef struct {
	ID       string
	MimeType string
	Size     int64
}

type Message struct {
	ID        string
	Sender    string
	Kind      Kind
	Text      string
	Caption   string
	Media     *MediaRef
	FromMe    bool
	Timestamp time.Time
}

type Presence string

const (
	PresenceComposing Presence = "composing"
	PresenceRecording Presence = "recording"
	PresencePaused    Presence = "paused"
)

// Content is one outbound message: text, image with caption, or audio.
type Content struct {
	Text      string
	Image     []byte
	ImageMime string
	Caption   string
	Audio     []byte
	AudioMime string
	// PTT asks the client to render audio as a voice note.
	PTT bool
}

func Text(text string) Content {
	return Content{Text: text}
}

func Image(data []byte, mime, caption string) Content {
	return Content{Image: data, ImageMime: mime, Caption: caption}
}

func Audio(data []byte, mime string) Content {
	return Content{Audio: data, AudioMime: mime, PTT: true}
}

// Summary describes the content for logs and observers.
func (c Content) Summary() string {
	switch {
	case len(c.Image) > 0:
		if c.Caption != "" {
			return "[image] " + c.Caption
		}
		return "[image]"
	case len(c.Audio) > 0:
		return "[audio]"
	default:
		return c.Text
	}
}

func (c Content) Kind() Kind {
	switch {
	case len(c.Image) > 0:
		return KindImage
	case len(c.Audio) > 0:
		return KindVoice
	default:
		return KindText
	}
}
