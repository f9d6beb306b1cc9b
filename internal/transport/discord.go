package transport

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bowerhall/courier/internal/logger"
	"github.com/bwmarrin/discordgo"
)

type discord struct {
	token  string
	client *httpDownloader

	mu      sync.Mutex
	session *discordgo.Session
}

func NewDiscord(token string, timeout time.Duration) (Transport, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token not set")
	}

	return &discord{token: token, client: newHTTPDownloader(timeout)}, nil
}

func (d *discord) Name() string {
	return "discord"
}

func (d *discord) Connect(ctx context.Context, emit func(Event)) error {
	d.Disconnect()

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return wrap("connect", err)
	}

	// reconnection is owned by the connection supervisor
	session.ShouldReconnectOnError = false
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	session.AddHandler(func(s *discordgo.Session, _ *discordgo.Connect) {
		emit(Event{Type: EventConnection, Connected: true})
	})

	session.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.mu.Lock()
		current := d.session == s
		d.mu.Unlock()
		if current {
			emit(Event{Type: EventConnection, Connected: false, Reason: ReasonConnectionLost})
		}
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if msg, ok := d.toMessage(s, m); ok {
			emit(Event{Type: EventMessage, Message: msg})
		}
	})

	d.mu.Lock()
	d.session = session
	d.mu.Unlock()

	if err := session.Open(); err != nil {
		d.mu.Lock()
		d.session = nil
		d.mu.Unlock()
		return wrap("connect", fmt.Errorf("%w: %v", ErrConnectionLost, err))
	}

	logger.Info("discord connected")
	return nil
}

func (d *discord) toMessage(s *discordgo.Session, m *discordgo.MessageCreate) (Message, bool) {
	if m.Author == nil {
		return Message{}, false
	}

	msg := Message{
		ID:        m.ID,
		Sender:    m.ChannelID,
		Timestamp: m.Timestamp,
		FromMe:    s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID,
	}

	for _, att := range m.Attachments {
		switch {
		case strings.HasPrefix(att.ContentType, "audio/"):
			msg.Kind = KindVoice
		case strings.HasPrefix(att.ContentType, "image/"):
			msg.Kind = KindImage
			msg.Caption = m.Content
		default:
			continue
		}
		msg.Media = &MediaRef{ID: att.URL, MimeType: att.ContentType, Size: int64(att.Size)}
		break
	}

	if msg.Media == nil {
		if m.Content == "" {
			return Message{}, false
		}
		msg.Kind = KindText
		msg.Text = m.Content
	}

	logger.Debug("discord message received", "from", m.Author.Username, "kind", msg.Kind, "text", truncate(m.Content, 50))
	return msg, true
}

func (d *discord) Disconnect() {
	d.mu.Lock()
	session := d.session
	d.session = nil
	d.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			logger.Debug("discord close failed", "error", err)
		}
	}
}

func (d *discord) current() (*discordgo.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, ErrNotConnected
	}
	return d.session, nil
}

func (d *discord) Send(ctx context.Context, to string, content Content) error {
	session, err := d.current()
	if err != nil {
		return wrap("send", err)
	}

	send := &discordgo.MessageSend{Content: content.Text}

	switch {
	case len(content.Image) > 0:
		send.Content = content.Caption
		send.Files = []*discordgo.File{{
			Name:        "image.png",
			ContentType: content.ImageMime,
			Reader:      bytes.NewReader(content.Image),
		}}
	case len(content.Audio) > 0:
		send.Files = []*discordgo.File{{
			Name:        "reply.ogg",
			ContentType: content.AudioMime,
			Reader:      bytes.NewReader(content.Audio),
		}}
	}

	if _, err := session.ChannelMessageSendComplex(to, send); err != nil {
		logger.Error("discord send failed", "error", err, "channelID", to)
		return wrap("send", err)
	}

	logger.Debug("discord message sent", "channelID", to, "summary", truncate(content.Summary(), 50))
	return nil
}

func (d *discord) SetPresence(ctx context.Context, to string, presence Presence) error {
	if presence == PresencePaused {
		// typing indicators lapse after a few seconds
		return nil
	}

	session, err := d.current()
	if err != nil {
		return wrap("presence", err)
	}

	return wrap("presence", session.ChannelTyping(to))
}

func (d *discord) Download(ctx context.Context, ref MediaRef) ([]byte, error) {
	data, err := d.client.get(ctx, ref.ID)
	return data, wrap("download", err)
}

func (d *discord) Reset(ctx context.Context) error {
	return wrap("reset", ErrUnsupported)
}
