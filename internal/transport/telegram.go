package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bowerhall/courier/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegram struct {
	token  string
	client *httpDownloader

	mu  sync.Mutex
	api *tgbotapi.BotAPI
}

func NewTelegram(token string, timeout time.Duration) (Transport, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token not set")
	}

	return &telegram{token: token, client: newHTTPDownloader(timeout)}, nil
}

func (t *telegram) Name() string {
	return "telegram"
}

// Connect validates the token and starts long polling. Telegram bots have no
// device link, so a successful start is reported as connected right away.
func (t *telegram) Connect(ctx context.Context, emit func(Event)) error {
	t.Disconnect()

	api, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return wrap("connect", fmt.Errorf("%w: %v", ErrConnectionLost, err))
	}

	t.mu.Lock()
	t.api = api
	t.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	go t.poll(ctx, api, updates, emit)

	logger.Info("telegram connected", "bot", api.Self.UserName)
	emit(Event{Type: EventConnection, Connected: true})
	return nil
}

func (t *telegram) poll(ctx context.Context, api *tgbotapi.BotAPI, updates tgbotapi.UpdatesChannel, emit func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				// closed by Disconnect unless the bot was swapped underneath us
				t.mu.Lock()
				current := t.api == api
				t.mu.Unlock()
				if current {
					emit(Event{Type: EventConnection, Connected: false, Reason: ReasonConnectionLost})
				}
				return
			}

			if update.Message == nil {
				continue
			}

			if msg, ok := t.toMessage(api, update.Message); ok {
				emit(Event{Type: EventMessage, Message: msg})
			}
		}
	}
}

func (t *telegram) toMessage(api *tgbotapi.BotAPI, m *tgbotapi.Message) (Message, bool) {
	msg := Message{
		ID:        strconv.Itoa(m.MessageID),
		Sender:    strconv.FormatInt(m.Chat.ID, 10),
		Timestamp: time.Unix(int64(m.Date), 0),
		FromMe:    m.From != nil && m.From.ID == api.Self.ID,
	}

	switch {
	case m.Voice != nil:
		msg.Kind = KindVoice
		msg.Media = &MediaRef{ID: m.Voice.FileID, MimeType: m.Voice.MimeType, Size: int64(m.Voice.FileSize)}
	case len(m.Photo) > 0:
		// largest size is last
		photo := m.Photo[len(m.Photo)-1]
		msg.Kind = KindImage
		msg.Caption = m.Caption
		msg.Media = &MediaRef{ID: photo.FileID, MimeType: "image/jpeg", Size: int64(photo.FileSize)}
	case m.Text != "":
		msg.Kind = KindText
		msg.Text = m.Text
	default:
		return Message{}, false
	}

	logger.Debug("telegram message received", "sender", msg.Sender, "kind", msg.Kind, "text", truncate(msg.Text, 50))
	return msg, true
}

func (t *telegram) Disconnect() {
	t.mu.Lock()
	api := t.api
	t.api = nil
	t.mu.Unlock()

	if api != nil {
		api.StopReceivingUpdates()
	}
}

func (t *telegram) bot() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.api == nil {
		return nil, ErrNotConnected
	}
	return t.api, nil
}

func (t *telegram) Send(ctx context.Context, to string, content Content) error {
	api, err := t.bot()
	if err != nil {
		return wrap("send", err)
	}

	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return wrap("send", fmt.Errorf("invalid chat id %q: %w", to, err))
	}

	var msg tgbotapi.Chattable
	switch {
	case len(content.Image) > 0:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image.png", Bytes: content.Image})
		photo.Caption = content.Caption
		msg = photo
	case len(content.Audio) > 0:
		msg = tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "reply.ogg", Bytes: content.Audio})
	default:
		msg = tgbotapi.NewMessage(chatID, content.Text)
	}

	if _, err := api.Send(msg); err != nil {
		logger.Error("telegram send failed", "error", err, "chatID", chatID)
		return wrap("send", err)
	}

	logger.Debug("telegram message sent", "chatID", chatID, "summary", truncate(content.Summary(), 50))
	return nil
}

func (t *telegram) SetPresence(ctx context.Context, to string, presence Presence) error {
	api, err := t.bot()
	if err != nil {
		return wrap("presence", err)
	}

	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return wrap("presence", fmt.Errorf("invalid chat id %q: %w", to, err))
	}

	var action string
	switch presence {
	case PresenceComposing:
		action = tgbotapi.ChatTyping
	case PresenceRecording:
		action = tgbotapi.ChatRecordVoice
	default:
		// telegram chat actions expire on their own
		return nil
	}

	_, err = api.Request(tgbotapi.NewChatAction(chatID, action))
	return wrap("presence", err)
}

func (t *telegram) Download(ctx context.Context, ref MediaRef) ([]byte, error) {
	api, err := t.bot()
	if err != nil {
		return nil, wrap("download", err)
	}

	file, err := api.GetFile(tgbotapi.FileConfig{FileID: ref.ID})
	if err != nil {
		return nil, wrap("download", err)
	}

	data, err := t.client.get(ctx, file.Link(t.token))
	return data, wrap("download", err)
}

func (t *telegram) Reset(ctx context.Context) error {
	return wrap("reset", ErrUnsupported)
}
