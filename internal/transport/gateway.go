package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bowerhall/courier/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	gatewayWriteWait  = 10 * time.Second
	gatewayPongWait   = 60 * time.Second
	gatewayPingPeriod = 25 * time.Second
)

// gateway talks to a linked-device gateway sidecar over a websocket. The
// sidecar owns the device session and persists credentials; this side only
// consumes its events and issues commands.
type gateway struct {
	url    string
	key    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *gatewayConn
}

type gatewayConn struct {
	ws      *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan frame
}

// frame is the single JSON envelope used in both directions.
type frame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// gateway -> courier
	Code      string       `json:"code,omitempty"`
	Connected bool         `json:"connected,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Message   *wireMessage `json:"message,omitempty"`
	OK        bool         `json:"ok,omitempty"`
	Error     string       `json:"error,omitempty"`
	Data      []byte       `json:"data,omitempty"`

	// courier -> gateway
	To        string `json:"to,omitempty"`
	Text      string `json:"text,omitempty"`
	Image     []byte `json:"image,omitempty"`
	ImageMime string `json:"image_mime,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Audio     []byte `json:"audio,omitempty"`
	AudioMime string `json:"audio_mime,omitempty"`
	PTT       bool   `json:"ptt,omitempty"`
	State     string `json:"state,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

type wireMessage struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Kind      string     `json:"kind"`
	Text      string     `json:"text,omitempty"`
	Caption   string     `json:"caption,omitempty"`
	Media     *wireMedia `json:"media,omitempty"`
	FromMe    bool       `json:"from_me,omitempty"`
	Timestamp int64      `json:"timestamp,omitempty"`
}

type wireMedia struct {
	Ref  string `json:"ref"`
	Mime string `json:"mime"`
	Size int64  `json:"size,omitempty"`
}

func NewGateway(url, key string) (Transport, error) {
	if url == "" {
		return nil, fmt.Errorf("gateway url not set")
	}

	return &gateway{
		url: url,
		key: key,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
	}, nil
}

func (g *gateway) Name() string {
	return "gateway"
}

func (g *gateway) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if g.key != "" {
		header.Set("Authorization", "Bearer "+g.key)
	}

	ws, _, err := g.dialer.DialContext(ctx, g.url, header)
	if err != nil {
		return nil, wrap("dial", fmt.Errorf("%w: %v", ErrConnectionLost, err))
	}
	return ws, nil
}

func (g *gateway) Connect(ctx context.Context, emit func(Event)) error {
	g.Disconnect()

	ws, err := g.dial(ctx)
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	c := &gatewayConn{
		ws:      ws,
		cancel:  cancel,
		done:    make(chan struct{}),
		pending: make(map[string]chan frame),
	}

	g.mu.Lock()
	g.conn = c
	g.mu.Unlock()

	go c.readLoop(connCtx, emit)
	go c.pingLoop(connCtx)

	if err := c.write(frame{Type: "connect"}); err != nil {
		g.Disconnect()
		return wrap("connect", err)
	}

	logger.Info("gateway connected", "url", g.url)
	return nil
}

func (g *gateway) Disconnect() {
	g.mu.Lock()
	c := g.conn
	g.conn = nil
	g.mu.Unlock()

	if c == nil {
		return
	}

	c.cancel()
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.ws.Close()
	<-c.done
}

func (g *gateway) current() (*gatewayConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil, ErrNotConnected
	}
	return g.conn, nil
}

func (g *gateway) Send(ctx context.Context, to string, content Content) error {
	c, err := g.current()
	if err != nil {
		return wrap("send", err)
	}

	_, err = c.request(ctx, frame{
		Type:      "send",
		To:        to,
		Text:      content.Text,
		Image:     content.Image,
		ImageMime: content.ImageMime,
		Caption:   content.Caption,
		Audio:     content.Audio,
		AudioMime: content.AudioMime,
		PTT:       content.PTT,
	})
	if err != nil {
		logger.Error("gateway send failed", "error", err, "to", to)
		return wrap("send", err)
	}

	logger.Debug("gateway message sent", "to", to, "summary", truncate(content.Summary(), 50))
	return nil
}

func (g *gateway) SetPresence(ctx context.Context, to string, presence Presence) error {
	c, err := g.current()
	if err != nil {
		return wrap("presence", err)
	}

	return wrap("presence", c.write(frame{Type: "presence", To: to, State: string(presence)}))
}

func (g *gateway) Download(ctx context.Context, ref MediaRef) ([]byte, error) {
	c, err := g.current()
	if err != nil {
		return nil, wrap("download", err)
	}

	resp, err := c.request(ctx, frame{Type: "download", Ref: ref.ID})
	if err != nil {
		return nil, wrap("download", err)
	}

	if len(resp.Data) > maxMediaSize {
		return nil, wrap("download", fmt.Errorf("media too large: %d bytes", len(resp.Data)))
	}

	return resp.Data, nil
}

// Reset asks the gateway to drop its stored credentials. Without a live
// connection a short-lived one is dialed for the request.
func (g *gateway) Reset(ctx context.Context) error {
	if c, err := g.current(); err == nil {
		_, err := c.request(ctx, frame{Type: "reset"})
		return wrap("reset", err)
	}

	ws, err := g.dial(ctx)
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	c := &gatewayConn{
		ws:      ws,
		cancel:  cancel,
		done:    make(chan struct{}),
		pending: make(map[string]chan frame),
	}
	go c.readLoop(connCtx, func(Event) {})

	_, err = c.request(ctx, frame{Type: "reset"})

	cancel()
	ws.Close()
	<-c.done

	return wrap("reset", err)
}

func (c *gatewayConn) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(gatewayWriteWait))
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (c *gatewayConn) request(ctx context.Context, f frame) (frame, error) {
	f.ID = uuid.New().String()
	ch := make(chan frame, 1)

	c.mu.Lock()
	c.pending[f.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	if err := c.write(f); err != nil {
		return frame{}, err
	}

	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-c.done:
		return frame{}, ErrConnectionLost
	case resp := <-ch:
		if !resp.OK {
			return resp, fmt.Errorf("gateway rejected %s: %s", f.Type, resp.Error)
		}
		return resp, nil
	}
}

func (c *gatewayConn) readLoop(ctx context.Context, emit func(Event)) {
	defer close(c.done)

	c.ws.SetReadDeadline(time.Now().Add(gatewayPongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(gatewayPongWait))
	})

	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if ctx.Err() == nil {
				logger.Warn("gateway read failed", "error", err)
				emit(Event{Type: EventConnection, Connected: false, Reason: ReasonConnectionLost})
			}
			return
		}

		c.ws.SetReadDeadline(time.Now().Add(gatewayPongWait))

		switch f.Type {
		case "code":
			emit(Event{Type: EventCode, Code: f.Code})
		case "connection":
			emit(Event{Type: EventConnection, Connected: f.Connected, Reason: f.Reason})
		case "credentials":
			emit(Event{Type: EventCredentials})
		case "message":
			if f.Message == nil {
				logger.Warn("gateway message frame without payload")
				continue
			}
			emit(Event{Type: EventMessage, Message: f.Message.toMessage()})
		case "result":
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		default:
			logger.Debug("gateway frame ignored", "type", f.Type)
		}
	}
}

func (c *gatewayConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(gatewayPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(gatewayWriteWait))
			c.writeMu.Unlock()
			if err != nil {
				logger.Debug("gateway ping failed", "error", err)
				return
			}
		}
	}
}

func (m *wireMessage) toMessage() Message {
	msg := Message{
		ID:      m.ID,
		Sender:  m.Sender,
		Kind:    Kind(m.Kind),
		Text:    m.Text,
		Caption: m.Caption,
		FromMe:  m.FromMe,
	}

	if m.Timestamp > 0 {
		msg.Timestamp = time.Unix(m.Timestamp, 0)
	} else {
		msg.Timestamp = time.Now()
	}

	if m.Media != nil {
		msg.Media = &MediaRef{ID: m.Media.Ref, MimeType: m.Media.Mime, Size: m.Media.Size}
	}

	switch msg.Kind {
	case KindText, KindVoice, KindImage:
	default:
		msg.Kind = KindText
	}

	return msg
}
