package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bowerhall/courier/internal/logger"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	opusMime       = "audio/ogg; codecs=opus"
)

type Config struct {
	APIKey   string
	BaseURL  string
	STTModel string
	TTSModel string
	Voice    string
}

// Client speaks the OpenAI-compatible audio endpoints, which Groq, local
// whisper servers and others also expose.
type Client struct {
	apiKey   string
	baseURL  string
	sttModel string
	ttsModel string
	voice    string
	http     *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.STTModel == "" {
		cfg.STTModel = "whisper-1"
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}

	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		sttModel: cfg.STTModel,
		ttsModel: cfg.TTSModel,
		voice:    cfg.Voice,
		http:     &http.Client{},
	}
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", badAudio(errors.New("empty audio"))
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	if err := form.WriteField("model", c.sttModel); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", unavailable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", unavailable(err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnsupportedMediaType,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return "", badAudio(fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(data)))
	case resp.StatusCode != http.StatusOK:
		return "", unavailable(fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(data)))
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", unavailable(fmt.Errorf("unmarshal response: %w", err))
	}

	if tr.Error != nil {
		return "", unavailable(fmt.Errorf("api error: %s", tr.Error.Message))
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", badAudio(errors.New("no speech recognized"))
	}

	logger.Debug("audio transcribed", "chars", len(text))
	return text, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("nothing to synthesize")
	}

	jsonBody, err := json.Marshal(speechRequest{
		Model:          c.ttsModel,
		Input:          text,
		Voice:          c.voice,
		ResponseFormat: "opus",
	})
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/audio/speech", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: api error (status %d): %s", ErrUnavailable, resp.StatusCode, string(data))
	}

	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty audio returned", ErrUnavailable)
	}

	return data, opusMime, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
