// Package client talks to a go-voicechat gateway. Client implements the
// conversation pipeline interfaces over HTTP so a terminal program can run
// the same orchestrator the server runs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/teslashibe/go-voicechat/internal/httpc"
	"github.com/teslashibe/go-voicechat/pkg/apierr"
	"github.com/teslashibe/go-voicechat/pkg/capture"
	"github.com/teslashibe/go-voicechat/pkg/conversation"
	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/session"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

// Client is a gateway client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client for the gateway at baseURL, e.g.
// "http://localhost:3000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = httpc.OrDefault(c.http)
	c.logger = c.logger.With("component", "client")
	return c
}

// ChatReply is the decoded POST /chat response.
type ChatReply struct {
	Response       string              `json:"response"`
	UpdatedHistory []inference.Message `json:"updatedHistory"`
}

// Health reports which providers the gateway has credentials for.
type Health struct {
	Status string `json:"status"`
	STT    bool   `json:"stt"`
	TTS    bool   `json:"tts"`
	Chat   bool   `json:"chat"`
}

// Transcribe implements conversation.Transcriber via POST /stt.
func (c *Client) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	body, contentType, err := audioForm(blob)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodPost, "/stt", contentType, body, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// Chat sends POST /chat.
func (c *Client) Chat(ctx context.Context, message string, history []inference.Message) (*ChatReply, error) {
	if history == nil {
		history = []inference.Message{}
	}
	var out ChatReply
	err := c.doJSON(ctx, http.MethodPost, "/chat", map[string]any{
		"message": message,
		"history": history,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Respond implements conversation.Responder.
func (c *Client) Respond(ctx context.Context, message string, history []inference.Message) (string, error) {
	reply, err := c.Chat(ctx, message, history)
	if err != nil {
		return "", err
	}
	return reply.Response, nil
}

// Synthesize implements conversation.Synthesizer via POST /tts.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (*conversation.Speech, error) {
	payload := map[string]string{"text": text}
	if voiceID != "" {
		payload["voice"] = voiceID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, http.MethodPost, "/tts", "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read audio: %w", err)
	}
	return &conversation.Speech{
		Audio:       audio,
		ContentType: resp.Header.Get("Content-Type"),
		VoiceID:     voiceID,
	}, nil
}

// Voices fetches GET /voices.
func (c *Client) Voices(ctx context.Context) ([]tts.Voice, error) {
	var out struct {
		Voices []tts.Voice `json:"voices"`
	}
	if err := c.do(ctx, http.MethodGet, "/voices", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// Health fetches GET /healthz.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/healthz", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession starts a server-side session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", "", nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// SessionState fetches a session's presentation state.
func (c *Client) SessionState(ctx context.Context, id string) (*session.State, error) {
	var out session.State
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+id, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(data), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s: %w", path, err)
	}
	return nil
}

// send performs a request and converts non-2xx replies into *apierr.Error.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	e := &apierr.Error{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, e); err != nil || e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
		e.Details = strings.TrimSpace(string(raw))
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		e.Kind = apierr.KindInvalidInput
	case http.StatusNotFound:
		e.Kind = apierr.KindNotFound
	case http.StatusConflict:
		e.Kind = apierr.KindConflict
	default:
		if e.Message == apierr.MsgUnconfigured {
			e.Kind = apierr.KindUnconfigured
		}
	}
	return e
}

func audioForm(blob capture.Blob) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, blob.Filename()))
	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = capture.DefaultMIMEType
	}
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(blob.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var (
	_ conversation.Transcriber = (*Client)(nil)
	_ conversation.Responder   = (*Client)(nil)
	_ conversation.Synthesizer = (*Client)(nil)
)
