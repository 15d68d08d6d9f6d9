package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-voicechat/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"

	// ModelScribeV1 is ElevenLabs' batch transcription model.
	ModelScribeV1 = "scribe_v1"
)

// ElevenLabs implements Provider using the ElevenLabs speech-to-text API.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs STT provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &ElevenLabs{
		config:  cfg,
		client:  httpc.OrDefault(cfg.HTTPClient),
		logger:  cfg.Logger.With("component", "stt.elevenlabs"),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// Transcribe uploads the audio and returns the transcription.
func (e *ElevenLabs) Transcribe(ctx context.Context, audio *Audio) (*Result, error) {
	if audio == nil || len(audio.Data) == 0 {
		return nil, ErrNoAudio
	}
	start := time.Now()

	body, contentType, err := e.buildForm(audio)
	if err != nil {
		return nil, WrapError(providerElevenLabs, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/speech-to-text", body)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("xi-api-key", e.config.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("transcribe request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			Provider:   providerElevenLabs,
		}
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("decode response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("transcribed audio",
		"bytes", len(audio.Data),
		"chars", len(result.Text),
		"latency_ms", latency,
	)

	return &Result{
		Text:         result.Text,
		Alignment:    result.Alignment,
		LanguageCode: result.LanguageCode,
		LatencyMs:    latency,
	}, nil
}

// Close releases idle connections.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *ElevenLabs) buildForm(audio *Audio) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := audio.Filename
	if filename == "" {
		filename = DefaultFilename
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}
	if err := writer.WriteField("model_id", e.config.ModelID); err != nil {
		return nil, "", fmt.Errorf("writing model field: %w", err)
	}
	if e.config.LanguageCode != "" {
		if err := writer.WriteField("language_code", e.config.LanguageCode); err != nil {
			return nil, "", fmt.Errorf("writing language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

type transcriptionResponse struct {
	Text         string          `json:"text"`
	LanguageCode string          `json:"language_code"`
	Alignment    json.RawMessage `json:"alignment"`
}

// Verify ElevenLabs implements Provider at compile time.
var _ Provider = (*ElevenLabs)(nil)
