package gateway

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/internal/httpc"
	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/stt"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

// NewFromConfig builds the providers whose credentials are present and
// returns a gateway over them. Missing credentials are logged once here;
// the affected routes answer "API key not configured".
func NewFromConfig(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	client := httpc.New(cfg.Server.Timeout)
	opts := []Option{WithLogger(logger), WithRegistry(reg)}

	if cfg.HasSpeechKey() {
		sp, tp, err := speechProviders(cfg, client, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSTT(sp), WithTTS(tp))
	}

	if cfg.HasChatKey() {
		cp, err := inference.NewClient(
			inference.WithAPIKey(cfg.OpenAI.APIKey),
			inference.WithBaseURL(cfg.OpenAI.BaseURL),
			inference.WithModel(cfg.OpenAI.Model),
			inference.WithMaxTokens(cfg.OpenAI.MaxTokens),
			inference.WithTemperature(cfg.OpenAI.Temperature),
			inference.WithHTTPClient(client),
			inference.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("chat provider: %w", err)
		}
		opts = append(opts, WithChat(cp))
	}

	return New(cfg, opts...), nil
}

func speechProviders(cfg *config.Config, client *http.Client, logger *slog.Logger) (stt.Provider, tts.Provider, error) {
	el := cfg.ElevenLabs

	sp, err := stt.NewElevenLabs(
		stt.WithAPIKey(el.APIKey),
		stt.WithBaseURL(el.BaseURL),
		stt.WithModel(el.STTModel),
		stt.WithLanguage(el.LanguageCode),
		stt.WithHTTPClient(client),
		stt.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("stt provider: %w", err)
	}

	tp, err := tts.NewElevenLabs(
		tts.WithAPIKey(el.APIKey),
		tts.WithBaseURL(el.BaseURL),
		tts.WithVoice(el.DefaultVoice),
		tts.WithModel(el.TTSModel),
		tts.WithVoiceSettings(tts.VoiceSettings{
			Stability:       el.Stability,
			SimilarityBoost: el.SimilarityBoost,
		}),
		tts.WithHTTPClient(client),
		tts.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("tts provider: %w", err)
	}
	return sp, tp, nil
}
