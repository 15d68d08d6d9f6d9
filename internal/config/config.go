// Package config loads go-voicechat configuration from an optional YAML
// file, a .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults for the provider parameters used by the gateway.
const (
	DefaultAddr = ":3000"

	DefaultElevenLabsURL = "https://api.elevenlabs.io/v1"
	DefaultSTTModel      = "scribe_v1"
	DefaultLanguageCode  = "ja"
	DefaultTTSModel      = "eleven_multilingual_v2"
	DefaultVoice         = "4lOQ7A2l7HPuG7UIHiKA"
	DefaultStability     = 0.5
	DefaultSimilarity    = 0.5

	DefaultOpenAIURL   = "https://api.openai.com/v1"
	DefaultChatModel   = "gpt-4o-mini"
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.7

	DefaultSystemPrompt  = "あなたは親しみやすい日本語AIアシスタントです。ユーザーとの会話を楽しく、自然に行ってください。短めで分かりやすい回答を心がけてください。"
	DefaultFallbackReply = "すみません、うまく回答できませんでした。"

	DefaultHistoryWindow = 10
	DefaultSessionTTL    = 30 * time.Minute
	DefaultTimeout       = 30 * time.Second
)

// Config is the complete runtime configuration. It is constructed once at
// startup and passed explicitly to the gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Session    SessionConfig    `yaml:"session"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	StaticDir   string        `yaml:"static_dir"`
	CORSOrigins string        `yaml:"cors_origins"`
	BodyLimitMB int           `yaml:"body_limit_mb"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ElevenLabsConfig holds the speech provider settings (STT, TTS, voices).
type ElevenLabsConfig struct {
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	STTModel        string  `yaml:"stt_model"`
	LanguageCode    string  `yaml:"language_code"`
	TTSModel        string  `yaml:"tts_model"`
	DefaultVoice    string  `yaml:"default_voice"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
}

// OpenAIConfig holds the chat provider settings.
type OpenAIConfig struct {
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	SystemPrompt  string  `yaml:"system_prompt"`
	FallbackReply string  `yaml:"fallback_reply"`
}

// SessionConfig controls server-side conversation sessions.
type SessionConfig struct {
	HistoryWindow int           `yaml:"history_window"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with every default applied and no credentials.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load builds a Config. path may be empty; a missing file is not an error
// when path is empty, but is when it was named explicitly.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables still win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.setDefaults()
	return cfg, nil
}

// Parse decodes YAML into cfg after expanding ${VAR} references.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setString(&c.Server.Addr, getenv("VOICECHAT_ADDR"))
	setString(&c.Server.StaticDir, getenv("VOICECHAT_STATIC_DIR"))
	setString(&c.Server.CORSOrigins, getenv("VOICECHAT_CORS_ORIGINS"))

	setString(&c.ElevenLabs.APIKey, getenv("ELEVENLABS_API_KEY"))
	setString(&c.ElevenLabs.BaseURL, getenv("ELEVENLABS_BASE_URL"))
	setString(&c.ElevenLabs.DefaultVoice, getenv("ELEVENLABS_VOICE_ID"))
	setString(&c.ElevenLabs.LanguageCode, getenv("ELEVENLABS_LANGUAGE"))

	setString(&c.OpenAI.APIKey, getenv("OPENAI_API_KEY"))
	setString(&c.OpenAI.BaseURL, getenv("OPENAI_BASE_URL"))
	setString(&c.OpenAI.Model, getenv("OPENAI_MODEL"))

	setString(&c.Log.Level, getenv("LOG_LEVEL"))
	setString(&c.Log.Format, getenv("LOG_FORMAT"))

	if n, err := strconv.Atoi(getenv("VOICECHAT_HISTORY_WINDOW")); err == nil && n > 0 {
		c.Session.HistoryWindow = n
	}
}

func (c *Config) setDefaults() {
	setDefault(&c.Server.Addr, DefaultAddr)
	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 25
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = DefaultTimeout
	}

	setDefault(&c.ElevenLabs.BaseURL, DefaultElevenLabsURL)
	setDefault(&c.ElevenLabs.STTModel, DefaultSTTModel)
	setDefault(&c.ElevenLabs.LanguageCode, DefaultLanguageCode)
	setDefault(&c.ElevenLabs.TTSModel, DefaultTTSModel)
	setDefault(&c.ElevenLabs.DefaultVoice, DefaultVoice)
	if c.ElevenLabs.Stability == 0 {
		c.ElevenLabs.Stability = DefaultStability
	}
	if c.ElevenLabs.SimilarityBoost == 0 {
		c.ElevenLabs.SimilarityBoost = DefaultSimilarity
	}

	setDefault(&c.OpenAI.BaseURL, DefaultOpenAIURL)
	setDefault(&c.OpenAI.Model, DefaultChatModel)
	setDefault(&c.OpenAI.SystemPrompt, DefaultSystemPrompt)
	setDefault(&c.OpenAI.FallbackReply, DefaultFallbackReply)
	if c.OpenAI.MaxTokens <= 0 {
		c.OpenAI.MaxTokens = DefaultMaxTokens
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = DefaultTemperature
	}

	if c.Session.HistoryWindow <= 0 {
		c.Session.HistoryWindow = DefaultHistoryWindow
	}
	if c.Session.IdleTTL <= 0 {
		c.Session.IdleTTL = DefaultSessionTTL
	}

	setDefault(&c.Log.Level, "info")
}

// Warnings reports configuration gaps that disable endpoints without being
// fatal. Missing credentials make the affected endpoints answer with an
// "API key not configured" error.
func (c *Config) Warnings() []string {
	var out []string
	if strings.TrimSpace(c.ElevenLabs.APIKey) == "" {
		out = append(out, "ELEVENLABS_API_KEY not set: /stt and /tts disabled, /voices serves fallback list")
	}
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		out = append(out, "OPENAI_API_KEY not set: /chat disabled")
	}
	return out
}

// HasSpeechKey reports whether the ElevenLabs credential is present.
func (c *Config) HasSpeechKey() bool {
	return strings.TrimSpace(c.ElevenLabs.APIKey) != ""
}

// HasChatKey reports whether the OpenAI credential is present.
func (c *Config) HasChatKey() bool {
	return strings.TrimSpace(c.OpenAI.APIKey) != ""
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
