// Package gateway is the HTTP surface of go-voicechat. It holds the provider
// credentials and exposes speech-to-text, text-to-speech, chat and the voice
// catalog, plus server-side conversation sessions with websocket updates.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/metrics"
	"github.com/teslashibe/go-voicechat/pkg/session"
	"github.com/teslashibe/go-voicechat/pkg/stt"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

// Server is the provider gateway.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	logger *slog.Logger

	// Providers are nil when their credential is missing.
	stt       stt.Provider
	tts       tts.Provider
	assistant *inference.Assistant

	sessions *session.Store
	registry *prometheus.Registry
}

// Option configures a Server.
type Option func(*Server)

// WithSTT sets the speech-to-text provider.
func WithSTT(p stt.Provider) Option {
	return func(s *Server) {
		if p != nil {
			s.stt = observedSTT{Provider: p, name: "elevenlabs"}
		}
	}
}

// WithTTS sets the text-to-speech provider.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) {
		if p != nil {
			s.tts = observedTTS{Provider: p, name: "elevenlabs"}
		}
	}
}

// WithChat sets the chat completion provider. The persona and fallback
// reply come from the OpenAI section of the config.
func WithChat(p inference.Provider) Option {
	return func(s *Server) {
		if p != nil {
			s.assistant = inference.NewAssistant(observedChat{Provider: p, name: "openai"},
				inference.WithSystemPrompt(s.cfg.OpenAI.SystemPrompt),
				inference.WithFallbackReply(s.cfg.OpenAI.FallbackReply),
			)
		}
	}
}

// WithRegistry exposes reg on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the gateway and its routes.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "gateway")
	if s.registry == nil {
		s.registry = metrics.NewRegistry()
	}
	s.sessions = session.NewStore(s.sessionFactory(),
		session.WithTTL(cfg.Session.IdleTTL),
		session.WithLogger(s.logger),
	)

	app := fiber.New(fiber.Config{
		AppName:               "go-voicechat",
		DisableStartupMessage: true,
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
		ReadTimeout:           cfg.Server.Timeout,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(s.accessLog())
	app.Use(cors.New(cors.Config{AllowOrigins: corsOrigins(cfg.Server.CORSOrigins)}))

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.registry)))

	// The provider routes live at the root and under /api.
	for _, r := range []fiber.Router{app, app.Group("/api")} {
		r.Post("/stt", s.handleSTT)
		r.Post("/tts", s.handleTTS)
		r.Post("/chat", s.handleChat)
		r.Get("/voices", s.handleVoices)
	}

	sessions := app.Group("/api/sessions")
	sessions.Post("/", s.handleCreateSession)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Delete("/:id", s.handleDeleteSession)
	sessions.Post("/:id/turns", s.handleTurn)
	sessions.Post("/:id/speak", s.handleSpeak)
	sessions.Post("/:id/dictate", s.handleDictate)
	sessions.Put("/:id/text", s.handleText)
	sessions.Put("/:id/recording", s.handleRecording)
	sessions.Delete("/:id/transcript", s.handleClearTranscript)
	sessions.Get("/:id/audio", s.handleSessionAudio)

	app.Use("/ws", s.upgradeSession)
	app.Get("/ws/sessions/:id", websocket.New(s.handleSessionWS))

	if dir := cfg.Server.StaticDir; dir != "" {
		app.Static("/", dir)
	}

	s.app = app
	return s
}

// App returns the underlying fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Sessions returns the session store.
func (s *Server) Sessions() *session.Store {
	return s.sessions
}

// Run serves on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	storeCtx, stopStore := context.WithCancel(ctx)
	defer stopStore()
	go s.sessions.Run(storeCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.Server.Addr,
			"stt", s.stt != nil, "tts", s.tts != nil, "chat", s.assistant != nil)
		errCh <- s.app.Listen(s.cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("gateway shutting down")
	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	return nil
}

func corsOrigins(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "*"
	}
	return v
}
