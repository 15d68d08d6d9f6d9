// voicechat-server runs the provider gateway: speech-to-text, text-to-speech,
// chat and the voice catalog, plus conversation sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-voicechat/internal/config"
	vlog "github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/gateway"
	"github.com/teslashibe/go-voicechat/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides VOICECHAT_ADDR)")
	staticDir := flag.String("static", "", "Directory served at / (overrides VOICECHAT_STATIC_DIR)")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics on a separate listener as well")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		vlog.Init("info", "")
		vlog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *staticDir != "" {
		cfg.Server.StaticDir = *staticDir
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	vlog.Init(cfg.Log.Level, cfg.Log.Format)
	logger := vlog.L()
	vlog.Debug("configuration loaded",
		"addr", cfg.Server.Addr,
		"static", cfg.Server.StaticDir,
		"stt_tts", cfg.HasSpeechKey(),
		"chat", cfg.HasChatKey())
	if cfg.Server.StaticDir != "" {
		if _, err := os.Stat(cfg.Server.StaticDir); err != nil {
			vlog.Warn("static directory unavailable", "dir", cfg.Server.StaticDir, "error", err)
		}
	}

	reg := metrics.NewRegistry()
	srv, err := gateway.NewFromConfig(cfg, logger, reg)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if *metricsAddr != "" {
		ms := &http.Server{
			Addr:              *metricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		mlog := vlog.Component("metrics")
		g.Go(func() error {
			mlog.Info("metrics listening", "addr", *metricsAddr)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	vlog.Info("server stopped")
}
