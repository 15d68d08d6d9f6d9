package gateway

import (
	"context"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/metrics"
	"github.com/teslashibe/go-voicechat/pkg/stt"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

// The wrappers below time every upstream call, whichever route made it.

type observedSTT struct {
	stt.Provider
	name string
}

func (o observedSTT) Transcribe(ctx context.Context, audio *stt.Audio) (*stt.Result, error) {
	start := time.Now()
	res, err := o.Provider.Transcribe(ctx, audio)
	metrics.ObserveProvider(o.name, "stt", time.Since(start), err)
	return res, err
}

type observedTTS struct {
	tts.Provider
	name string
}

func (o observedTTS) Synthesize(ctx context.Context, req *tts.Request) (*tts.AudioResult, error) {
	start := time.Now()
	res, err := o.Provider.Synthesize(ctx, req)
	metrics.ObserveProvider(o.name, "tts", time.Since(start), err)
	return res, err
}

func (o observedTTS) Voices(ctx context.Context) ([]tts.Voice, error) {
	start := time.Now()
	voices, err := o.Provider.Voices(ctx)
	metrics.ObserveProvider(o.name, "voices", time.Since(start), err)
	return voices, err
}

type observedChat struct {
	inference.Provider
	name string
}

func (o observedChat) Chat(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
	start := time.Now()
	res, err := o.Provider.Chat(ctx, req)
	metrics.ObserveProvider(o.name, "chat", time.Since(start), err)
	return res, err
}

var (
	_ stt.Provider       = observedSTT{}
	_ tts.Provider       = observedTTS{}
	_ inference.Provider = observedChat{}
)
