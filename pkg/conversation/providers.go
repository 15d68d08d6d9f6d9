package conversation

import (
	"context"

	"github.com/teslashibe/go-voicechat/pkg/apierr"
	"github.com/teslashibe/go-voicechat/pkg/capture"
	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/stt"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

// Transcriber turns a recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, blob capture.Blob) (string, error)
}

// Responder produces the assistant reply for a user message given the
// preceding history.
type Responder interface {
	Respond(ctx context.Context, message string, history []inference.Message) (string, error)
}

// Synthesizer renders text as audio. An empty voiceID selects the default.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*Speech, error)
}

// Player plays synthesized audio.
type Player interface {
	Play(ctx context.Context, speech *Speech) error
}

// Notifier surfaces failures to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) { f(n) }

// STTTranscriber adapts an stt.Provider.
type STTTranscriber struct {
	Provider stt.Provider
}

// Transcribe implements Transcriber.
func (t STTTranscriber) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	res, err := t.Provider.Transcribe(ctx, &stt.Audio{
		Data:        blob.Data,
		Filename:    blob.Filename(),
		ContentType: blob.MIMEType,
	})
	if err != nil {
		return "", apierr.FromSTT(err)
	}
	return res.Text, nil
}

// AssistantResponder adapts an inference.Assistant.
type AssistantResponder struct {
	Assistant *inference.Assistant
}

// Respond implements Responder.
func (r AssistantResponder) Respond(ctx context.Context, message string, history []inference.Message) (string, error) {
	reply, err := r.Assistant.Reply(ctx, history, message)
	if err != nil {
		return "", apierr.FromChat(err)
	}
	return reply.Response, nil
}

// TTSSynthesizer adapts a tts.Provider.
type TTSSynthesizer struct {
	Provider tts.Provider
}

// Synthesize implements Synthesizer.
func (s TTSSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (*Speech, error) {
	res, err := s.Provider.Synthesize(ctx, &tts.Request{Text: text, VoiceID: voiceID})
	if err != nil {
		return nil, apierr.FromTTS(err)
	}
	return &Speech{Audio: res.Audio, ContentType: res.ContentType, VoiceID: res.VoiceID}, nil
}

var (
	_ Transcriber = STTTranscriber{}
	_ Responder   = AssistantResponder{}
	_ Synthesizer = TTSSynthesizer{}
)
