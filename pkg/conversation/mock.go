package conversation

import (
	"context"
	"sync"

	"github.com/teslashibe/go-voicechat/pkg/capture"
	"github.com/teslashibe/go-voicechat/pkg/inference"
)

// Mock implements every pipeline step for tests. Unset funcs fall back to
// fixed replies.
type Mock struct {
	TranscribeFunc func(ctx context.Context, blob capture.Blob) (string, error)
	RespondFunc    func(ctx context.Context, message string, history []inference.Message) (string, error)
	SynthesizeFunc func(ctx context.Context, text, voiceID string) (*Speech, error)
	PlayFunc       func(ctx context.Context, speech *Speech) error

	mu      sync.Mutex
	calls   map[Stage]int
	notices []Notice

	// Histories holds the history passed to each Respond call.
	Histories [][]inference.Message
	// Spoken holds the text passed to each Synthesize call.
	Spoken []string
}

// NewMock creates a mock whose steps return transcript, reply and audio.
func NewMock(transcript, reply string, audio []byte) *Mock {
	return &Mock{
		TranscribeFunc: func(context.Context, capture.Blob) (string, error) {
			return transcript, nil
		},
		RespondFunc: func(context.Context, string, []inference.Message) (string, error) {
			return reply, nil
		},
		SynthesizeFunc: func(_ context.Context, _, voiceID string) (*Speech, error) {
			return &Speech{Audio: audio, ContentType: "audio/mpeg", VoiceID: voiceID}, nil
		},
	}
}

func (m *Mock) record(stage Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[Stage]int)
	}
	m.calls[stage]++
}

// Transcribe implements Transcriber.
func (m *Mock) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	m.record(StageTranscribe)
	if m.TranscribeFunc == nil {
		return "", nil
	}
	return m.TranscribeFunc(ctx, blob)
}

// Respond implements Responder.
func (m *Mock) Respond(ctx context.Context, message string, history []inference.Message) (string, error) {
	m.record(StageRespond)
	m.mu.Lock()
	m.Histories = append(m.Histories, append([]inference.Message(nil), history...))
	m.mu.Unlock()
	if m.RespondFunc == nil {
		return "", nil
	}
	return m.RespondFunc(ctx, message, history)
}

// Synthesize implements Synthesizer.
func (m *Mock) Synthesize(ctx context.Context, text, voiceID string) (*Speech, error) {
	m.record(StageSynthesize)
	m.mu.Lock()
	m.Spoken = append(m.Spoken, text)
	m.mu.Unlock()
	if m.SynthesizeFunc == nil {
		return &Speech{}, nil
	}
	return m.SynthesizeFunc(ctx, text, voiceID)
}

// Play implements Player.
func (m *Mock) Play(ctx context.Context, speech *Speech) error {
	m.record(StagePlay)
	if m.PlayFunc == nil {
		return nil
	}
	return m.PlayFunc(ctx, speech)
}

// Notify implements Notifier.
func (m *Mock) Notify(n Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, n)
}

// Calls returns how many times stage ran.
func (m *Mock) Calls(stage Stage) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

// Notices returns every notice received.
func (m *Mock) Notices() []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notice(nil), m.notices...)
}

var (
	_ Transcriber = (*Mock)(nil)
	_ Responder   = (*Mock)(nil)
	_ Synthesizer = (*Mock)(nil)
	_ Player      = (*Mock)(nil)
	_ Notifier    = (*Mock)(nil)
)
