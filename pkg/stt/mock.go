package stt

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns an empty transcription.
	TranscribeFunc func(ctx context.Context, audio *Audio) (*Result, error)

	mu    sync.Mutex
	calls [][]byte
}

// NewMock returns a mock that always transcribes to text.
func NewMock(text string) *Mock {
	return &Mock{
		TranscribeFunc: func(ctx context.Context, audio *Audio) (*Result, error) {
			return &Result{Text: text}, nil
		},
	}
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		TranscribeFunc: func(ctx context.Context, audio *Audio) (*Result, error) {
			return nil, err
		},
	}
}

// Transcribe records the audio and calls TranscribeFunc.
func (m *Mock) Transcribe(ctx context.Context, audio *Audio) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]byte(nil), audio.Data...))
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio)
	}
	return &Result{}, nil
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// Received returns the audio payloads seen so far.
func (m *Mock) Received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.calls))
	copy(out, m.calls)
	return out
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
