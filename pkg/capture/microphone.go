//go:build portaudio

package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Open implements Device. The host reports a refused microphone as a
// failure to open or start the default input stream.
func (m *Microphone) Open(ctx context.Context) (Stream, error) {
	rate, frames := m.params()

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: initialize portaudio: %w", err)
	}

	buf := make([]int16, frames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), frames, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	s := &micStream{
		stream: stream,
		buf:    buf,
		rate:   rate,
		ch:     make(chan []byte, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.read(ctx)
	return s, nil
}

// micStream accumulates samples and emits them as a single WAV fragment on
// Close, since a WAV header needs the final data size.
type micStream struct {
	stream  *portaudio.Stream
	buf     []int16
	rate    int
	samples []int16

	ch   chan []byte
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *micStream) read(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		if err := s.stream.Read(); err != nil {
			return
		}
		s.samples = append(s.samples, s.buf...)
	}
}

func (s *micStream) Chunks() <-chan []byte { return s.ch }

func (s *micStream) MIMEType() string { return "audio/wav" }

func (s *micStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		_ = s.stream.Close()
		_ = portaudio.Terminate()

		if len(s.samples) > 0 {
			s.ch <- EncodeWAV(s.samples, s.rate)
		}
		close(s.ch)
	})
	return err
}
