package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
)

// Recorder buffers one capture session at a time.
type Recorder struct {
	device Device
	logger *slog.Logger
	onBlob func(Blob)

	mu      sync.Mutex
	session *session
}

// session is the transient state of one recording. Its chunks are owned by
// the collector goroutine until done is closed.
type session struct {
	stream Stream
	chunks [][]byte
	done   chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the recorder's logger.
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// OnBlob registers the handler that receives every finalized recording.
func OnBlob(fn func(Blob)) RecorderOption {
	return func(r *Recorder) { r.onBlob = fn }
}

// NewRecorder creates an idle recorder for device.
func NewRecorder(device Device, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		device: device,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "capture.recorder")
	return r
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return Recording
	}
	return Idle
}

// Start opens the device and begins buffering. Starting while already
// recording is a no-op. A refused device leaves the recorder Idle and
// returns an error matching ErrPermissionDenied.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return nil
	}

	stream, err := r.device.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, fs.ErrPermission) {
			r.logger.Warn("capture device refused", "error", err)
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("capture: open device: %w", err)
	}

	s := &session{stream: stream, done: make(chan struct{})}
	r.session = s
	go s.collect()

	r.logger.Debug("recording started", "mime", stream.MIMEType())
	return nil
}

func (s *session) collect() {
	defer close(s.done)
	for chunk := range s.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	}
}

// Done returns a channel closed when the active stream ends on its own
// (for example a file source reaching EOF). It is already closed when Idle.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.session.done
}

// Stop releases the device and returns the finalized recording. The blob
// is also passed to the OnBlob handler, if any.
func (r *Recorder) Stop() (Blob, error) {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()

	if s == nil {
		return Blob{}, ErrNotRecording
	}

	if err := s.stream.Close(); err != nil {
		r.logger.Warn("closing capture stream", "error", err)
	}
	<-s.done

	mime := s.stream.MIMEType()
	if mime == "" {
		mime = DefaultMIMEType
	}
	blob := Blob{
		Data:     bytes.Join(s.chunks, nil),
		MIMEType: mime,
		Chunks:   len(s.chunks),
	}

	r.logger.Debug("recording stopped", "chunks", blob.Chunks, "bytes", len(blob.Data))

	if r.onBlob != nil {
		r.onBlob(blob)
	}
	return blob, nil
}
