// Package capture records audio from a capture device into a single blob.
//
// A Recorder moves between two states, Idle and Recording. Start opens the
// device and begins buffering every non-empty chunk it delivers; Stop
// releases the device, joins the chunks in arrival order and hands the
// resulting Blob to the configured handler.
package capture

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the device refuses access.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrNotRecording is returned by Stop when no session is active.
	ErrNotRecording = errors.New("capture: not recording")

	// ErrNoMicrophone is returned by Microphone when the binary was built
	// without the portaudio tag.
	ErrNoMicrophone = errors.New("capture: microphone support not built, rebuild with -tags portaudio")
)

// Device is an audio capture device such as a microphone.
type Device interface {
	// Open acquires the device and starts delivering audio.
	// Implementations return ErrPermissionDenied when access is refused.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture device.
type Stream interface {
	// Chunks delivers encoded audio fragments in order. The channel is
	// closed when the stream ends, either on its own or after Close.
	Chunks() <-chan []byte

	// MIMEType describes the container of the delivered fragments.
	MIMEType() string

	// Close releases the device. Fragments already captured are still
	// delivered before Chunks is closed.
	Close() error
}

// State is the recorder state.
type State int

const (
	// Idle means no capture session is active.
	Idle State = iota
	// Recording means a capture session is buffering audio.
	Recording
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Blob is a finalized recording.
type Blob struct {
	Data     []byte
	MIMEType string

	// Chunks is how many fragments were joined into Data.
	Chunks int
}

// Filename returns a name whose extension matches the blob's container,
// which is what upload endpoints sniff.
func (b Blob) Filename() string {
	switch b.MIMEType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "recording.wav"
	case "audio/mpeg":
		return "recording.mp3"
	case "audio/ogg":
		return "recording.ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "recording.m4a"
	default:
		return "recording.webm"
	}
}

// DefaultMIMEType is what browsers' MediaRecorder produces by default.
const DefaultMIMEType = "audio/webm"

// Microphone captures 16-bit mono PCM from the default input device and
// delivers it as one WAV fragment once the stream is closed.
type Microphone struct {
	SampleRate      int
	FramesPerBuffer int
}

// NewMicrophone returns a microphone sampling at rate Hz; zero means 16 kHz.
func NewMicrophone(rate int) *Microphone {
	return &Microphone{SampleRate: rate}
}

func (m *Microphone) params() (rate, frames int) {
	rate, frames = m.SampleRate, m.FramesPerBuffer
	if rate <= 0 {
		rate = 16000
	}
	if frames <= 0 {
		frames = 1024
	}
	return rate, frames
}
