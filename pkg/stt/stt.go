// Package stt provides speech-to-text transcription.
//
// Audio is forwarded to the provider exactly as recorded; no format checks
// happen locally, so any rejection comes back from the provider verbatim.
//
// Example usage:
//
//	provider, _ := stt.NewElevenLabs(
//	    stt.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    stt.WithLanguage("ja"),
//	)
//
//	result, _ := provider.Transcribe(ctx, &stt.Audio{Data: blob, Filename: "recording.webm"})
//	fmt.Println(result.Text)
package stt

import (
	"context"
	"encoding/json"
)

// Provider defines the STT provider interface.
type Provider interface {
	// Transcribe converts recorded audio to text.
	Transcribe(ctx context.Context, audio *Audio) (*Result, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Audio is a finalized recording.
type Audio struct {
	// Data is the encoded audio as produced by the recorder.
	Data []byte

	// Filename is sent with the multipart upload; providers sniff the
	// container from its extension.
	Filename string

	// ContentType is the MIME type, e.g. audio/webm.
	ContentType string
}

// Result is a transcription.
type Result struct {
	// Text is the transcribed utterance. May be empty for silence.
	Text string

	// Alignment is provider-specific timing data, passed through opaquely.
	Alignment json.RawMessage

	// LanguageCode is the language the provider detected or was told.
	LanguageCode string

	// LatencyMs is the provider round-trip time in milliseconds.
	LatencyMs int64
}

// DefaultFilename is used when the recording has no name.
const DefaultFilename = "recording.webm"
