// Package tts provides text-to-speech synthesis and the voice catalog.
//
// The ElevenLabs provider sends text to the synthesis endpoint with fixed
// model and voice settings and returns the audio bytes untouched. The voice
// catalog never fails from the caller's point of view: see Catalog.
//
// Example usage:
//
//	provider, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, &tts.Request{Text: "こんにちは"})
//	// result.Audio contains MP3 bytes
package tts

import (
	"context"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, req *Request) (*AudioResult, error)

	// Voices lists the voices available to the configured account.
	Voices(ctx context.Context) ([]Voice, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Request is a single synthesis request.
type Request struct {
	// Text to speak. Required.
	Text string

	// VoiceID selects the voice. Empty means the provider default.
	VoiceID string
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data exactly as the provider returned it.
	Audio []byte

	// ContentType is the MIME type of Audio (e.g. audio/mpeg).
	ContentType string

	// VoiceID is the voice that produced the audio.
	VoiceID string

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the provider round-trip time in milliseconds.
	LatencyMs int64
}

// Voice is one entry of the voice catalog.
type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// VoiceSettings controls voice characteristics.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64 `json:"stability"`

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings returns the tuning used for every synthesis request.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.5,
	}
}

// ContentTypeMPEG is the content type of ElevenLabs' default output.
const ContentTypeMPEG = "audio/mpeg"
