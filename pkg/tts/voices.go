package tts

import (
	"context"
	"log/slog"
)

// DefaultVoiceID is the preset voice used when a request names none.
const DefaultVoiceID = "4lOQ7A2l7HPuG7UIHiKA"

// FallbackVoices is served whenever the provider's catalog is unreachable.
var FallbackVoices = []Voice{
	{VoiceID: "pNInz6obpgDQGcFmaJgB", Name: "Adam", Category: "premade"},
	{VoiceID: "EXAVITQu4vr4xnSDxMaL", Name: "Bella", Category: "premade"},
	{VoiceID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Category: "premade"},
	{VoiceID: "VR6AewLTigWG4xSOukaG", Name: "Arnold", Category: "premade"},
}

// ElevenLabsVoices maps friendly preset names to ElevenLabs voice IDs.
var ElevenLabsVoices = map[string]string{
	"adam":   "pNInz6obpgDQGcFmaJgB",
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"antoni": "ErXwobaYiN019PkySvjV",
	"arnold": "VR6AewLTigWG4xSOukaG",
}

// ResolveVoice returns the voice ID for a preset name, the input unchanged
// if it is already a voice ID, or DefaultVoiceID when empty.
func ResolveVoice(name string) string {
	if name == "" {
		return DefaultVoiceID
	}
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name
}

// Catalog returns the provider's voices, or a copy of FallbackVoices when p
// is nil or the lookup fails for any reason. It never returns an error;
// fellBack reports which list was served.
func Catalog(ctx context.Context, p Provider, logger *slog.Logger) (voices []Voice, fellBack bool) {
	if p == nil {
		return fallback(), true
	}
	voices, err := p.Voices(ctx)
	if err != nil {
		if logger != nil {
			logger.Warn("voice catalog unavailable, serving fallback", "error", err)
		}
		return fallback(), true
	}
	return voices, false
}

func fallback() []Voice {
	out := make([]Voice, len(FallbackVoices))
	copy(out, FallbackVoices)
	return out
}
