package conversation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FilePlayer writes each reply to a file. It is the fallback when no audio
// output is available.
type FilePlayer struct {
	Path string
}

// Play implements Player.
func (p FilePlayer) Play(ctx context.Context, speech *Speech) error {
	if speech == nil || len(speech.Audio) == 0 {
		return nil
	}
	if dir := filepath.Dir(p.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(p.Path, speech.Audio, 0o644)
}

// CommandPlayer writes the reply to a temporary file and runs an external
// player on it, e.g. "mpv --no-video" or "afplay".
type CommandPlayer struct {
	Command string
}

// Play implements Player.
func (p CommandPlayer) Play(ctx context.Context, speech *Speech) error {
	fields := strings.Fields(p.Command)
	if len(fields) == 0 {
		return fmt.Errorf("player: empty command")
	}
	if speech == nil || len(speech.Audio) == 0 {
		return nil
	}

	f, err := os.CreateTemp("", "voicechat-*"+extensionFor(speech.ContentType))
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(speech.Audio); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	args := append(fields[1:], f.Name())
	out, err := exec.CommandContext(ctx, fields[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("player: %s: %w: %s", fields[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// MultiPlayer plays through every player, returning the first error.
type MultiPlayer []Player

// Play implements Player.
func (m MultiPlayer) Play(ctx context.Context, speech *Speech) error {
	var first error
	for _, p := range m {
		if err := p.Play(ctx, speech); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".mp3"
	}
}

var (
	_ Player = FilePlayer{}
	_ Player = CommandPlayer{}
	_ Player = MultiPlayer{}
)
