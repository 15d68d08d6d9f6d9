package conversation

import (
	"sync"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/inference"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one utterance in the transcript.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Message maps the turn to a chat message.
func (t Turn) Message() inference.Message {
	if t.Speaker == SpeakerAssistant {
		return inference.NewAssistantMessage(t.Text)
	}
	return inference.NewUserMessage(t.Text)
}

// Speech is synthesized audio ready for playback.
type Speech struct {
	Audio       []byte
	ContentType string
	VoiceID     string
}

// Transcript is an append-only ordered list of turns. It is safe for
// concurrent use.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

// Append adds a turn at the end.
func (t *Transcript) Append(turn Turn) {
	t.mu.Lock()
	t.turns = append(t.turns, turn)
	t.mu.Unlock()
}

// Turns returns a copy of every turn in order.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// History returns at most the last n turns as chat messages. n <= 0 means
// no history.
func (t *Transcript) History(n int) []inference.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := len(t.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]inference.Message, 0, len(t.turns)-start)
	for _, turn := range t.turns[start:] {
		out = append(out, turn.Message())
	}
	return out
}

// Clear removes every turn.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.turns = nil
	t.mu.Unlock()
}
