// Package session keeps per-user conversation state on the server and
// pushes every change to websocket subscribers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/capture"
	"github.com/teslashibe/go-voicechat/pkg/conversation"
	"github.com/teslashibe/go-voicechat/pkg/hub"
)

// State is what a UI renders.
type State struct {
	ID           string               `json:"id"`
	Text         string               `json:"text"`
	Recording    bool                 `json:"recording"`
	Transcribing bool                 `json:"transcribing"`
	Generating   bool                 `json:"generating"`
	Transcript   []conversation.Turn  `json:"transcript"`
	AudioURL     string               `json:"audioUrl,omitempty"`
	Error        *conversation.Notice `json:"error,omitempty"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// Event types pushed to subscribers.
const (
	EventState  = "state"
	EventNotice = "notice"

	// EventAudio is never encoded; synthesized audio travels as a binary
	// frame right after the state event that announces its AudioURL.
	EventAudio = "audio"
)

// Event is one websocket frame.
type Event struct {
	Type   string               `json:"type"`
	State  *State               `json:"state,omitempty"`
	Notice *conversation.Notice `json:"notice,omitempty"`
	Audio  []byte               `json:"-"`
}

// Factory builds the orchestrator for a new session. The session passes
// its own hooks and notifier, which the factory must install.
type Factory func(hooks conversation.Hooks, notifier conversation.Notifier) *conversation.Orchestrator

// Session is one conversation: an orchestrator, its presentation state and
// a broadcast hub.
type Session struct {
	id     string
	orch   *conversation.Orchestrator
	hub    *hub.Hub
	cancel context.CancelFunc
	logger *slog.Logger

	mu           sync.Mutex
	recording    bool
	transcribing bool
	generating   bool
	audioVersion int
	notice       *conversation.Notice
	lastSeen     time.Time
}

func newSession(id string, factory Factory, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		cancel:   cancel,
		logger:   logger.With("session", id),
		hub:      hub.New("session-"+id, logger),
		lastSeen: time.Now(),
	}
	s.orch = factory(s.hooks(), s)
	go s.hub.Run(ctx)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Hub returns the session's broadcast hub.
func (s *Session) Hub() *hub.Hub { return s.hub }

// Orchestrator returns the session's orchestrator.
func (s *Session) Orchestrator() *conversation.Orchestrator { return s.orch }

// State returns a snapshot of the presentation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := State{
		ID:           s.id,
		Text:         s.orch.Input(),
		Recording:    s.recording,
		Transcribing: s.transcribing,
		Generating:   s.generating,
		Transcript:   s.orch.Transcript(),
		Error:        s.notice,
		UpdatedAt:    time.Now(),
	}
	if s.audioVersion > 0 {
		st.AudioURL = fmt.Sprintf("/api/sessions/%s/audio?v=%d", s.id, s.audioVersion)
	}
	return st
}

// Snapshot returns the current state as an encoded event.
func (s *Session) Snapshot() Event {
	st := s.State()
	return Event{Type: EventState, State: &st}
}

// RunText runs a typed turn.
func (s *Session) RunText(ctx context.Context, text string) (*conversation.Result, error) {
	s.touch()
	return s.orch.RunText(ctx, text)
}

// RunAudio runs a spoken turn.
func (s *Session) RunAudio(ctx context.Context, blob capture.Blob) (*conversation.Result, error) {
	s.touch()
	return s.orch.RunAudio(ctx, blob)
}

// Dictate transcribes into the input text.
func (s *Session) Dictate(ctx context.Context, blob capture.Blob) (string, error) {
	s.touch()
	return s.orch.Dictate(ctx, blob)
}

// Speak synthesizes text outside the transcript.
func (s *Session) Speak(ctx context.Context, text, voiceID string) (*conversation.Speech, error) {
	s.touch()
	return s.orch.Speak(ctx, text, voiceID)
}

// Clear wipes the transcript unless a turn is running.
func (s *Session) Clear() error {
	s.touch()
	return s.orch.Clear()
}

// SetRecording records whether the client's microphone is live.
func (s *Session) SetRecording(on bool) {
	s.mu.Lock()
	s.recording = on
	s.lastSeen = time.Now()
	s.mu.Unlock()
	s.publish()
}

// SetText replaces the pending input text.
func (s *Session) SetText(text string) {
	s.touch()
	s.orch.SetInput(text)
}

// LatestSpeech returns the last synthesized audio, or nil.
func (s *Session) LatestSpeech() *conversation.Speech {
	return s.orch.LatestSpeech()
}

// Busy reports whether a turn is running.
func (s *Session) Busy() bool {
	return s.orch.Busy()
}

// Notify implements conversation.Notifier.
func (s *Session) Notify(n conversation.Notice) {
	s.mu.Lock()
	s.notice = &n
	s.mu.Unlock()

	if err := s.hub.BroadcastJSON(Event{Type: EventNotice, Notice: &n}); err != nil {
		s.logger.Warn("encoding notice", "error", err)
	}
	s.publish()
}

// Close stops the hub and disconnects subscribers.
func (s *Session) Close() {
	s.cancel()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) hooks() conversation.Hooks {
	return conversation.Hooks{
		// The previous error stays visible until another action actually
		// starts; a rejected concurrent request leaves it alone.
		OnBegin: func() {
			s.mu.Lock()
			s.notice = nil
			s.mu.Unlock()
		},
		OnPhase: func(p conversation.Phase) {
			s.mu.Lock()
			s.transcribing = p == conversation.PhaseTranscribing
			s.generating = p == conversation.PhaseGenerating
			s.mu.Unlock()
			s.publish()
		},
		OnTurn:  func(conversation.Turn) { s.publish() },
		OnInput: func(string) { s.publish() },
		OnSpeech: func(sp *conversation.Speech) {
			s.mu.Lock()
			s.audioVersion++
			s.mu.Unlock()
			s.publish()
			if sp != nil && len(sp.Audio) > 0 {
				s.hub.BroadcastBinary(sp.Audio)
			}
		},
		OnCleared: func() { s.publish() },
	}
}

func (s *Session) publish() {
	if err := s.hub.BroadcastJSON(s.Snapshot()); err != nil {
		s.logger.Warn("encoding state", "error", err)
	}
}
