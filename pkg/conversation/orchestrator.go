// Package conversation sequences one voice chat turn: transcribe the
// recording, ask the assistant, synthesize the reply and play it.
//
// Every step runs in order and a failure aborts the rest of the turn. Steps
// that already completed are never rolled back, so a failed reply leaves
// the user's turn in the transcript. Synthesis and playback failures do not
// fail the turn; the reply is simply not spoken.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/capture"
)

// DefaultHistoryWindow is how many trailing turns are sent as context.
const DefaultHistoryWindow = 10

// Phase is what the orchestrator is busy with.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseTranscribing Phase = "transcribing"
	PhaseGenerating   Phase = "generating"
)

// Hooks are optional callbacks fired as the orchestrator's state changes.
// They run synchronously on the turn's goroutine.
type Hooks struct {
	// OnBegin runs after an action claims the in-flight slot, before any
	// other hook of that action.
	OnBegin   func()
	OnPhase   func(Phase)
	OnTurn    func(Turn)
	OnSpeech  func(*Speech)
	OnInput   func(string)
	OnCleared func()
}

// Result describes a completed turn.
type Result struct {
	User      Turn
	Assistant Turn

	// Speech is nil when synthesis failed or is not configured.
	Speech  *Speech
	Metrics Metrics
}

// Orchestrator runs conversation turns against a shared transcript. At
// most one turn runs at a time.
type Orchestrator struct {
	transcriber Transcriber
	responder   Responder
	synthesizer Synthesizer
	player      Player
	notifier    Notifier
	hooks       Hooks
	logger      *slog.Logger

	historyWindow int
	voiceID       string

	transcript Transcript
	busy       atomic.Bool

	mu     sync.Mutex
	input  string
	latest *Speech
	last   Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTranscriber sets the speech-to-text step.
func WithTranscriber(t Transcriber) Option {
	return func(o *Orchestrator) { o.transcriber = t }
}

// WithSynthesizer sets the text-to-speech step.
func WithSynthesizer(s Synthesizer) Option {
	return func(o *Orchestrator) { o.synthesizer = s }
}

// WithPlayer enables autoplay of synthesized replies.
func WithPlayer(p Player) Option {
	return func(o *Orchestrator) { o.player = p }
}

// WithNotifier sets where user-visible failures go.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithHooks registers state change callbacks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithHistoryWindow limits how many trailing turns are sent as context.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) { o.historyWindow = n }
}

// WithVoice sets the voice used for replies.
func WithVoice(voiceID string) Option {
	return func(o *Orchestrator) { o.voiceID = voiceID }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator around the responder, the one step every
// turn needs.
func New(responder Responder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		responder:     responder,
		historyWindow: DefaultHistoryWindow,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "conversation.orchestrator")
	return o
}

// RunAudio runs a full turn starting from a recording.
func (o *Orchestrator) RunAudio(ctx context.Context, blob capture.Blob) (*Result, error) {
	if !o.acquire() {
		return nil, ErrTurnInProgress
	}
	defer o.release()

	timer := newStageTimer()
	text, err := o.transcribe(ctx, blob, timer)
	if err != nil {
		timer.finish(OutcomeTranscribeFailed)
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		o.logger.Info("transcription was empty, turn skipped")
		timer.finish(OutcomeEmpty)
		return nil, ErrEmptyUtterance
	}
	return o.converse(ctx, text, timer)
}

// RunText runs a turn from typed text, skipping transcription.
func (o *Orchestrator) RunText(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyUtterance
	}
	if !o.acquire() {
		return nil, ErrTurnInProgress
	}
	defer o.release()

	return o.converse(ctx, text, newStageTimer())
}

// Dictate transcribes a recording into the pending input text without
// sending it.
func (o *Orchestrator) Dictate(ctx context.Context, blob capture.Blob) (string, error) {
	if !o.acquire() {
		return "", ErrTurnInProgress
	}
	defer o.release()

	text, err := o.transcribe(ctx, blob, newStageTimer())
	if err != nil {
		return "", err
	}
	o.SetInput(text)
	return text, nil
}

// Speak synthesizes text without touching the transcript. Failures are
// reported to the notifier with their details.
func (o *Orchestrator) Speak(ctx context.Context, text, voiceID string) (*Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyUtterance
	}
	if o.synthesizer == nil {
		return nil, &StageError{Stage: StageSynthesize, Err: errors.New("no synthesizer configured")}
	}
	if !o.acquire() {
		return nil, ErrTurnInProgress
	}
	defer o.release()

	if voiceID == "" {
		voiceID = o.voiceID
	}

	o.setPhase(PhaseGenerating)
	defer o.setPhase(PhaseIdle)

	timer := newStageTimer()
	began := time.Now()
	speech, err := o.synthesizer.Synthesize(ctx, text, voiceID)
	timer.observe(StageSynthesize, began)
	if err != nil {
		o.logger.Error("speech synthesis failed", "error", err)
		o.notify(StageSynthesize, err)
		return nil, &StageError{Stage: StageSynthesize, Err: err}
	}
	o.publish(ctx, speech)
	return speech, nil
}

// Clear wipes the transcript. It takes the in-flight slot, so a running
// turn makes it fail with ErrTurnInProgress instead of splitting that
// turn's user and assistant messages.
func (o *Orchestrator) Clear() error {
	if !o.acquire() {
		return ErrTurnInProgress
	}
	defer o.release()

	o.transcript.Clear()
	if o.hooks.OnCleared != nil {
		o.hooks.OnCleared()
	}
	return nil
}

// Transcript returns a copy of the turns so far.
func (o *Orchestrator) Transcript() []Turn {
	return o.transcript.Turns()
}

// Busy reports whether a turn is running.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Input returns the pending input text.
func (o *Orchestrator) Input() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.input
}

// SetInput replaces the pending input text.
func (o *Orchestrator) SetInput(text string) {
	o.mu.Lock()
	o.input = text
	o.mu.Unlock()
	if o.hooks.OnInput != nil {
		o.hooks.OnInput(text)
	}
}

// LatestSpeech returns the most recently synthesized audio, or nil.
func (o *Orchestrator) LatestSpeech() *Speech {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest
}

// LastMetrics returns the stage timings of the last completed turn.
func (o *Orchestrator) LastMetrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) acquire() bool {
	if !o.busy.CompareAndSwap(false, true) {
		return false
	}
	if o.hooks.OnBegin != nil {
		o.hooks.OnBegin()
	}
	return true
}

func (o *Orchestrator) release() {
	o.busy.Store(false)
}

func (o *Orchestrator) transcribe(ctx context.Context, blob capture.Blob, timer *stageTimer) (string, error) {
	if o.transcriber == nil {
		return "", &StageError{Stage: StageTranscribe, Err: errors.New("no transcriber configured")}
	}

	o.setPhase(PhaseTranscribing)
	defer o.setPhase(PhaseIdle)

	began := time.Now()
	text, err := o.transcriber.Transcribe(ctx, blob)
	timer.observe(StageTranscribe, began)
	if err != nil {
		o.logger.Error("transcription failed", "error", err, "bytes", len(blob.Data))
		o.notify(StageTranscribe, err)
		return "", &StageError{Stage: StageTranscribe, Err: err}
	}
	return text, nil
}

// converse runs the steps after transcription. The caller holds the
// in-flight slot.
func (o *Orchestrator) converse(ctx context.Context, text string, timer *stageTimer) (*Result, error) {
	// History is everything before this turn.
	history := o.transcript.History(o.historyWindow)

	user := Turn{Speaker: SpeakerUser, Text: text, Timestamp: time.Now()}
	o.appendTurn(user)
	o.SetInput("")

	o.setPhase(PhaseGenerating)
	defer o.setPhase(PhaseIdle)

	began := time.Now()
	reply, err := o.responder.Respond(ctx, text, history)
	timer.observe(StageRespond, began)
	if err != nil {
		o.logger.Error("assistant reply failed", "error", err)
		o.notify(StageRespond, err)
		timer.finish(OutcomeRespondFailed)
		return nil, &StageError{Stage: StageRespond, Err: err}
	}

	assistant := Turn{Speaker: SpeakerAssistant, Text: reply, Timestamp: time.Now()}
	o.appendTurn(assistant)

	res := &Result{User: user, Assistant: assistant}

	if o.synthesizer != nil {
		began = time.Now()
		speech, err := o.synthesizer.Synthesize(ctx, reply, o.voiceID)
		timer.observe(StageSynthesize, began)
		if err != nil {
			o.logger.Warn("reply synthesis failed, continuing without audio", "error", err)
		} else {
			res.Speech = speech
			o.publish(ctx, speech)
		}
	}

	res.Metrics = timer.finish(OutcomeCompleted)
	o.mu.Lock()
	o.last = res.Metrics
	o.mu.Unlock()

	o.logger.Debug("turn completed",
		"transcribe", res.Metrics.Transcribe,
		"respond", res.Metrics.Respond,
		"synthesize", res.Metrics.Synthesize,
		"total", res.Metrics.Total)
	return res, nil
}

// publish makes speech the latest playable audio and autoplays it.
func (o *Orchestrator) publish(ctx context.Context, speech *Speech) {
	o.mu.Lock()
	o.latest = speech
	o.mu.Unlock()

	if o.hooks.OnSpeech != nil {
		o.hooks.OnSpeech(speech)
	}
	if o.player == nil {
		return
	}
	if err := o.player.Play(ctx, speech); err != nil {
		o.logger.Debug("autoplay failed", "error", err)
	}
}

func (o *Orchestrator) appendTurn(t Turn) {
	o.transcript.Append(t)
	if o.hooks.OnTurn != nil {
		o.hooks.OnTurn(t)
	}
}

func (o *Orchestrator) setPhase(p Phase) {
	if o.hooks.OnPhase != nil {
		o.hooks.OnPhase(p)
	}
}

func (o *Orchestrator) notify(stage Stage, err error) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(NoticeFor(stage, err))
}
