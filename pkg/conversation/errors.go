package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnInProgress is returned when a turn is started while another
	// one is still running.
	ErrTurnInProgress = errors.New("conversation: turn in progress")

	// ErrEmptyUtterance is returned when transcription produced no text or
	// the submitted text is blank.
	ErrEmptyUtterance = errors.New("conversation: empty utterance")
)

// Stage names a step of the turn pipeline.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageRespond    Stage = "respond"
	StageSynthesize Stage = "synthesize"
	StagePlay       Stage = "play"
)

// StageError reports which step of a turn failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("conversation: %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Notice is a user-visible failure report, the equivalent of an alert.
type Notice struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

// detailer is implemented by errors that carry the gateway's details field.
type detailer interface {
	ErrorMessage() string
	ErrorDetails() string
}

// NoticeFor builds the notice shown for a failed stage.
func NoticeFor(stage Stage, err error) Notice {
	n := Notice{Stage: stage, Message: err.Error()}
	var d detailer
	if errors.As(err, &d) {
		n.Message = d.ErrorMessage()
		n.Details = d.ErrorDetails()
	}
	return n
}
