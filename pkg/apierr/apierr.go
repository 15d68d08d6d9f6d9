// Package apierr defines the error body shared by the gateway, its clients
// and the conversation pipeline: {"error": message, "details": text}.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/stt"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

// Kind classifies a failure.
type Kind int

const (
	// KindProvider is an upstream provider failure.
	KindProvider Kind = iota
	// KindInvalidInput is a malformed or incomplete request.
	KindInvalidInput
	// KindUnconfigured means the provider credential is missing.
	KindUnconfigured
	// KindConflict means the target is busy.
	KindConflict
	// KindNotFound means the target does not exist.
	KindNotFound
)

// User-facing messages.
const (
	MsgAudioRequired   = "Audio file is required"
	MsgTextRequired    = "Text is required"
	MsgMessageRequired = "Message is required"
	MsgInvalidBody     = "Invalid request body"
	MsgUnconfigured    = "API key not configured"
	MsgSTTFailed       = "Failed to convert speech to text"
	MsgTTSFailed       = "Failed to generate speech"
	MsgChatFailed      = "Failed to get response from AI"
)

// Error is a failure that can be rendered as an HTTP error body.
type Error struct {
	Kind    Kind   `json:"-"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`

	// Status is the HTTP status the error was received with, when it came
	// from a remote gateway.
	Status int `json:"-"`

	cause error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// ErrorMessage returns the headline shown to the user.
func (e *Error) ErrorMessage() string { return e.Message }

// ErrorDetails returns the supporting text, possibly empty.
func (e *Error) ErrorDetails() string { return e.Details }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// InvalidInput builds a 400 error.
func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

// Unconfigured builds the missing-credential error.
func Unconfigured() *Error {
	return &Error{Kind: KindUnconfigured, Message: MsgUnconfigured}
}

// Conflict builds a 409 error.
func Conflict(msg string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: msg, cause: cause}
}

// NotFound builds a 404 error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindProvider, Message: "Internal server error", Details: err.Error(), cause: err}
}

// FromSTT converts a transcription failure.
func FromSTT(err error) *Error {
	if errors.Is(err, stt.ErrNoAPIKey) {
		return withCause(Unconfigured(), err)
	}
	if errors.Is(err, stt.ErrNoAudio) {
		return withCause(InvalidInput(MsgAudioRequired), err)
	}
	var apiErr *stt.APIError
	if errors.As(err, &apiErr) {
		return provider(MsgSTTFailed, elevenLabsDetails(apiErr.StatusCode, apiErr.Message), err)
	}
	return provider(MsgSTTFailed, rootCause(err), err)
}

// FromTTS converts a synthesis failure.
func FromTTS(err error) *Error {
	if errors.Is(err, tts.ErrNoAPIKey) {
		return withCause(Unconfigured(), err)
	}
	if errors.Is(err, tts.ErrEmptyText) {
		return withCause(InvalidInput(MsgTextRequired), err)
	}
	var apiErr *tts.APIError
	if errors.As(err, &apiErr) {
		return provider(MsgTTSFailed, elevenLabsDetails(apiErr.StatusCode, apiErr.Message), err)
	}
	return provider(MsgTTSFailed, rootCause(err), err)
}

// FromChat converts a chat completion failure. Details carry the
// provider's own message.
func FromChat(err error) *Error {
	if errors.Is(err, inference.ErrNoAPIKey) {
		return withCause(Unconfigured(), err)
	}
	if errors.Is(err, inference.ErrEmptyMessage) {
		return withCause(InvalidInput(MsgMessageRequired), err)
	}
	var apiErr *inference.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return provider(MsgChatFailed, apiErr.Message, err)
	}
	return provider(MsgChatFailed, rootCause(err), err)
}

// As returns err as an *Error, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

func elevenLabsDetails(status int, body string) string {
	return fmt.Sprintf("ElevenLabs API error: %d - %s", status, body)
}

func provider(msg, details string, cause error) *Error {
	return &Error{Kind: KindProvider, Message: msg, Details: details, cause: cause}
}

func withCause(e *Error, cause error) *Error {
	e.cause = cause
	return e
}

// rootCause strips provider wrappers so details read like the transport
// error itself.
func rootCause(err error) string {
	for {
		switch e := err.(type) {
		case *stt.ProviderError:
			err = e.Err
		case *tts.ProviderError:
			err = e.Err
		case *inference.ProviderError:
			err = e.Err
		default:
			return err.Error()
		}
	}
}
