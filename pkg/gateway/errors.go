package gateway

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voicechat/pkg/apierr"
	"github.com/teslashibe/go-voicechat/pkg/conversation"
	"github.com/teslashibe/go-voicechat/pkg/session"
)

// Messages for the session routes.
const (
	msgSessionNotFound = "Session not found"
	msgTurnInProgress  = "Turn already in progress"
	msgNoSpeech        = "No speech detected"
	msgNoAudio         = "No audio available"
)

// classify maps any error to the {error, details} taxonomy.
func classify(err error) *apierr.Error {
	if e := apierr.As(err); e != nil {
		return e
	}
	switch {
	case errors.Is(err, conversation.ErrTurnInProgress):
		return apierr.Conflict(msgTurnInProgress, err)
	case errors.Is(err, conversation.ErrEmptyUtterance):
		return apierr.InvalidInput(msgNoSpeech)
	case errors.Is(err, session.ErrNotFound):
		return apierr.NotFound(msgSessionNotFound)
	}
	return apierr.Internal(err)
}

// handleError is the fiber error handler. Handlers return errors and this
// renders them; no handler writes an error body itself.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
	}

	e := classify(err)
	if e.Kind == apierr.KindProvider {
		s.logger.Error("request failed",
			"path", c.Path(), "error", e.Message, "details", e.Details)
	}
	return c.Status(e.HTTPStatus()).JSON(e)
}
