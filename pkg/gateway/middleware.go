package gateway

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voicechat/pkg/metrics"
)

// accessLog logs each request and counts it by route and status. Errors
// are rendered here so the logged status is the one the client sees.
func (s *Server) accessLog() fiber.Handler {
	logger := s.logger.With("component", "gateway.http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		route := c.Route().Path
		metrics.RecordHTTPRequest(route, status)

		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		}
		switch {
		case status >= 500:
			logger.Error("request", attrs...)
		case route == "/healthz" || route == "/metrics":
			logger.Debug("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
		return nil
	}
}
