// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

const (
	// HeaderRequestID is the HTTP header name for request ID
	HeaderRequestID = "X-Request-ID"
	// ContextKeyRequestID is the key used to store request ID in Fiber context
	ContextKeyRequestID = "request_id"
)

// RequestID takes the X-Request-ID header or generates one, echoes it in the
// response and carries it in the user context so database logs include it
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.Must(uuid.NewV4()).String()
		}

		c.Locals(ContextKeyRequestID, requestID)
		c.SetUserContext(log.WithRequestID(c.UserContext(), requestID))
		c.Set(HeaderRequestID, requestID)
		return c.Next()
	}
}

// GetRequestID retrieves the request ID from Fiber context
func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
