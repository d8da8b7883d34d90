// Package httpx holds the Gin response-envelope helpers shared by every
// handler so callers get one consistent JSON shape across the API surface.
package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
)

// Envelope is the standard response body: {success, message, data}.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 success envelope.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Message writes a success envelope with only a message, no data.
func Message(c *gin.Context, status int, msg string) {
	c.JSON(status, Envelope{Success: true, Message: msg})
}

// Fail maps err to a status code and writes a failure envelope. Typed
// *apperr.Error values map via their Kind; anything else is treated as an
// unclassified internal error.
func Fail(c *gin.Context, err error) {
	if appErr, ok := apperr.As(err); ok {
		c.JSON(appErr.StatusCode(), Envelope{Success: false, Message: appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, Envelope{Success: false, Message: "internal server error"})
}
