package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type (
	// successResponse wraps the data of every successful call.
	successResponse struct {
		StatusCode int         `json:"statusCode"`
		Data       interface{} `json:"data"`
		Message    string      `json:"message"`
		Success    bool        `json:"success"`
	}

	// errorResponse is sent for every failure. Errors lists the invalid fields.
	errorResponse struct {
		StatusCode int               `json:"statusCode"`
		Message    string            `json:"message"`
		Success    bool              `json:"success"`
		Errors     map[string]string `json:"errors,omitempty"`
	}
)

func respond(ctx echo.Context, code int, data interface{}, message string) error {
	if message == "" {
		message = http.StatusText(code)
	}
	return ctx.JSON(code, successResponse{StatusCode: code, Data: data, Message: message, Success: true})
}

// respondWritten answers 201 when the record was created, 200 when an existing one was replaced.
func respondWritten(ctx echo.Context, created bool, data interface{}, createdMsg, updatedMsg string) error {
	if created {
		return respond(ctx, http.StatusCreated, data, createdMsg)
	}
	return respond(ctx, http.StatusOK, data, updatedMsg)
}
