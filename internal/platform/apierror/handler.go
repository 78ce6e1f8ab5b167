// Package apierror renders every failed request as one JSON error body.
package apierror

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	CodeUnknown    = "UNKNOWN_ERROR"
	CodeValidation = "VALIDATION_ERROR"
)

// Response is the error body returned to clients.
type Response struct {
	Timestamp        time.Time         `json:"timestamp"`
	Status           int               `json:"status"`
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	Path             string            `json:"path"`
	ErrorCode        string            `json:"errorCode"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

// Coded is implemented by errors that know their HTTP status and stable code.
type Coded interface {
	error
	StatusCode() int
	ErrorCode() string
}

// FieldErrorer is implemented by errors carrying per-field messages.
type FieldErrorer interface {
	FieldErrors() map[string]string
}

// PublicMessager lets an error hide wrapped detail from clients.
type PublicMessager interface {
	PublicMessage() string
}

// Build converts err into a Response for the given request path.
func Build(err error, path string) Response {
	resp := Response{
		Timestamp: time.Now().UTC(),
		Status:    http.StatusInternalServerError,
		Message:   "internal server error",
		Path:      path,
		ErrorCode: CodeUnknown,
	}

	var coded Coded
	var he *echo.HTTPError
	switch {
	case errors.As(err, &coded):
		resp.Status = coded.StatusCode()
		resp.ErrorCode = coded.ErrorCode()
		resp.Message = coded.Error()
		var pm PublicMessager
		if errors.As(err, &pm) {
			resp.Message = pm.PublicMessage()
		}
		var fe FieldErrorer
		if errors.As(err, &fe) {
			resp.ValidationErrors = fe.FieldErrors()
		}
	case errors.As(err, &he):
		resp.Status = he.Code
		resp.ErrorCode = codeForStatus(he.Code)
		if msg, ok := he.Message.(string); ok {
			resp.Message = msg
		} else {
			resp.Message = strings.ToLower(http.StatusText(he.Code))
		}
	}

	resp.Error = http.StatusText(resp.Status)
	if resp.ErrorCode == CodeValidation {
		resp.Error = "Validation Error"
	}
	return resp
}

// codeForStatus names transport-level failures that carry no domain code.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusInternalServerError:
		return CodeUnknown
	}
	text := http.StatusText(status)
	if text == "" {
		return CodeUnknown
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}

// Handler is an echo.HTTPErrorHandler. Server-side failures are logged with
// their full cause; the client only sees the public message.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		resp := Build(err, c.Request().URL.Path)
		if resp.Status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("error_code", resp.ErrorCode).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(resp.Status)
		} else {
			werr = c.JSON(resp.Status, resp)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
