package web

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	users "github.com/goliatone/go-users"
)

// Severity of a flash message
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Flash is a message for the presentation layer to render
type Flash struct {
	Severity   Severity       `json:"severity"`
	MessageKey string         `json:"message_key"`
	Params     map[string]any `json:"params,omitempty"`
}

// Response is the JSON envelope of every endpoint
type Response struct {
	Success bool              `json:"success"`
	Flash   []Flash           `json:"flash,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Code    string            `json:"code,omitempty"`
}

func flash(severity Severity, key string, params ...map[string]any) Flash {
	f := Flash{Severity: severity, MessageKey: key}
	if len(params) > 0 {
		f.Params = params[0]
	}
	return f
}

func writeOK(c router.Context, status int, data any, messages ...Flash) error {
	return c.JSON(status, Response{
		Success: true,
		Flash:   messages,
		Data:    data,
	})
}

// writeError maps err to a status code and a flash message. The login
// rejections share one response.
func writeError(c router.Context, err error, logger users.Logger) error {
	if users.IsLoginRejection(err) {
		return c.JSON(http.StatusUnauthorized, Response{
			Flash: []Flash{flash(SeverityError, "login.invalid_credentials")},
			Code:  users.TextCodeInvalidCreds,
		})
	}

	// Bind surfaces body parser failures of the fiber adapter
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.JSON(fiberErr.Code, Response{
			Flash: []Flash{flash(SeverityError, "request.invalid")},
			Code:  users.TextCodeInvalidRequest,
		})
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		logger.Error("unexpected error", "error", err, "path", c.Path())
		return c.JSON(http.StatusInternalServerError, Response{
			Flash: []Flash{flash(SeverityError, "server.error")},
		})
	}

	status := statusFor(richErr)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "path", c.Path())
	}

	resp := Response{
		Code:  richErr.TextCode,
		Flash: []Flash{flash(SeverityError, messageKeyFor(richErr))},
	}

	if richErr.Category == goerrors.CategoryValidation {
		resp.Errors = richErr.ValidationMap()
	}

	return c.JSON(status, resp)
}

func statusFor(err *goerrors.Error) int {
	if err.Code >= 400 && err.Code < 600 {
		return err.Code
	}

	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var messageKeys = map[string]string{
	users.TextCodeInvalidRequest:   "request.invalid",
	users.TextCodeActivationFailed: "activation.failed",
	users.TextCodeDeliveryFailed:   "mail.delivery_failed",
	users.TextCodeNotAuthenticated: "session.required",
	users.TextCodeNotOwner:         "session.not_owner",
	users.TextCodeValidation:       "form.invalid",
	users.TextCodePersistence:      "server.error",
}

func messageKeyFor(err *goerrors.Error) string {
	if key, ok := messageKeys[err.TextCode]; ok {
		return key
	}
	if err.Category == goerrors.CategoryValidation {
		return "form.invalid"
	}
	return "server.error"
}
