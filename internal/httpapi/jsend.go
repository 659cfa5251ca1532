package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/content"
)

type jsendResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, jsendResponse{
		Status: "success",
		Data:   data,
	})
}

func successWithStatus(c echo.Context, code int, data any) error {
	return c.JSON(code, jsendResponse{
		Status: "success",
		Data:   data,
	})
}

func fail(c echo.Context, code int, message string, data any) error {
	resp := jsendResponse{
		Status:  "fail",
		Message: message,
	}
	if data != nil {
		resp.Data = data
	}
	return c.JSON(code, resp)
}

func failValidation(c echo.Context, fieldErrors map[string]string) error {
	return fail(c, http.StatusBadRequest, "Validation failed", map[string]any{
		"validation_errors": fieldErrors,
	})
}

func failNotFound(c echo.Context, message string) error {
	return fail(c, http.StatusNotFound, message, nil)
}

func internalError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, jsendResponse{
		Status:  "error",
		Message: message,
		Code:    http.StatusInternalServerError,
	})
}

func unauthorized(c echo.Context, message string) error {
	return fail(c, http.StatusUnauthorized, message, nil)
}

func statusForKind(kind content.Kind) int {
	switch kind {
	case content.KindNotFound:
		return http.StatusNotFound
	case content.KindValidation:
		return http.StatusBadRequest
	case content.KindPermissionDenied:
		return http.StatusForbidden
	case content.KindConflict:
		return http.StatusConflict
	case content.KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// respondError renders a service error. Typed client errors become JSend
// fail bodies carrying their details; everything else is logged and hidden.
func (s *Server) respondError(c echo.Context, err error, action string) error {
	typed, ok := content.AsError(err)
	if !ok || statusForKind(typed.Kind) >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("action", action).Msg("request failed")
		return internalError(c, fmt.Sprintf("Failed to %s", action))
	}
	var data any
	if len(typed.Details) > 0 {
		data = typed.Details
	}
	return fail(c, statusForKind(typed.Kind), typed.Message, data)
}

func decodeJSONBody(c echo.Context, target any) error {
	if c.Request().Body == nil {
		return fmt.Errorf("request body is required")
	}
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
