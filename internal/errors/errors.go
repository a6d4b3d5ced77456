// Package errors provides the JSON error envelope returned by the HTTP
// trigger surface when a run fails.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ashenomo/tomigaya/internal/middleware"
)

// Error codes for failed runs.
const (
	ErrBadRequest     = "BAD_REQUEST"
	ErrValidation     = "VALIDATION_ERROR"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
	ErrFetchFailure   = "FETCH_FAILURE"
	ErrExportFailure  = "EXPORT_FAILURE"
)

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// BadRequest sends a 400 response with the given message.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	requestID := middleware.GetRequestID(c)

	if log := middleware.GetLogger(c); log != nil {
		fields := map[string]interface{}{
			"message": message,
			"path":    c.Request.URL.Path,
		}
		if details != nil {
			fields["details"] = details
		}
		log.Warn("bad request", fields)
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:      ErrBadRequest,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}

// RunFailure sends a 500 response for a failed scrape run. The error is
// logged with full context; the client only sees the code and message.
func RunFailure(c *gin.Context, code, message string, err error) {
	requestID := middleware.GetRequestID(c)

	if log := middleware.GetLogger(c); log != nil {
		log.Error("run failed", err, map[string]interface{}{
			"code":    code,
			"message": message,
			"path":    c.Request.URL.Path,
		})
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// ValidationError sends a 400 response with field-specific validation
// messages.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	requestID := middleware.GetRequestID(c)

	details := make(map[string]interface{}, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = formatValidationError(fieldErr)
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Warn("validation error", map[string]interface{}{
			"path":   c.Request.URL.Path,
			"fields": details,
		})
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:      ErrValidation,
			Message:   "Validation failed for one or more fields",
			Details:   details,
			RequestID: requestID,
		},
	})
}

func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "hostname":
		return "Must be a valid hostname"
	case "startswith":
		return "Must start with " + err.Param()
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}
