package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lowfatcats/contentstore/pkg/content"
	"github.com/lowfatcats/contentstore/pkg/filter"
	"github.com/lowfatcats/contentstore/pkg/middleware/requestid"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeFiltered         = "content.filtered"
	CodeNotFound         = "content.not_found"
	CodeValidationFailed = "validation.failed"
	CodeConflict         = "content.conflict"
	CodeInvalidKey       = "content.invalid_key"
)

// ErrorResponse represents the consistent error response format.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// MapError maps service errors to an HTTP status and response body.
// Unrecognized errors become 500 without leaking their message.
func MapError(c *gin.Context, err error) (int, ErrorResponse) {
	resp := ErrorResponse{RequestID: requestid.Get(c)}

	var rejected *filter.RejectedError
	switch {
	case errors.As(err, &rejected):
		resp.Error, resp.Code, resp.Message = "unprocessable_entity", CodeFiltered, err.Error()
		resp.Details = map[string]any{"id": rejected.ID, "filter": rejected.Filter}
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, filter.ErrRejected):
		resp.Error, resp.Code, resp.Message = "unprocessable_entity", CodeFiltered, err.Error()
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, content.ErrUsage):
		resp.Error, resp.Code, resp.Message = "validation_error", CodeValidationFailed, err.Error()
		return http.StatusBadRequest, resp
	case errors.Is(err, document.ErrInvalidKey):
		resp.Error, resp.Code, resp.Message = "validation_error", CodeInvalidKey, err.Error()
		return http.StatusBadRequest, resp
	case errors.Is(err, document.ErrConditionFailed):
		resp.Error, resp.Code, resp.Message = "conflict", CodeConflict, "the write condition was not met"
		return http.StatusConflict, resp
	default:
		resp.Error, resp.Message = "internal_server_error", "an unexpected error occurred"
		return http.StatusInternalServerError, resp
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:     "not_found",
		Code:      CodeNotFound,
		Message:   "item not found",
		RequestID: requestid.Get(c),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     "validation_error",
		Code:      CodeValidationFailed,
		Message:   message,
		RequestID: requestid.Get(c),
	})
}
