package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
)

// Response represents a standard API response
type Response struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError is one invalid request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error sends an error response
func Error(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest sends a 400 bad request response
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// FromError maps a pipeline error to its HTTP status: invalid parameters are
// 400, unusable input data 422, anything else 500
func FromError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verrs *apperr.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make([]FieldError, len(verrs.Errors))
		for i, e := range verrs.Errors {
			fields[i] = FieldError{Field: e.Field, Message: e.Message}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "invalid parameters",
			Errors:  fields,
		})
	case apperr.IsConfiguration(err):
		var ce *apperr.ConfigurationError
		errors.As(err, &ce)
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
			Errors:  []FieldError{{Field: ce.Field, Message: ce.Message}},
		})
	case apperr.IsDataQuality(err):
		Error(c, http.StatusUnprocessableEntity, err.Error())
	default:
		InternalError(c, err.Error())
	}
}
