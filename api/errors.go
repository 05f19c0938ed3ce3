package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"openfeeder-sidecar/models"
)

// Error codes for the OpenFeeder error envelope.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidURL    = "INVALID_URL"
	CodeInvalidParam  = "INVALID_PARAM"
	CodeInternalError = "INTERNAL_ERROR"
)

// writeError renders the OpenFeeder error envelope and aborts the handler
// chain.
func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Schema: openFeederSchema,
		Error:  models.ErrorDetail{Code: code, Message: message},
	})
	c.Abort()
}

func notFound(c *gin.Context, message string) {
	writeError(c, http.StatusNotFound, CodeNotFound, message)
}

func invalidURL(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, CodeInvalidURL, message)
}

func invalidParam(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, CodeInvalidParam, message)
}

func internalError(c *gin.Context, message string) {
	writeError(c, http.StatusInternalServerError, CodeInternalError, message)
}
