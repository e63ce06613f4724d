package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, errorEnvelope(code, err))
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// abortError stops the handler chain with an error envelope.
func abortError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, errorEnvelope(code, err))
}

func errorEnvelope(code string, err error) ErrorEnvelope {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	}
}
