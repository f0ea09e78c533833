package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/roastery/accounts/pkg/errors"
)

// Body is the JSON envelope shared by every endpoint: a human-readable
// message plus optional payload fields (token, path, exists).
type Body struct {
	Message string      `json:"message"`
	Token   string      `json:"token,omitempty"`
	Path    string      `json:"path,omitempty"`
	Exists  *bool       `json:"exists,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Message writes a success response carrying only a message.
func Message(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Body{Message: message})
}

// Token writes a success response carrying a bearer token.
func Token(c *gin.Context, message, token string) {
	c.JSON(http.StatusOK, Body{Message: message, Token: token})
}

// Path writes a success response carrying a stored file path.
func Path(c *gin.Context, message, path string) {
	c.JSON(http.StatusOK, Body{Message: message, Path: path})
}

// Exists writes the boolean payload used by the existence probe endpoint.
func Exists(c *gin.Context, exists bool) {
	c.JSON(http.StatusOK, Body{Message: "ok", Exists: &exists})
}

// Error writes a JSON error response derived from an AppError. Internal
// details never reach the client; callers log them separately.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Body{Message: appErr.Message})
}
