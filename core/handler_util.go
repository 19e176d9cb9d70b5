package core

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondServiceError translates a domain error into the HTTP envelope.
// Anything unrecognized is an infrastructure failure: logged in full,
// surfaced as a generic 500.
func respondServiceError(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", ve.Message)
	case errors.Is(err, ErrUsernameTaken):
		respondError(c, http.StatusConflict, "CONFLICT", "username already exists")
	case errors.Is(err, ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
	case errors.Is(err, ErrOldPasswordIncorrect):
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "old password incorrect")
	case errors.Is(err, ErrUserNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
	case errors.Is(err, ErrTodoNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "todo not found")
	case errors.Is(err, ErrTodoForbidden):
		respondError(c, http.StatusForbidden, "FORBIDDEN", "no access to this todo")
	default:
		log.Printf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "unexpected error")
	}
}
