package core

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong
	// password. Both cases share the same value so a caller cannot tell
	// which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrOldPasswordIncorrect is returned when a password change supplies a
	// wrong current password.
	ErrOldPasswordIncorrect = errors.New("old password incorrect")

	// ErrUsernameTaken is returned when registration hits the unique
	// constraint on users.username.
	ErrUsernameTaken = errors.New("username exists")

	// ErrUserNotFound means an already-authenticated username no longer
	// resolves to a record.
	ErrUserNotFound = errors.New("user not found")

	// ErrTodoNotFound is returned when a todo id does not exist.
	ErrTodoNotFound = errors.New("todo not found")

	// ErrTodoForbidden is returned when a todo exists but belongs to
	// another user.
	ErrTodoForbidden = errors.New("todo belongs to another user")
)

// ValidationError reports malformed input (missing or too-short fields).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(msg string) error {
	return &ValidationError{Message: msg}
}
