package core

import (
	"context"
	"regexp"
	"strings"
)

const (
	minPasswordLength = 6
	maxUsernameLength = 50
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// AuthService orchestrates registration, login, and password change over the
// credential store. It holds no mutable state of its own; every operation is
// a pure function over (input, store, hasher).
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
}

func NewAuthService(users UserRepository, hasher PasswordHasher) *AuthService {
	return &AuthService{users: users, hasher: hasher}
}

// Register creates a new credential record. The username is trimmed before
// validation and storage.
func (s *AuthService) Register(ctx context.Context, username, password string) (*UserRecord, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password, "password"); err != nil {
		return nil, err
	}

	// Fast pre-check for a friendly error; the unique constraint remains
	// the authority under concurrency.
	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	return s.users.Create(ctx, username, hash)
}

// Login verifies credentials and returns the stored record. An unknown
// username and a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (*UserRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, validationError("username must not be empty")
	}
	if strings.TrimSpace(password) == "" {
		return nil, validationError("password must not be empty")
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if err == ErrUserNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ChangePassword verifies the old password for username and stores a fresh
// hash of the new one. The username comes from an already-authenticated
// identity, so a missing record is an internal inconsistency, not a
// credential failure.
func (s *AuthService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword, "new password"); err != nil {
		return err
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(oldPassword, u.PasswordHash) {
		return ErrOldPasswordIncorrect
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, u.ID, hash)
}

// CurrentIdentity materializes the full record for a username taken from a
// verified token.
func (s *AuthService) CurrentIdentity(ctx context.Context, username string) (*UserRecord, error) {
	return s.users.FindByUsername(ctx, username)
}

func validateUsername(username string) error {
	if username == "" {
		return validationError("username must not be empty")
	}
	if len(username) > maxUsernameLength {
		return validationError("username must be at most 50 characters")
	}
	if !usernamePattern.MatchString(username) {
		return validationError("username may only contain letters, digits, and underscores")
	}
	return nil
}

func validatePassword(password, field string) error {
	if strings.TrimSpace(password) == "" {
		return validationError(field + " must not be empty")
	}
	if len(password) < minPasswordLength {
		return validationError(field + " must be at least 6 characters")
	}
	return nil
}
