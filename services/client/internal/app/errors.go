package app

import (
	"errors"

	"bookfinder/services/client/internal/identity"
	"bookfinder/services/client/internal/transport"
)

var (
	ErrBookIDRequired = errors.New("book id is required")
	ErrEmailRequired  = errors.New("email is required")
)

const (
	MessageSearchFailed = "Failed to load results"
	MessageBookFailed   = "Failed to load book details"
)

// UserMessage returns the text to show for err. Transport and identity
// failures already carry a user-safe message; anything else gets fallback.
func UserMessage(err error, fallback string) string {
	var terr *transport.Error
	if errors.As(err, &terr) && terr.UserMessage != "" {
		return terr.UserMessage
	}
	var aerr *identity.AuthError
	if errors.As(err, &aerr) && aerr.Message != "" {
		return aerr.Message
	}
	return fallback
}
