package identity

import (
	"errors"
	"fmt"
	"net"
)

// Kind classifies authentication failures independently of the provider.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountExists      Kind = "account_exists"
	KindWeakCredential     Kind = "weak_credential"
	KindNetworkFailure     Kind = "network_failure"
	KindUnknown            Kind = "unknown"
)

// Op names a gateway operation; it selects the fallback message.
type Op string

const (
	OpSignUp        Op = "sign_up"
	OpSignIn        Op = "sign_in"
	OpPasswordReset Op = "password_reset"
	OpSignOut       Op = "sign_out"
	OpUpdateProfile Op = "update_profile"
)

var fallbackMessages = map[Op]string{
	OpSignUp:        "Sign up failed",
	OpSignIn:        "Sign in failed",
	OpPasswordReset: "Password reset failed",
	OpSignOut:       "Sign out failed",
	OpUpdateProfile: "Profile update failed",
}

// AuthError is the only error shape that leaves the gateway.
// Message is safe to show next to the form that triggered Op.
type AuthError struct {
	Kind    Kind
	Op      Op
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is matches another *AuthError by Kind, so errors.Is(err, &AuthError{Kind: ...}) works.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf returns the AuthError kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknown
}

// ProviderError is returned by Provider implementations for failures the
// provider itself reported. Code uses the provider's error codes.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity provider: %s: %s", e.Code, e.Message)
	}
	return "identity provider: " + e.Code
}

// Provider error codes understood by the gateway.
const (
	CodeEmailExists             = "EMAIL_EXISTS"
	CodeEmailNotFound           = "EMAIL_NOT_FOUND"
	CodeInvalidPassword         = "INVALID_PASSWORD"
	CodeInvalidLoginCredentials = "INVALID_LOGIN_CREDENTIALS"
	CodeInvalidEmail            = "INVALID_EMAIL"
	CodeUserDisabled            = "USER_DISABLED"
	CodeWeakPassword            = "WEAK_PASSWORD"
	CodeNetworkRequestFailed    = "NETWORK_REQUEST_FAILED"
)

func toAuthError(op Op, err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	out := &AuthError{Kind: KindUnknown, Op: op, Cause: err}
	var provErr *ProviderError
	var netErr net.Error
	switch {
	case errors.As(err, &provErr):
		out.Kind = kindForCode(provErr.Code)
		out.Message = provErr.Message
	case errors.As(err, &netErr):
		out.Kind = KindNetworkFailure
	}
	if out.Message == "" {
		out.Message = fallbackMessages[op]
	}
	return out
}

func kindForCode(code string) Kind {
	switch code {
	case CodeEmailNotFound, CodeInvalidPassword, CodeInvalidLoginCredentials, CodeInvalidEmail, CodeUserDisabled:
		return KindInvalidCredentials
	case CodeEmailExists:
		return KindAccountExists
	case CodeWeakPassword:
		return KindWeakCredential
	case CodeNetworkRequestFailed:
		return KindNetworkFailure
	default:
		return KindUnknown
	}
}
