package identity

import (
	"context"
	"fmt"
	"strings"

	"bookfinder/pkg/domain"
)

// Gateway adapts a Provider to sessions and AuthErrors.
type Gateway struct {
	provider Provider
}

// NewGateway wraps provider.
func NewGateway(provider Provider) *Gateway {
	return &Gateway{provider: provider}
}

// SignUpResult is the outcome of a sign-up whose account creation succeeded.
// ProfileErr is set when the display name could not be stored; the account
// exists regardless and is not rolled back.
type SignUpResult struct {
	Session    domain.Session
	ProfileErr *AuthError
}

// SignUp creates the account and then sets the trimmed display name.
// The returned error is non-nil only when account creation failed.
func (g *Gateway) SignUp(ctx context.Context, name, email, password string) (SignUpResult, error) {
	user, err := g.provider.CreateUser(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return SignUpResult{}, toAuthError(OpSignUp, err)
	}
	result := SignUpResult{Session: domain.SessionFor(&user)}
	name = strings.TrimSpace(name)
	if name == "" {
		return result, nil
	}
	updated, err := g.provider.UpdateDisplayName(ctx, user, name)
	if err != nil {
		result.ProfileErr = toAuthError(OpUpdateProfile, err)
		return result, nil
	}
	result.Session = domain.SessionFor(&updated)
	return result, nil
}

// SignIn authenticates with email and password.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	user, err := g.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return domain.Session{}, toAuthError(OpSignIn, err)
	}
	return domain.SessionFor(&user), nil
}

// RequestPasswordReset asks the provider to email a reset link.
func (g *Gateway) RequestPasswordReset(ctx context.Context, email string) error {
	if err := g.provider.SendPasswordReset(ctx, strings.TrimSpace(email)); err != nil {
		return toAuthError(OpPasswordReset, err)
	}
	return nil
}

// SignOut ends the provider session.
func (g *Gateway) SignOut(ctx context.Context) error {
	if err := g.provider.SignOut(ctx); err != nil {
		return toAuthError(OpSignOut, err)
	}
	return nil
}

// EnablePersistence switches the provider to durable persistence.
func (g *Gateway) EnablePersistence(ctx context.Context) error {
	if err := g.provider.SetPersistence(ctx, PersistenceDurable); err != nil {
		return fmt.Errorf("set durable persistence: %w", err)
	}
	return nil
}

// Subscribe forwards provider state changes as sessions.
func (g *Gateway) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	return g.provider.OnStateChanged(func(u *domain.User) {
		fn(domain.SessionFor(u))
	})
}
