package identity

import (
	"context"
	"errors"
	"net"
	"testing"

	"bookfinder/pkg/domain"
)

type fakeProvider struct {
	createErr  error
	updateErr  error
	signInErr  error
	resetErr   error
	signOutErr error

	updatedNames []string
	persistence  Persistence
}

func (f *fakeProvider) CreateUser(_ context.Context, email, _ string) (domain.User, error) {
	if f.createErr != nil {
		return domain.User{}, f.createErr
	}
	return domain.User{ID: "u1", Email: email}, nil
}

func (f *fakeProvider) UpdateDisplayName(_ context.Context, user domain.User, name string) (domain.User, error) {
	f.updatedNames = append(f.updatedNames, name)
	if f.updateErr != nil {
		return domain.User{}, f.updateErr
	}
	user.DisplayName = name
	return user, nil
}

func (f *fakeProvider) SignIn(_ context.Context, email, _ string) (domain.User, error) {
	if f.signInErr != nil {
		return domain.User{}, f.signInErr
	}
	return domain.User{ID: "u1", Email: email}, nil
}

func (f *fakeProvider) SendPasswordReset(context.Context, string) error { return f.resetErr }

func (f *fakeProvider) SignOut(context.Context) error { return f.signOutErr }

func (f *fakeProvider) SetPersistence(_ context.Context, mode Persistence) error {
	f.persistence = mode
	return nil
}

func (f *fakeProvider) OnStateChanged(fn func(*domain.User)) func() {
	fn(&domain.User{ID: "u1"})
	return func() {}
}

func TestSignUpKeepsAccountWhenDisplayNameFails(t *testing.T) {
	provider := &fakeProvider{updateErr: &ProviderError{Status: 503, Code: "UNAVAILABLE"}}
	gw := NewGateway(provider)

	result, err := gw.SignUp(context.Background(), "  Ada  ", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("account creation should be reported as success, got %v", err)
	}
	if !result.Session.IsPresent() || result.Session.UserID() != "u1" {
		t.Fatalf("expected present session for created account, got %+v", result.Session)
	}
	if result.ProfileErr == nil {
		t.Fatalf("expected display-name failure to be reported")
	}
	if result.ProfileErr.Op != OpUpdateProfile || result.ProfileErr.Message != "Profile update failed" {
		t.Fatalf("unexpected profile error: %+v", result.ProfileErr)
	}
	if len(provider.updatedNames) != 1 || provider.updatedNames[0] != "Ada" {
		t.Fatalf("expected trimmed name update, got %v", provider.updatedNames)
	}
}

func TestSignUpSkipsBlankDisplayName(t *testing.T) {
	provider := &fakeProvider{}
	result, err := NewGateway(provider).SignUp(context.Background(), "   ", "a@example.com", "secret1")
	if err != nil || result.ProfileErr != nil {
		t.Fatalf("unexpected failure: %v %v", err, result.ProfileErr)
	}
	if len(provider.updatedNames) != 0 {
		t.Fatalf("display name should not be updated for blank names")
	}
}

func TestSignUpSetsDisplayName(t *testing.T) {
	result, err := NewGateway(&fakeProvider{}).SignUp(context.Background(), "Ada", "a@example.com", "secret1")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if result.Session.User.DisplayName != "Ada" {
		t.Fatalf("display name = %q", result.Session.User.DisplayName)
	}
}

func TestGatewayMapsProviderErrors(t *testing.T) {
	cases := []struct {
		name    string
		call    func(*Gateway) error
		kind    Kind
		message string
	}{
		{
			name: "account exists",
			call: func(g *Gateway) error {
				_, err := g.SignUp(context.Background(), "", "a@example.com", "x")
				return err
			},
			kind:    KindAccountExists,
			message: "An account with this email already exists.",
		},
		{
			name: "wrong password",
			call: func(g *Gateway) error {
				_, err := g.SignIn(context.Background(), "a@example.com", "x")
				return err
			},
			kind:    KindInvalidCredentials,
			message: "Incorrect email address or password.",
		},
		{
			name:    "reset without provider message",
			call:    func(g *Gateway) error { return g.RequestPasswordReset(context.Background(), "a@example.com") },
			kind:    KindUnknown,
			message: "Password reset failed",
		},
		{
			name:    "sign out plain error",
			call:    func(g *Gateway) error { return g.SignOut(context.Background()) },
			kind:    KindUnknown,
			message: "Sign out failed",
		},
	}
	provider := &fakeProvider{
		createErr:  providerError(400, "EMAIL_EXISTS"),
		signInErr:  providerError(400, "INVALID_LOGIN_CREDENTIALS"),
		resetErr:   &ProviderError{Status: 500, Code: "INTERNAL"},
		signOutErr: errors.New("disk full"),
	}
	gw := NewGateway(provider)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call(gw)
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *AuthError, got %T %v", err, err)
			}
			if authErr.Kind != tc.kind || authErr.Message != tc.message {
				t.Fatalf("got kind=%s message=%q, want kind=%s message=%q", authErr.Kind, authErr.Message, tc.kind, tc.message)
			}
		})
	}
}

func TestToAuthErrorClassifiesNetworkFailures(t *testing.T) {
	err := toAuthError(OpSignIn, &net.OpError{Op: "dial", Err: errors.New("connection refused")})
	if err.Kind != KindNetworkFailure || err.Message != "Sign in failed" {
		t.Fatalf("unexpected mapping: %+v", err)
	}
	if !errors.Is(err, &AuthError{Kind: KindNetworkFailure}) {
		t.Fatalf("expected errors.Is to match by kind")
	}
}

func TestWeakPasswordUsesProviderDetail(t *testing.T) {
	err := toAuthError(OpSignUp, providerError(400, "WEAK_PASSWORD : Password should be at least 6 characters"))
	if err.Kind != KindWeakCredential || err.Message != "Password should be at least 6 characters" {
		t.Fatalf("unexpected mapping: %+v", err)
	}
}

func TestEnablePersistenceRequestsDurableMode(t *testing.T) {
	provider := &fakeProvider{}
	if err := NewGateway(provider).EnablePersistence(context.Background()); err != nil {
		t.Fatalf("enable persistence: %v", err)
	}
	if provider.persistence != PersistenceDurable {
		t.Fatalf("persistence = %v", provider.persistence)
	}
}
