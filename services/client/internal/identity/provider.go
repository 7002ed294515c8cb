package identity

import (
	"context"

	"bookfinder/pkg/domain"
)

// Persistence selects where the provider keeps the signed-in credential.
type Persistence int

const (
	// PersistenceMemory keeps the credential for the life of the process.
	PersistenceMemory Persistence = iota
	// PersistenceDurable keeps the credential across restarts.
	PersistenceDurable
)

func (p Persistence) String() string {
	if p == PersistenceDurable {
		return "durable"
	}
	return "memory"
}

// Provider is the capability surface of the external identity provider.
//
// OnStateChanged must deliver exactly one notification with the initial
// state once the provider finished its initial check, followed by one
// notification per sign-in, sign-out or profile change, in order.
// A nil user means signed out.
type Provider interface {
	CreateUser(ctx context.Context, email, password string) (domain.User, error)
	UpdateDisplayName(ctx context.Context, user domain.User, name string) (domain.User, error)
	SignIn(ctx context.Context, email, password string) (domain.User, error)
	SendPasswordReset(ctx context.Context, email string) error
	SignOut(ctx context.Context) error
	SetPersistence(ctx context.Context, mode Persistence) error
	OnStateChanged(fn func(*domain.User)) (unsubscribe func())
}
