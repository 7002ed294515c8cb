// Package identitytest provides an in-memory identity.Provider for tests.
package identitytest

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"bookfinder/pkg/domain"
	"bookfinder/services/client/internal/dispatch"
	"bookfinder/services/client/internal/identity"
)

// Provider keeps accounts in memory. Notifications are delivered before the
// triggering call returns, unless that call came from inside a listener; then
// it is delivered right after the running listener finishes. Every listener
// receives the current state as soon as it subscribes.
type Provider struct {
	// Fail* make the matching call fail with the given error.
	FailCreate  error
	FailUpdate  error
	FailSignIn  error
	FailReset   error
	FailSignOut error
	FailPersist error

	mu          sync.Mutex
	queue       dispatch.Queue
	accounts    map[string]account
	current     *domain.User
	listeners   map[int]func(*domain.User)
	nextID      int
	resets      []string
	persistence identity.Persistence
}

type account struct {
	user     domain.User
	password string
}

func New() *Provider {
	return &Provider{
		accounts:  make(map[string]account),
		listeners: make(map[int]func(*domain.User)),
	}
}

// AddAccount registers an existing account.
func (p *Provider) AddAccount(email, password, name string) domain.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := domain.User{ID: "u" + strconv.Itoa(len(p.accounts)+1), Email: email, DisplayName: name}
	p.accounts[email] = account{user: u, password: password}
	return u
}

func (p *Provider) CreateUser(_ context.Context, email, password string) (domain.User, error) {
	if p.FailCreate != nil {
		return domain.User{}, p.FailCreate
	}
	p.mu.Lock()
	if _, ok := p.accounts[email]; ok {
		p.mu.Unlock()
		return domain.User{}, &identity.ProviderError{Status: 400, Code: identity.CodeEmailExists, Message: "An account with this email already exists."}
	}
	if len(password) < 6 {
		p.mu.Unlock()
		return domain.User{}, &identity.ProviderError{Status: 400, Code: identity.CodeWeakPassword, Message: "Password should be at least 6 characters"}
	}
	p.mu.Unlock()
	u := p.AddAccount(email, password, "")
	p.set(&u)
	return u, nil
}

func (p *Provider) UpdateDisplayName(_ context.Context, user domain.User, name string) (domain.User, error) {
	if p.FailUpdate != nil {
		return domain.User{}, p.FailUpdate
	}
	p.mu.Lock()
	acc := p.accounts[user.Email]
	acc.user.DisplayName = name
	p.accounts[user.Email] = acc
	p.mu.Unlock()
	p.set(&acc.user)
	return acc.user, nil
}

func (p *Provider) SignIn(_ context.Context, email, password string) (domain.User, error) {
	if p.FailSignIn != nil {
		return domain.User{}, p.FailSignIn
	}
	p.mu.Lock()
	acc, ok := p.accounts[email]
	p.mu.Unlock()
	if !ok || acc.password != password {
		return domain.User{}, &identity.ProviderError{Status: 400, Code: identity.CodeInvalidLoginCredentials, Message: "Incorrect email address or password."}
	}
	p.set(&acc.user)
	return acc.user, nil
}

func (p *Provider) SendPasswordReset(_ context.Context, email string) error {
	if p.FailReset != nil {
		return p.FailReset
	}
	p.mu.Lock()
	p.resets = append(p.resets, email)
	p.mu.Unlock()
	return nil
}

func (p *Provider) SignOut(context.Context) error {
	if p.FailSignOut != nil {
		return p.FailSignOut
	}
	p.set(nil)
	return nil
}

func (p *Provider) SetPersistence(_ context.Context, mode identity.Persistence) error {
	if p.FailPersist != nil {
		return p.FailPersist
	}
	p.mu.Lock()
	p.persistence = mode
	p.mu.Unlock()
	return nil
}

func (p *Provider) OnStateChanged(fn func(*domain.User)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	cur := copyUser(p.current)
	p.queue.Add(func() { p.deliver(id, cur) })
	p.mu.Unlock()
	p.queue.Drain()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Resets returns the addresses password resets were sent to.
func (p *Provider) Resets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.resets...)
}

// Persistence returns the last persistence mode set.
func (p *Provider) Persistence() identity.Persistence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.persistence
}

// Emit pushes a state change to every listener, as a provider-side
// sign-in or sign-out would.
func (p *Provider) Emit(u *domain.User) {
	p.set(u)
}

func (p *Provider) set(u *domain.User) {
	p.mu.Lock()
	p.current = copyUser(u)
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	cur := copyUser(u)
	p.queue.Add(func() {
		for _, id := range ids {
			p.deliver(id, cur)
		}
	})
	p.mu.Unlock()
	p.queue.Drain()
}

// deliver skips listeners removed since the change was queued.
func (p *Provider) deliver(id int, u *domain.User) {
	p.mu.Lock()
	fn, ok := p.listeners[id]
	p.mu.Unlock()
	if ok {
		fn(copyUser(u))
	}
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

var _ identity.Provider = (*Provider)(nil)
