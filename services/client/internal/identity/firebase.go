package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"bookfinder/pkg/domain"
	"bookfinder/services/client/internal/dispatch"
)

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"

	refreshSkew    = time.Minute
	restoreTimeout = 10 * time.Second
)

// ErrPersistenceUnavailable is returned when durable persistence is requested
// but no credential store was configured.
var ErrPersistenceUnavailable = errors.New("durable persistence is not configured")

// FirebaseConfig configures the Firebase Auth REST provider.
// IdentityURL and TokenURL may point at the Auth emulator.
type FirebaseConfig struct {
	APIKey      string
	IdentityURL string
	TokenURL    string
	Store       CredentialStore
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// FirebaseProvider implements Provider on top of the Firebase Auth REST API.
type FirebaseProvider struct {
	apiKey      string
	identityURL string
	tokenURL    string
	httpClient  *http.Client
	durable     CredentialStore
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	cred      *Credential
	store     CredentialStore
	listeners map[uint64]*subscription
	nextID    uint64

	// persistMu keeps credential writes in change order.
	persistMu     sync.Mutex
	notifications dispatch.Queue
	initOnce      sync.Once
	ready         chan struct{}
}

type subscription struct {
	fn      func(*domain.User)
	removed bool
}

// NewFirebaseProvider builds a provider. Persistence starts in memory.
func NewFirebaseProvider(cfg FirebaseConfig) (*FirebaseProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("firebase api key is required")
	}
	identityURL := strings.TrimRight(strings.TrimSpace(cfg.IdentityURL), "/")
	if identityURL == "" {
		identityURL = DefaultIdentityURL
	}
	tokenURL := strings.TrimRight(strings.TrimSpace(cfg.TokenURL), "/")
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FirebaseProvider{
		apiKey:      apiKey,
		identityURL: identityURL,
		tokenURL:    tokenURL,
		httpClient:  httpClient,
		durable:     cfg.Store,
		logger:      logger,
		now:         time.Now,
		listeners:   make(map[uint64]*subscription),
		ready:       make(chan struct{}),
	}, nil
}

func (p *FirebaseProvider) CreateUser(ctx context.Context, email, password string) (domain.User, error) {
	payload := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	var resp accountResponse
	if err := p.call(ctx, "accounts:signUp", payload, &resp); err != nil {
		return domain.User{}, err
	}
	cred := p.credentialFrom(resp, nil)
	p.commit(&cred)
	return cred.User, nil
}

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	payload := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	var resp accountResponse
	if err := p.call(ctx, "accounts:signInWithPassword", payload, &resp); err != nil {
		return domain.User{}, err
	}
	cred := p.credentialFrom(resp, nil)
	p.commit(&cred)
	return cred.User, nil
}

func (p *FirebaseProvider) UpdateDisplayName(ctx context.Context, user domain.User, name string) (domain.User, error) {
	p.mu.Lock()
	var current *Credential
	if p.cred != nil && p.cred.User.ID == user.ID {
		cp := *p.cred
		current = &cp
	}
	p.mu.Unlock()
	if current == nil {
		return domain.User{}, &ProviderError{Code: "USER_MISMATCH", Message: "Sign in again to update your profile."}
	}
	payload := map[string]any{"idToken": current.IDToken, "displayName": name, "returnSecureToken": true}
	var resp accountResponse
	if err := p.call(ctx, "accounts:update", payload, &resp); err != nil {
		return domain.User{}, err
	}
	cred := p.credentialFrom(resp, current)
	if cred.User.DisplayName == "" {
		cred.User.DisplayName = name
	}
	p.commit(&cred)
	return cred.User, nil
}

func (p *FirebaseProvider) SendPasswordReset(ctx context.Context, email string) error {
	payload := map[string]any{"requestType": "PASSWORD_RESET", "email": email}
	return p.call(ctx, "accounts:sendOobCode", payload, nil)
}

// SignOut is local: it drops the credential and notifies listeners.
func (p *FirebaseProvider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.setCredential(nil)
}

func (p *FirebaseProvider) SetPersistence(ctx context.Context, mode Persistence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mode != PersistenceDurable {
		p.mu.Lock()
		p.store = nil
		p.mu.Unlock()
		return nil
	}
	if p.durable == nil {
		return ErrPersistenceUnavailable
	}
	if err := p.durable.Prepare(); err != nil {
		return err
	}
	p.mu.Lock()
	p.store = p.durable
	cred := p.cred
	p.mu.Unlock()
	if cred != nil {
		return p.durable.Save(*cred)
	}
	return nil
}

// OnStateChanged starts the initial check on first use. Each subscriber gets
// the state at the time the check completed, then every later change.
func (p *FirebaseProvider) OnStateChanged(fn func(*domain.User)) func() {
	p.initOnce.Do(func() { go p.restore() })

	sub := &subscription{fn: fn}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	go func() {
		<-p.ready
		p.mu.Lock()
		if sub.removed {
			p.mu.Unlock()
			return
		}
		p.listeners[id] = sub
		cred := p.cred
		p.notifications.Add(func() { p.deliver(sub, cred) })
		p.mu.Unlock()
		p.notifications.Drain()
	}()

	return func() {
		p.mu.Lock()
		sub.removed = true
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *FirebaseProvider) restore() {
	defer close(p.ready)
	p.mu.Lock()
	store := p.store
	p.mu.Unlock()
	if store == nil {
		return
	}
	cred, ok, err := store.Load()
	if err != nil {
		p.logger.Warn("load stored credential failed", "err", err)
		return
	}
	if !ok {
		return
	}
	if p.now().Add(refreshSkew).Before(cred.ExpiresAt) {
		p.adopt(cred)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	refreshed, err := p.refresh(ctx, cred)
	var provErr *ProviderError
	switch {
	case err == nil:
		p.adopt(refreshed)
		if err := store.Save(refreshed); err != nil {
			p.logger.Warn("persist refreshed credential failed", "err", err)
		}
	case errors.As(err, &provErr):
		p.logger.Info("stored credential rejected", "code", provErr.Code)
		if err := store.Clear(); err != nil {
			p.logger.Warn("clear stored credential failed", "err", err)
		}
	default:
		p.logger.Warn("refresh stored credential failed, keeping offline session", "err", err)
		p.adopt(cred)
	}
}

// adopt installs a restored credential unless a sign-in already replaced it.
func (p *FirebaseProvider) adopt(cred Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cred == nil {
		p.cred = &cred
	}
}

func (p *FirebaseProvider) refresh(ctx context.Context, cred Credential) (Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	endpoint := p.tokenURL + "/token?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var resp tokenResponse
	if err := p.do(req, &resp); err != nil {
		return Credential{}, err
	}
	return p.credentialFrom(accountResponse{
		LocalID:      resp.UserID,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
	}, &cred), nil
}

// commit stores a new credential after a successful provider call.
// A persistence failure keeps the in-memory session.
func (p *FirebaseProvider) commit(cred *Credential) {
	if err := p.setCredential(cred); err != nil {
		p.logger.Warn("persist credential failed", "err", err)
	}
}

func (p *FirebaseProvider) setCredential(cred *Credential) error {
	p.persistMu.Lock()
	p.mu.Lock()
	p.cred = cred
	store := p.store
	subs := make([]*subscription, 0, len(p.listeners))
	for _, sub := range p.listeners {
		subs = append(subs, sub)
	}
	p.notifications.Add(func() {
		for _, sub := range subs {
			p.deliver(sub, cred)
		}
	})
	p.mu.Unlock()

	var err error
	if store != nil {
		if cred == nil {
			err = store.Clear()
		} else {
			err = store.Save(*cred)
		}
	}
	p.persistMu.Unlock()

	p.notifications.Drain()
	return err
}

// deliver runs outside every provider lock, so listeners may call back in.
func (p *FirebaseProvider) deliver(sub *subscription, cred *Credential) {
	p.mu.Lock()
	removed := sub.removed
	p.mu.Unlock()
	if !removed {
		sub.fn(userOf(cred))
	}
}

func (p *FirebaseProvider) credentialFrom(resp accountResponse, prev *Credential) Credential {
	cred := Credential{IDToken: resp.IDToken, RefreshToken: resp.RefreshToken}
	if prev != nil {
		cred.User = prev.User
		if cred.IDToken == "" {
			cred.IDToken = prev.IDToken
			cred.ExpiresAt = prev.ExpiresAt
		}
		if cred.RefreshToken == "" {
			cred.RefreshToken = prev.RefreshToken
		}
	}
	if claims, err := parseIDToken(resp.IDToken); err == nil {
		fromToken := claims.user()
		if fromToken.ID != "" {
			cred.User.ID = fromToken.ID
		}
		if fromToken.Email != "" {
			cred.User.Email = fromToken.Email
		}
		if fromToken.DisplayName != "" {
			cred.User.DisplayName = fromToken.DisplayName
		}
		cred.ExpiresAt = claims.expiresAt()
	}
	if resp.LocalID != "" {
		cred.User.ID = resp.LocalID
	}
	if resp.Email != "" {
		cred.User.Email = resp.Email
	}
	if resp.DisplayName != "" {
		cred.User.DisplayName = resp.DisplayName
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.ExpiresIn)); err == nil && secs > 0 {
		cred.ExpiresAt = p.now().Add(time.Duration(secs) * time.Second)
	}
	return cred
}

func (p *FirebaseProvider) call(ctx context.Context, endpoint string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	target := p.identityURL + "/" + endpoint + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *FirebaseProvider) do(req *http.Request, out any) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
		return providerError(resp.StatusCode, errResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

// providerError turns a REST error message such as
// "WEAK_PASSWORD : Password should be at least 6 characters" into a ProviderError.
func providerError(status int, raw string) *ProviderError {
	code, detail, _ := strings.Cut(strings.TrimSpace(raw), " : ")
	code = strings.TrimSpace(code)
	if code == "" {
		code = http.StatusText(status)
	}
	return &ProviderError{Status: status, Code: code, Message: friendlyMessage(code, strings.TrimSpace(detail))}
}

func friendlyMessage(code, detail string) string {
	switch code {
	case CodeEmailExists:
		return "An account with this email already exists."
	case CodeEmailNotFound, CodeInvalidPassword, CodeInvalidLoginCredentials:
		return "Incorrect email address or password."
	case CodeInvalidEmail:
		return "Enter a valid email address."
	case CodeUserDisabled:
		return "This account has been disabled."
	case CodeWeakPassword:
		if detail != "" {
			return detail
		}
		return "Password is too weak."
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return "Too many attempts. Try again later."
	default:
		return detail
	}
}

func userOf(cred *Credential) *domain.User {
	if cred == nil {
		return nil
	}
	u := cred.User
	return &u
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}
