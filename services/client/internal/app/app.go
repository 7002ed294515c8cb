package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bookfinder/pkg/domain"
	"bookfinder/services/client/internal/catalogclient"
	"bookfinder/services/client/internal/gate"
	"bookfinder/services/client/internal/identity"
	"bookfinder/services/client/internal/querycache"
	"bookfinder/services/client/internal/session"
	"bookfinder/services/client/internal/transport"
)

const (
	NoticeEnterSearchTerm = "Please enter a search term."
	NoticeResetSent       = "If this address exists, a reset email was sent."
	NoticeNoDetails       = "No details found."
)

const (
	opSearch = "books"
	opBook   = "book"
)

// Catalog is the read surface of the catalog API.
type Catalog interface {
	Search(ctx context.Context, query string) (domain.SearchResult, error)
	GetByID(ctx context.Context, id string) (domain.Book, error)
}

// Config holds runtime configuration for the client application.
// A Query with all tuning fields zero means querycache.DefaultOptions;
// its Clock and Logger are kept either way.
type Config struct {
	Provider       identity.Provider
	Catalog        Catalog
	APIBaseURL     string
	RequestTimeout time.Duration
	Query          querycache.Options
	Logger         *slog.Logger
}

// App wires identity, session state, the route gate and catalog reads.
type App struct {
	gateway  *identity.Gateway
	sessions *session.Store
	gate     *gate.Gate
	catalog  Catalog
	cache    *querycache.Cache
	logger   *slog.Logger
}

// New constructs the application. Start must be called before the session
// state is meaningful.
func New(cfg Config) (*App, error) {
	if cfg.Provider == nil {
		return nil, errors.New("identity provider required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = transport.DefaultTimeout
		}
		tc := transport.New(cfg.APIBaseURL, transport.WithHTTPClient(&http.Client{Timeout: timeout}))
		catalog = catalogclient.NewClient(tc)
	}
	queryOpts := cfg.Query
	if unsetQueryTuning(queryOpts) {
		defaults := querycache.DefaultOptions()
		defaults.Clock, defaults.Logger = queryOpts.Clock, queryOpts.Logger
		queryOpts = defaults
	}
	if queryOpts.Logger == nil {
		queryOpts.Logger = logger
	}
	cache, err := querycache.New(queryOpts)
	if err != nil {
		return nil, fmt.Errorf("init query cache: %w", err)
	}
	gateway := identity.NewGateway(cfg.Provider)
	sessions := session.New(gateway, logger)
	return &App{
		gateway:  gateway,
		sessions: sessions,
		gate:     gate.New(sessions),
		catalog:  catalog,
		cache:    cache,
		logger:   logger,
	}, nil
}

func unsetQueryTuning(o querycache.Options) bool {
	return o.MaxRetries == 0 && o.StaleTime == 0 && o.Capacity == 0 && !o.RefetchOnFocus
}

// Start enables durable persistence and subscribes to identity changes.
func (a *App) Start(ctx context.Context) {
	a.sessions.Start(ctx)
}

// Close releases the identity subscription.
func (a *App) Close() {
	a.sessions.Close()
}

func (a *App) Sessions() *session.Store { return a.sessions }

func (a *App) Gate() *gate.Gate { return a.gate }

func (a *App) Cache() *querycache.Cache { return a.cache }

// Session returns the current session state.
func (a *App) Session() session.State {
	return a.sessions.Current()
}

// WaitReady blocks until the first identity notification arrived.
func (a *App) WaitReady(ctx context.Context) (session.State, error) {
	return a.sessions.WaitReady(ctx)
}

// SearchPage is what the results view renders.
type SearchPage struct {
	Query  string              `json:"query"`
	Result domain.SearchResult `json:"result"`
	Notice string              `json:"notice,omitempty"`
}

// Empty reports the empty-result state.
func (p SearchPage) Empty() bool {
	return len(p.Result.Items) == 0
}

// NoResultsNotice is shown when a search returned nothing.
func NoResultsNotice(query string) string {
	return "No results found for “" + query + "”."
}

// SearchBooks runs a cached catalog search. A blank query never reaches the
// catalog. An empty result is a normal page with a notice, not an error.
func (a *App) SearchBooks(ctx context.Context, query string) (SearchPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchPage{Result: domain.SearchResult{Items: []domain.Book{}}, Notice: NoticeEnterSearchTerm}, nil
	}
	res, err := querycache.Get(ctx, a.cache, SearchKey(query), func(ctx context.Context) (domain.SearchResult, error) {
		return a.catalog.Search(ctx, query)
	})
	if err != nil {
		return SearchPage{Query: query}, err
	}
	page := SearchPage{Query: query, Result: res}
	if page.Empty() {
		page.Notice = NoResultsNotice(query)
	}
	return page, nil
}

// Book returns one catalog item through the cache.
func (a *App) Book(ctx context.Context, id string) (domain.Book, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Book{}, ErrBookIDRequired
	}
	return querycache.Get(ctx, a.cache, BookKey(id), func(ctx context.Context) (domain.Book, error) {
		return a.catalog.GetByID(ctx, id)
	})
}

// SearchKey and BookKey name the cache entries for catalog reads.
func SearchKey(query string) querycache.RequestKey { return querycache.NewKey(opSearch, query) }

func BookKey(id string) querycache.RequestKey { return querycache.NewKey(opBook, id) }

// Focus forwards a "user returned" signal to the cache.
func (a *App) Focus() bool {
	return a.cache.Focus()
}

// SignUp creates an account. A failed display-name update is returned in
// the result, not as err.
func (a *App) SignUp(ctx context.Context, name, email, password string) (identity.SignUpResult, error) {
	res, err := a.gateway.SignUp(ctx, name, strings.TrimSpace(email), password)
	if err != nil {
		return res, err
	}
	if res.ProfileErr != nil {
		a.logger.Warn("display name not saved", "user_id", res.Session.UserID(), "err", res.ProfileErr)
	}
	return res, nil
}

func (a *App) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	return a.gateway.SignIn(ctx, strings.TrimSpace(email), password)
}

// ForgotPassword requests a reset email and returns the confirmation text.
func (a *App) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if err := a.gateway.RequestPasswordReset(ctx, email); err != nil {
		return "", err
	}
	return NoticeResetSent, nil
}

func (a *App) SignOut(ctx context.Context) error {
	return a.gateway.SignOut(ctx)
}
