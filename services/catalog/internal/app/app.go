package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"bookfinder/pkg/domain"
	"bookfinder/services/catalog/internal/cache"
	"bookfinder/services/catalog/internal/googlebooks"
)

const (
	SearchTTL       = 300 * time.Second
	SearchCacheSize = 100
	BookTTL         = 600 * time.Second
	BookCacheSize   = 200
)

var ErrBookIDRequired = errors.New("book id is required")

// Upstream is the volumes API.
type Upstream interface {
	Search(ctx context.Context, p googlebooks.SearchParams) (domain.SearchResult, error)
	Volume(ctx context.Context, id string) (domain.Book, error)
}

// Config holds runtime configuration for the catalog service.
type Config struct {
	Upstream Upstream
	Searches cache.Cache[domain.SearchResult]
	Books    cache.Cache[domain.Book]
	Logger   *slog.Logger
}

// App answers catalog reads from cache or the volumes API.
type App struct {
	upstream Upstream
	searches cache.Cache[domain.SearchResult]
	books    cache.Cache[domain.Book]
	group    singleflight.Group
	logger   *slog.Logger
}

// New constructs the service. Nil caches default to in-memory ones.
func New(cfg Config) (*App, error) {
	if cfg.Upstream == nil {
		return nil, errors.New("upstream required")
	}
	searches := cfg.Searches
	if searches == nil {
		searches = cache.NewMemory[domain.SearchResult](SearchCacheSize, SearchTTL)
	}
	books := cfg.Books
	if books == nil {
		books = cache.NewMemory[domain.Book](BookCacheSize, BookTTL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{upstream: cfg.Upstream, searches: searches, books: books, logger: logger}, nil
}

// Search returns one page of results. Upstream failures come back as an
// empty result carrying an error message and are not cached.
func (a *App) Search(ctx context.Context, p googlebooks.SearchParams) domain.SearchResult {
	p.Query = strings.TrimSpace(p.Query)
	key := p.CacheKey()
	if res, ok := cachedValue(ctx, a.logger, a.searches, key); ok {
		return res
	}
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := a.group.Do("search:"+key, func() (any, error) {
		res, err := a.upstream.Search(loadCtx, p)
		if err != nil {
			return nil, err
		}
		storeValue(loadCtx, a.logger, a.searches, key, res)
		return res, nil
	})
	if err != nil {
		a.logger.Warn("google books search failed", "query", p.Query, "err", err)
		return googlebooks.SearchFailure(err)
	}
	return v.(domain.SearchResult)
}

// Book returns one volume. Errors are returned unchanged.
func (a *App) Book(ctx context.Context, id string) (domain.Book, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Book{}, ErrBookIDRequired
	}
	if book, ok := cachedValue(ctx, a.logger, a.books, id); ok {
		return book, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := a.group.Do("book:"+id, func() (any, error) {
		book, err := a.upstream.Volume(loadCtx, id)
		if err != nil {
			return nil, err
		}
		storeValue(loadCtx, a.logger, a.books, id, book)
		return book, nil
	})
	if err != nil {
		a.logger.Warn("google books volume failed", "book_id", id, "err", err)
		return domain.Book{}, err
	}
	return v.(domain.Book), nil
}

// ClearSearches drops every cached search page.
func (a *App) ClearSearches(ctx context.Context) error {
	return a.searches.Purge(ctx)
}

func cachedValue[V any](ctx context.Context, logger *slog.Logger, c cache.Cache[V], key string) (V, bool) {
	v, ok, err := c.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed", "key", key, "err", err)
		return v, false
	}
	return v, ok
}

func storeValue[V any](ctx context.Context, logger *slog.Logger, c cache.Cache[V], key string, v V) {
	if err := c.Set(ctx, key, v); err != nil {
		logger.Warn("cache write failed", "key", key, "err", err)
	}
}
