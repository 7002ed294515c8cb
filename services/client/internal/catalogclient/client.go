package catalogclient

import (
	"context"
	"net/url"

	"bookfinder/pkg/domain"
	"bookfinder/services/client/internal/transport"
)

// Getter is the transport capability the catalog client needs.
type Getter interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
}

// Client calls the catalog API.
type Client struct {
	transport Getter
}

// NewClient constructs a catalog client on top of a transport.
func NewClient(t Getter) *Client {
	return &Client{transport: t}
}

// Search runs a catalog search. Missing fields come back as an empty page.
func (c *Client) Search(ctx context.Context, query string) (domain.SearchResult, error) {
	var resp *domain.SearchResult
	if err := c.transport.GetJSON(ctx, "/api/books/search", url.Values{"q": {query}}, &resp); err != nil {
		return domain.SearchResult{Items: []domain.Book{}}, err
	}
	out := domain.SearchResult{Items: []domain.Book{}}
	if resp != nil {
		out.Total = resp.Total
		if resp.Items != nil {
			out.Items = resp.Items
		}
	}
	return out, nil
}

// GetByID fetches one book. A null payload yields a zero Book.
func (c *Client) GetByID(ctx context.Context, id string) (domain.Book, error) {
	var book *domain.Book
	if err := c.transport.GetJSON(ctx, "/api/books/"+url.PathEscape(id), nil, &book); err != nil {
		return domain.Book{}, err
	}
	if book == nil {
		return domain.Book{}, nil
	}
	return *book, nil
}

var _ Getter = (*transport.Client)(nil)
