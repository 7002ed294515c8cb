package googlebooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookfinder/pkg/domain"
)

const (
	DefaultBaseURL    = "https://www.googleapis.com/books/v1"
	DefaultMaxResults = 20
	// MaxResultsLimit is the largest page the volumes API serves.
	MaxResultsLimit = 40

	searchFields = "totalItems,items(id,volumeInfo/title,volumeInfo/authors,volumeInfo/imageLinks)"
	unknownTitle = "Unknown"
)

// APIError is a non-2xx answer from the volumes API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("google books: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("google books: status %d", e.Status)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SearchParams selects one page of a volumes search.
type SearchParams struct {
	Query      string
	StartIndex int
	MaxResults int
}

// CacheKey identifies the page for response caching.
func (p SearchParams) CacheKey() string {
	return strconv.Itoa(p.StartIndex) + ":" + strconv.Itoa(p.MaxResults) + ":" + p.Query
}

// Client calls the Google Books volumes API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a volumes API client. An empty apiKey uses the
// anonymous quota.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search runs a books-only volumes query.
func (c *Client) Search(ctx context.Context, p SearchParams) (domain.SearchResult, error) {
	if p.MaxResults <= 0 {
		p.MaxResults = DefaultMaxResults
	}
	q := url.Values{}
	q.Set("q", p.Query)
	q.Set("startIndex", strconv.Itoa(p.StartIndex))
	q.Set("maxResults", strconv.Itoa(p.MaxResults))
	q.Set("printType", "books")
	q.Set("fields", searchFields)

	var resp searchResponse
	if err := c.get(ctx, "/volumes", q, &resp); err != nil {
		return domain.SearchResult{}, err
	}
	items := make([]domain.Book, 0, len(resp.Items))
	for _, v := range resp.Items {
		items = append(items, v.book())
	}
	return domain.SearchResult{Total: resp.TotalItems, Items: items}, nil
}

// Volume fetches one volume with its cleaned description.
func (c *Client) Volume(ctx context.Context, id string) (domain.Book, error) {
	var v volume
	if err := c.get(ctx, "/volumes/"+url.PathEscape(id), nil, &v); err != nil {
		return domain.Book{}, err
	}
	book := v.book()
	book.Description = CleanDescription(v.VolumeInfo.Description)
	return book, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error.Message}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode google books response: %w", err)
	}
	return nil
}

type searchResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title       *string           `json:"title"`
	Authors     []string          `json:"authors"`
	Description string            `json:"description"`
	ImageLinks  map[string]string `json:"imageLinks"`
}

func (v volume) book() domain.Book {
	title := unknownTitle
	if v.VolumeInfo.Title != nil {
		title = *v.VolumeInfo.Title
	}
	authors := v.VolumeInfo.Authors
	if authors == nil {
		authors = []string{}
	}
	return domain.Book{
		ID:        v.ID,
		Title:     title,
		Authors:   authors,
		Thumbnail: PickImage(v.VolumeInfo.ImageLinks),
	}
}

var imageSizes = []string{"extraLarge", "large", "medium", "small", "thumbnail", "smallThumbnail"}

// PickImage returns the largest available cover link, upgraded to https.
func PickImage(links map[string]string) string {
	for _, size := range imageSizes {
		if link := links[size]; link != "" {
			return strings.Replace(link, "http://", "https://", 1)
		}
	}
	return ""
}
