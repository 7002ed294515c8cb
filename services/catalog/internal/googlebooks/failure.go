package googlebooks

import (
	"errors"
	"fmt"
	"net/http"

	"bookfinder/pkg/domain"
)

const (
	MessageSearchTimeout   = "Request to Google Books API timed out. Please try again."
	MessageSearchRateLimit = "Google Books API rate limit reached. Please try again later."
	MessageSearchConnect   = "Failed to connect to Google Books API."
)

// SearchFailure turns a failed search into the empty result the API
// answers with. The message tells the caller what went wrong upstream.
func SearchFailure(err error) domain.SearchResult {
	return domain.SearchResult{Total: 0, Items: []domain.Book{}, Error: searchFailureMessage(err)}
}

func searchFailureMessage(err error) string {
	if IsTimeout(err) {
		return MessageSearchTimeout
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests {
			return MessageSearchRateLimit
		}
		return fmt.Sprintf("HTTP error from Google Books API (status %d).", apiErr.Status)
	}
	return MessageSearchConnect
}
