package domain

// Book is the catalog record shape shared by the catalog API and the client.
type Book struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Description string   `json:"description,omitempty"`
}

// SearchResult is the payload of a catalog search.
// Error is set by the catalog API when the upstream lookup failed and the
// result was degraded to an empty page.
type SearchResult struct {
	Total int    `json:"total"`
	Items []Book `json:"items"`
	Error string `json:"error,omitempty"`
}

// User is an identity as reported by the identity provider.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Session is the current authenticated identity held by the client.
// The zero value is the absent session.
type Session struct {
	User *User `json:"user"`
}

// SessionFor returns a present session for u, or the absent session when u is nil.
func SessionFor(u *User) Session {
	if u == nil {
		return Session{}
	}
	cp := *u
	return Session{User: &cp}
}

// IsPresent reports whether a user is signed in.
func (s Session) IsPresent() bool {
	return s.User != nil
}

// UserID returns the signed-in user's id or "".
func (s Session) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}
