package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"bookfinder/internal/util"
	"bookfinder/pkg/domain"
	"bookfinder/services/client/internal/app"
	"bookfinder/services/client/internal/gate"
	"bookfinder/services/client/internal/identity"
	"bookfinder/services/client/internal/session"
)

const maxFormBytes = 1 << 16

// Application is what the pages need from the client core.
type Application interface {
	Session() session.State
	Gate() *gate.Gate
	Focus() bool
	SearchBooks(ctx context.Context, query string) (app.SearchPage, error)
	Book(ctx context.Context, id string) (domain.Book, error)
	SignUp(ctx context.Context, name, email, password string) (identity.SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (domain.Session, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	SignOut(ctx context.Context) error
}

// Config configures the HTTP server.
type Config struct {
	App Application
}

// Server renders the client pages as JSON documents.
type Server struct {
	app Application
	mux *http.ServeMux
}

func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{app: cfg.App, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Router returns the HTTP handler with request id, access log and
// security headers applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("client", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	// public
	s.mux.HandleFunc("GET /session", s.handleSession)
	s.mux.HandleFunc("POST /signin", s.handleSignIn)
	s.mux.HandleFunc("POST /signup", s.handleSignUp)
	s.mux.HandleFunc("POST /forgot", s.handleForgot)
	s.mux.HandleFunc("POST /signout", s.handleSignOut)
	s.mux.HandleFunc("POST /focus", s.handleFocus)
	s.mux.HandleFunc("GET /signin", s.handleFormPage("signin", "Sign in"))
	s.mux.HandleFunc("GET /signup", s.handleFormPage("signup", "Create account"))
	s.mux.HandleFunc("GET /forgot", s.handleFormPage("forgot", "Reset password"))

	// guarded
	guard := s.app.Gate().Guard
	s.mux.Handle("GET /{$}", guard(http.HandlerFunc(s.handleHome)))
	s.mux.Handle("GET /results", guard(http.HandlerFunc(s.handleResults)))
	s.mux.Handle("GET /books/{id}", guard(http.HandlerFunc(s.handleBook)))
}

type sessionResponse struct {
	Ready    bool         `json:"ready"`
	Decision string       `json:"decision"`
	User     *domain.User `json:"user"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	st := s.app.Session()
	writeJSON(w, http.StatusOK, sessionResponse{
		Ready:    st.Ready,
		Decision: gate.Evaluate(st).String(),
		User:     st.Session.User,
	})
}

func (s *Server) handleFormPage(form, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"form": form, "title": title})
	}
}

type authRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *domain.User `json:"user"`
	Error string       `json:"error,omitempty"`
	Info  string       `json:"info,omitempty"`
	Next  string       `json:"next,omitempty"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAuth(w, r)
	if !ok {
		return
	}
	sess, err := s.app.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "client.signin", "fail", "reason", string(identity.KindOf(err)))
		writeFormError(w, err, "Sign in failed")
		return
	}
	s.audit(r, "client.signin", "success", "user_id", sess.UserID())
	writeJSON(w, http.StatusOK, authResponse{User: sess.User, Next: "/"})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAuth(w, r)
	if !ok {
		return
	}
	res, err := s.app.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.audit(r, "client.signup", "fail", "reason", string(identity.KindOf(err)))
		writeFormError(w, err, "Sign up failed")
		return
	}
	s.audit(r, "client.signup", "success", "user_id", res.Session.UserID())
	resp := authResponse{User: res.Session.User, Next: "/"}
	if res.ProfileErr != nil {
		resp.Error = res.ProfileErr.Message
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleForgot(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAuth(w, r)
	if !ok {
		return
	}
	info, err := s.app.ForgotPassword(r.Context(), req.Email)
	if errors.Is(err, app.ErrEmailRequired) {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if err != nil {
		s.audit(r, "client.password_reset", "fail", "reason", string(identity.KindOf(err)))
		writeFormError(w, err, "Failed to send reset email")
		return
	}
	s.audit(r, "client.password_reset", "success")
	writeJSON(w, http.StatusOK, authResponse{Info: info})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.app.SignOut(r.Context()); err != nil {
		s.audit(r, "client.signout", "fail", "reason", string(identity.KindOf(err)))
		writeFormError(w, err, "Sign out failed")
		return
	}
	s.audit(r, "client.signout", "success")
	writeJSON(w, http.StatusOK, authResponse{Next: gate.SignInPath})
}

func (s *Server) handleFocus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"refetch": s.app.Focus()})
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   s.app.Session().Session.User,
		"search": "/results",
	})
}

type resultsResponse struct {
	Query  string        `json:"query"`
	Total  int           `json:"total"`
	Count  int           `json:"count"`
	Items  []domain.Book `json:"items"`
	Notice string        `json:"notice,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	page, err := s.app.SearchBooks(r.Context(), q)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("search failed", "query", page.Query, "err", err)
		writeJSON(w, http.StatusBadGateway, resultsResponse{
			Query: page.Query,
			Items: []domain.Book{},
			Error: app.UserMessage(err, app.MessageSearchFailed),
		})
		return
	}
	items := page.Result.Items
	if items == nil {
		items = []domain.Book{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{
		Query:  page.Query,
		Total:  page.Result.Total,
		Count:  len(items),
		Items:  items,
		Notice: page.Notice,
	})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	book, err := s.app.Book(r.Context(), id)
	if errors.Is(err, app.ErrBookIDRequired) {
		writeError(w, http.StatusBadRequest, app.NoticeNoDetails)
		return
	}
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("book lookup failed", "book_id", id, "err", err)
		writeError(w, http.StatusBadGateway, app.UserMessage(err, app.MessageBookFailed))
		return
	}
	if book.ID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"notice": app.NoticeNoDetails})
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func decodeAuth(w http.ResponseWriter, r *http.Request) (authRequest, bool) {
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFormBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	req.Email = strings.TrimSpace(req.Email)
	return req, true
}

// writeFormError reports an auth failure next to the form that caused it.
func writeFormError(w http.ResponseWriter, err error, fallback string) {
	status := http.StatusBadRequest
	switch identity.KindOf(err) {
	case identity.KindInvalidCredentials:
		status = http.StatusUnauthorized
	case identity.KindAccountExists:
		status = http.StatusConflict
	case identity.KindNetworkFailure:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, app.UserMessage(err, fallback))
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"client_ip", util.ClientIP(r, nil),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
