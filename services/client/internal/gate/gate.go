package gate

import (
	"encoding/json"
	"net/http"

	"bookfinder/services/client/internal/session"
)

// Decision is the outcome of evaluating a guarded navigation.
type Decision int

const (
	Pending Decision = iota
	Denied
	Admitted
)

func (d Decision) String() string {
	switch d {
	case Denied:
		return "denied"
	case Admitted:
		return "admitted"
	default:
		return "pending"
	}
}

// SignInPath is where denied navigation is sent.
const SignInPath = "/signin"

// Evaluate maps a session state to a decision.
func Evaluate(st session.State) Decision {
	switch {
	case !st.Ready:
		return Pending
	case !st.Session.IsPresent():
		return Denied
	default:
		return Admitted
	}
}

// StateSource is the read side of the session store.
type StateSource interface {
	Current() session.State
	Watch(fn func(session.State)) (unsubscribe func())
}

// Gate decides guarded navigation from the session store. It keeps no
// state of its own.
type Gate struct {
	source StateSource
}

func New(source StateSource) *Gate {
	return &Gate{source: source}
}

// Decision evaluates the current session.
func (g *Gate) Decision() Decision {
	return Evaluate(g.source.Current())
}

// Watch calls fn with the current decision, then again on every session
// change, in order.
func (g *Gate) Watch(fn func(Decision)) (unsubscribe func()) {
	return g.source.Watch(func(st session.State) {
		fn(Evaluate(st))
	})
}

// Guard admits requests only for a resolved, present session. While the
// session is pending it answers 503 with a waiting body; a denied request is
// redirected to SignInPath without remembering where it was headed.
func (g *Gate) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch g.Decision() {
		case Admitted:
			next.ServeHTTP(w, r)
		case Denied:
			http.Redirect(w, r, SignInPath, http.StatusSeeOther)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": Pending.String()})
		}
	})
}
