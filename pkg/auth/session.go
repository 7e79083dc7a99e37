package auth

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/personakit/persona-engine/pkg/models"
)

// SessionName is the name of the owner browser session cookie.
const SessionName = "persona-session"

// Session value keys.
const (
	SessionKeyUsername = "username"
	SessionKeyAdmin    = "admin"
)

// SessionStore signs owner browser session cookies. The login flow that
// populates the session lives with the identity provider; the engine only
// reads it back into a principal.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore initializes the cookie-based session store.
//
// The secret parameter signs session cookies. It can be any passphrase - it
// is SHA-256 hashed to derive a 32-byte key - and must be consistent across
// server restarts and load-balanced instances.
//
// Security settings:
// - HttpOnly: true (inaccessible to JavaScript)
// - Secure derived from the deployment scheme
// - SameSite: Strict (prevents CSRF)
func NewSessionStore(secret string, secure bool) *SessionStore {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	return &SessionStore{store: store}
}

// Principal reads the principal out of the request's session cookie.
// Returns false if there is no valid session.
func (s *SessionStore) Principal(r *http.Request) (models.Principal, bool) {
	session, err := s.store.Get(r, SessionName)
	if err != nil || session.IsNew {
		return models.AnonymousPrincipal(), false
	}

	username, _ := session.Values[SessionKeyUsername].(string)
	if username == "" {
		return models.AnonymousPrincipal(), false
	}
	admin, _ := session.Values[SessionKeyAdmin].(bool)

	return models.Principal{Username: username, Admin: admin}, true
}

// Save writes the principal into the session cookie on the response.
func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, p models.Principal) error {
	session, _ := s.store.Get(r, SessionName)
	session.Values[SessionKeyUsername] = p.Username
	session.Values[SessionKeyAdmin] = p.Admin
	return session.Save(r, w)
}
