package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoSession means the request carries no active authorized subject.
var ErrNoSession = errors.New("no active session")

// DefaultCookieName is the session cookie set by the login service.
const DefaultCookieName = "waterwise.sid"

// Identity is the authorized subject. SubjectID is used for audit only.
type Identity struct {
	SubjectID string
}

// Authorizer answers whether a request belongs to an authorized subject.
// It returns ErrNoSession for anonymous or expired callers; any other error
// means the session backend could not be consulted.
type Authorizer interface {
	Authorize(r *http.Request) (Identity, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(r *http.Request) (Identity, error)

func (f AuthorizerFunc) Authorize(r *http.Request) (Identity, error) { return f(r) }

// CookieConfig controls how the session id is read from the request.
type CookieConfig struct {
	Name string
	// Secret verifies "s:<sid>.<sig>" signed cookies. Empty accepts the sid unverified.
	Secret string
}

// SessionID extracts the session id from the configured cookie.
func (c CookieConfig) SessionID(r *http.Request) (string, bool) {
	name := c.Name
	if name == "" {
		name = DefaultCookieName
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", false
	}

	if !strings.HasPrefix(raw, "s:") {
		if c.Secret != "" {
			return "", false
		}
		return raw, true
	}

	signed := strings.TrimPrefix(raw, "s:")
	dot := strings.LastIndex(signed, ".")
	if dot <= 0 {
		return "", false
	}
	sid, sig := signed[:dot], signed[dot+1:]
	if c.Secret != "" && !hmac.Equal([]byte(sig), []byte(Sign(sid, c.Secret))) {
		return "", false
	}
	return sid, true
}

// Sign produces the cookie signature for sid: base64 HMAC-SHA256 without padding.
func Sign(sid, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sid))
	return strings.TrimRight(base64.StdEncoding.EncodeToString(mac.Sum(nil)), "=")
}

// stored is the subset of the session document the service reads.
type stored struct {
	UserID json.RawMessage `json:"userId"`
}

// subjectFromDocument pulls userId out of a stored session document.
func subjectFromDocument(doc []byte) (string, error) {
	var s stored
	if err := json.Unmarshal(doc, &s); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	raw := strings.TrimSpace(string(s.UserID))
	if raw == "" || raw == "null" || raw == `""` {
		return "", ErrNoSession
	}
	var str string
	if err := json.Unmarshal(s.UserID, &str); err == nil {
		return str, nil
	}
	return raw, nil
}
