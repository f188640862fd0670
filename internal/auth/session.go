package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/crypto/hkdf"

	"gitea.jw6.us/james/almanac/internal/config"
	"gitea.jw6.us/james/almanac/internal/store"
)

const sessionCookieName = "almanac_session"

// SessionManager issues and resolves opaque browser sessions. The cookie
// carries a random token; only its SHA-256 hash is persisted, so a database
// leak does not expose usable credentials.
type SessionManager struct {
	sessions store.SessionRepository
	ttl      time.Duration
	stateKey []byte
	secure   bool
}

func NewSessionManager(cfg *config.Config, sessions store.SessionRepository) (*SessionManager, error) {
	// The state-signing key is derived from the session secret so operators
	// only manage a single secret.
	kdf := hkdf.New(sha256.New, []byte(cfg.Session.Secret), nil, []byte("almanac oauth state"))
	stateKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, stateKey); err != nil {
		return nil, fmt.Errorf("derive state key: %w", err)
	}

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{
		sessions: sessions,
		ttl:      cfg.Session.TTL,
		stateKey: stateKey,
		secure:   secure,
	}, nil
}

// Issue creates a session row for the user and sets the session cookie.
func (m *SessionManager) Issue(ctx context.Context, w http.ResponseWriter, userID int64) error {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	expiresAt := time.Now().Add(m.ttl)
	if _, err := m.sessions.Create(ctx, userID, HashToken(token), expiresAt); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Resolve returns the persisted session for the request cookie, if any.
func (m *SessionManager) Resolve(ctx context.Context, r *http.Request) (*store.Session, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}

	sess, err := m.sessions.GetByTokenHash(ctx, HashToken(c.Value))
	if err != nil {
		return nil, false
	}
	return sess, true
}

// Clear deletes the session row behind the request cookie and expires the
// cookie on the client.
func (m *SessionManager) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		_ = m.sessions.DeleteByTokenHash(ctx, HashToken(c.Value))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// HashToken maps a raw session token to the hash stored in the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// signState returns the HMAC tag for an OAuth state nonce.
func (m *SessionManager) signState(nonce string) string {
	mac := hmac.New(sha256.New, m.stateKey)
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyState reports whether the tag was produced by signState for nonce.
func (m *SessionManager) verifyState(nonce, tag string) bool {
	got, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, m.stateKey)
	mac.Write([]byte(nonce))
	return hmac.Equal(mac.Sum(nil), got)
}
