package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"gitea.jw6.us/james/almanac/internal/config"
	"gitea.jw6.us/james/almanac/internal/store"
)

const stateCookieName = "almanac_oauth_state"

// Service runs the OIDC authorization code flow and guards API routes with
// session authentication.
type Service struct {
	cfg      *config.Config
	store    *store.Store
	sessions *SessionManager
	logger   *slog.Logger

	verifier     *oidc.IDTokenVerifier
	oauth        oauth2.Config
	cookieSecure bool
}

func NewService(ctx context.Context, cfg *config.Config, st *store.Store, sessions *SessionManager, logger *slog.Logger) (*Service, error) {
	issuer := cfg.OAuth.IssuerURL
	if issuer == "" {
		issuer = strings.TrimSuffix(cfg.OAuth.DiscoveryURL, "/.well-known/openid-configuration")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	svc := &Service{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		logger:   logger,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OAuth.ClientID}),
		oauth: oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  strings.TrimSuffix(cfg.BaseURL, "/") + cfg.OAuth.RedirectPath,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		cookieSecure: sessions.secure,
	}
	return svc, nil
}

// BeginLogin redirects the browser to the identity provider with a signed
// state nonce bound to this browser via cookie.
func (s *Service) BeginLogin(w http.ResponseWriter, r *http.Request) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		s.logger.Error("generate oauth state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	nonce := base64.RawURLEncoding.EncodeToString(raw)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    nonce,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.oauth.AuthCodeURL(s.sessions.signState(nonce)), http.StatusFound)
}

// HandleCallback completes the code flow: it validates state, exchanges the
// code, verifies the ID token, upserts the user, and issues a session.
func (s *Service) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || !s.sessions.verifyState(stateCookie.Value, r.URL.Query().Get("state")) {
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cookieSecure,
	})

	token, err := s.oauth.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		s.logger.Warn("oauth code exchange failed", "error", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		s.logger.Warn("id token verification failed", "error", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		s.logger.Warn("id token claims decode failed", "error", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	user, err := s.store.Users.UpsertOAuthUser(ctx, idToken.Subject, claims.Email)
	if err != nil {
		s.logger.Error("upsert user after login", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.sessions.Issue(ctx, w, user.ID); err != nil {
		s.logger.Error("issue session", "error", err, "user_id", user.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout destroys the current session and clears the cookie.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(r.Context(), w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

// RequireSession loads the session user into the request context or rejects
// the request with a JSON 401.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, ok := s.sessions.Resolve(ctx, r)
		if !ok {
			unauthorized(w)
			return
		}

		user, err := s.store.Users.GetByID(ctx, sess.UserID)
		if err != nil {
			unauthorized(w)
			return
		}

		ctx = WithUser(ctx, user)
		ctx = WithSessionID(ctx, sess.TokenHash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}
