package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	applog "budget/internal/log"
	"budget/internal/services"
)

const (
	sessionCookie = "budget_session"
	flashCookie   = "budget_flash"

	// linkTokenParam carries the link token on GET links that change state.
	linkTokenParam  = "token"
	msgBadLinkToken = "Invalid or expired link, please try again"
)

type sessionKey struct{}

func withSession(ctx context.Context, s services.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// currentSession returns the session loaded for this request, if any.
func currentSession(ctx context.Context) (services.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(services.Session)
	return s, ok
}

// loadSession resolves the session cookie and stores the session in the
// request context. Stale cookies are cleared.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := s.auth.ResolveSession(r.Context(), c.Value)
		switch {
		case err == nil:
			r = r.WithContext(withSession(r.Context(), sess))
		case errors.Is(err, services.ErrNoSession):
			s.clearSessionCookie(w)
		default:
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to resolve session", applog.FieldError, err)
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession sends anonymous visitors to the login page.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentSession(r.Context()); !ok {
			redirect(w, r, "/login")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAPISession answers anonymous API calls with 401.
func (s *Server) requireAPISession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentSession(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// linkToken is an HMAC of the session token. The session cookie is HttpOnly,
// so another site cannot compute it and a cross-site link carries none.
func linkToken(sessionToken string) string {
	mac := hmac.New(sha256.New, []byte(sessionToken))
	mac.Write([]byte("state-changing-link"))
	return hex.EncodeToString(mac.Sum(nil))
}

// requireLinkToken guards the GET delete routes.
func (s *Server) requireLinkToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := currentSession(r.Context())
		got := r.URL.Query().Get(linkTokenParam)
		if !ok || !hmac.Equal([]byte(got), []byte(linkToken(sess.Token))) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected link without a valid token", "path", r.URL.Path)
			s.flashError(w, msgBadLinkToken)
			redirect(w, r, "/")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess services.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"k"` // "success" or "error"
	Message string `json:"m"`
}

func (s *Server) flash(w http.ResponseWriter, kind, msg string) {
	data, err := json.Marshal(Flash{Kind: kind, Message: msg})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) flashError(w http.ResponseWriter, msg string) {
	s.flash(w, "error", msg)
}

func (s *Server) flashSuccess(w http.ResponseWriter, msg string) {
	s.flash(w, "success", msg)
}

// popFlash reads and clears the pending flash, if any.
func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: s.cookieSecure, SameSite: http.SameSiteLaxMode})

	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(data, &f); err != nil || f.Message == "" {
		return nil
	}
	return &f
}
