package http

import (
	"errors"
	"net/http"
	"sync/atomic"

	"budget/internal/core"
	applog "budget/internal/log"
	"budget/internal/services"
)

type authForm struct {
	Username string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentSession(r.Context()); ok {
		redirect(w, r, "/")
		return
	}
	s.render(w, r, "login.html", "Login", authForm{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.flashError(w, "Invalid request")
		redirect(w, r, "/login")
		return
	}
	username := formString(r.PostForm, "username")
	password := r.PostForm.Get("password")

	u, err := s.auth.Login(r.Context(), username, password)
	if err != nil {
		s.countLogin(false)
		if !errors.Is(err, services.ErrInvalidCredentials) {
			s.errors.LogError(r.Context(), "Login failed", err, applog.OpLogin,
				applog.NewFields().WithComponent(applog.ComponentAuth))
		}
		s.flashError(w, "Invalid credentials")
		redirect(w, r, "/login")
		return
	}

	sess, err := s.auth.StartSession(r.Context(), u)
	if err != nil {
		s.errors.LogError(r.Context(), "Failed to start session", err, applog.OpLogin,
			applog.NewFields().WithComponent(applog.ComponentAuth).WithUser(u.ID))
		s.flashError(w, "Could not log in, please try again")
		redirect(w, r, "/login")
		return
	}

	s.countLogin(true)
	s.setSessionCookie(w, sess)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "User logged in", applog.FieldUserID, u.ID)
	redirect(w, r, "/")
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "register.html", "Register", authForm{})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.flashError(w, "Invalid request")
		redirect(w, r, "/register")
		return
	}
	username := formString(r.PostForm, "username")
	password := r.PostForm.Get("password")

	_, err := s.auth.Register(r.Context(), username, password)
	switch {
	case err == nil:
		atomic.AddInt64(&s.appMetrics.registered, 1)
		s.flashSuccess(w, "Account created, please login")
		redirect(w, r, "/login")
	case errors.Is(err, services.ErrUsernameTaken):
		s.flashError(w, "Username already exists")
		redirect(w, r, "/register")
	case errors.Is(err, core.ErrEmptyUsername), errors.Is(err, core.ErrShortPassword), errors.Is(err, core.ErrNameTooLong):
		s.flashError(w, err.Error())
		redirect(w, r, "/register")
	default:
		s.errors.LogError(r.Context(), "Registration failed", err, applog.OpRegister,
			applog.NewFields().WithComponent(applog.ComponentAuth))
		s.flashError(w, "Could not create account, please try again")
		redirect(w, r, "/register")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := s.auth.EndSession(r.Context(), c.Value); err != nil {
			s.logger.WarnContext(r.Context(), "Failed to end session", applog.FieldError, err.Error())
		}
	}
	s.clearSessionCookie(w)
	redirect(w, r, "/login")
}
