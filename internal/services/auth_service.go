package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"budget/internal/core"
	"budget/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Session is an authenticated user bound to an opaque token.
type Session struct {
	Token     string
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// AuthService handles registration, password checks and server-side sessions.
type AuthService struct {
	repo       Repository
	sessionTTL time.Duration
	cost       int
	now        func() time.Time

	// compared against when the username is unknown so both failure paths
	// spend the same bcrypt time
	dummyHash []byte
}

func NewAuthService(repo Repository, sessionTTL time.Duration, bcryptCost int) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	return &AuthService{
		repo:       repo,
		sessionTTL: sessionTTL,
		cost:       bcryptCost,
		now:        time.Now,
		dummyHash:  dummy,
	}
}

// Register creates a user with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, username, password string) (core.User, error) {
	username = strings.TrimSpace(username)
	if err := core.ValidateCredentials(username, password); err != nil {
		return core.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, username, string(hash))
	if errors.Is(err, storage.ErrDuplicate) {
		return core.User{}, ErrUsernameTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Login checks a username/password pair. Unknown users and wrong passwords
// both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (core.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return core.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *AuthService) StartSession(ctx context.Context, u core.User) (Session, error) {
	rec := storage.SessionRecord{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		ExpiresAt: s.now().Add(s.sessionTTL),
	}
	if err := s.repo.CreateSession(ctx, rec); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session(rec), nil
}

// ResolveSession returns the live session for token or ErrNoSession.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (Session, error) {
	if _, err := uuid.Parse(token); err != nil {
		return Session{}, ErrNoSession
	}
	rec, err := s.repo.GetSession(ctx, token, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return Session(rec), nil
}

func (s *AuthService) EndSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes every session past its expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired sessions", "count", n)
	}
	return n, nil
}

func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}
