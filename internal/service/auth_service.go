// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hushboard/hushboard/internal/config"
	"github.com/hushboard/hushboard/internal/models"
	apperrors "github.com/hushboard/hushboard/internal/pkg/errors"
	"github.com/hushboard/hushboard/internal/pkg/ulid"
	"github.com/hushboard/hushboard/internal/repository"
)

const defaultSessionExpiry = 7 * 24 * time.Hour

// dummyHash is compared against when a login names an unknown user, so the
// unknown-user and wrong-password paths both cost one bcrypt verification.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("hushboard-timing-pad"), bcrypt.DefaultCost)

// AuthService defines local credential verification and session lifecycle.
type AuthService interface {
	// Register creates a user from a username/password pair. The password is
	// stored only as a bcrypt hash.
	Register(ctx context.Context, username, password string) (*models.User, error)

	// Login verifies credentials and creates a session. It fails with
	// ErrInvalidCredentials both for an unknown username and a wrong
	// password, with no distinguishing signal.
	Login(ctx context.Context, username, password string) (*models.User, string, error)

	// CreateSession issues a session token for an already-authenticated user.
	CreateSession(ctx context.Context, userID uuid.UUID) (string, error)

	// UserFromSession resolves a session token back to a live user snapshot.
	// Returns nil, nil when the token no longer resolves: the session is
	// silently invalid, not an error.
	UserFromSession(ctx context.Context, sessionID string) (*models.User, error)

	// Logout destroys a session. Idempotent.
	Logout(ctx context.Context, sessionID string) error

	// GetUserByID loads a user record.
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type authService struct {
	userRepo      repository.UserRepository
	sessionRepo   repository.SessionRepository
	sessionExpiry time.Duration
}

// NewAuthService creates a new auth service with the given configuration.
func NewAuthService(
	cfg *config.AuthConfig,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
) AuthService {
	expiry := cfg.SessionExpiry
	if expiry == 0 {
		expiry = defaultSessionExpiry
	}

	return &authService{
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		sessionExpiry: expiry,
	}
}

func (s *authService) Register(ctx context.Context, username, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	hashStr := string(hash)
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: &hashStr,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, "", err
	}

	if user == nil || user.PasswordHash == nil {
		// Burn a comparison so this path is not measurably faster than a
		// wrong password against a real hash.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, "", apperrors.ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return nil, "", apperrors.ErrInvalidCredentials
	}

	sessionID, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, sessionID, nil
}

func (s *authService) CreateSession(ctx context.Context, userID uuid.UUID) (string, error) {
	now := time.Now()
	session := &models.Session{
		ID:        ulid.New(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionExpiry),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrLoginFailed, err)
	}
	return session.ID, nil
}

func (s *authService) UserFromSession(ctx context.Context, sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	// A session whose user no longer resolves is treated the same as no
	// session at all.
	return s.userRepo.GetByID(ctx, session.UserID)
}

func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessionRepo.Delete(ctx, sessionID)
}

func (s *authService) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// Compile-time check to ensure authService implements AuthService.
var _ AuthService = (*authService)(nil)
