package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/hushboard/hushboard/internal/config"
	"github.com/hushboard/hushboard/internal/models"
	apperrors "github.com/hushboard/hushboard/internal/pkg/errors"
	"github.com/hushboard/hushboard/internal/repository"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// OAuthUserInfo contains user information fetched from the identity provider.
type OAuthUserInfo struct {
	ID    string
	Email string
	Name  string
}

// OAuthService defines the federated authentication interface. A login
// attempt moves through redirect, callback, profile resolution, and linking;
// any provider-side or profile failure surfaces as ErrAuthFailed and is never
// retried automatically.
type OAuthService interface {
	// Enabled reports whether provider credentials are configured.
	Enabled() bool

	// AuthURL returns the provider authorization URL carrying the CSRF state.
	// No local state changes.
	AuthURL(state string) string

	// HandleCallback exchanges the authorization code, resolves the profile,
	// and finds-or-creates the matching local user. Exactly one user record
	// exists per distinct external identity. Returns the user and a new
	// session ID.
	HandleCallback(ctx context.Context, code string) (*models.User, string, error)
}

type oauthService struct {
	config      *oauth2.Config
	userRepo    repository.UserRepository
	authService AuthService
	userInfoURL string
}

// NewOAuthService creates a new OAuth service for Google federated login.
func NewOAuthService(
	cfg *config.AuthConfig,
	userRepo repository.UserRepository,
	authService AuthService,
) OAuthService {
	svc := &oauthService{
		userRepo:    userRepo,
		authService: authService,
		userInfoURL: googleUserInfoURL,
	}

	if cfg.OAuthGoogleID != "" && cfg.OAuthGoogleSecret != "" {
		svc.config = &oauth2.Config{
			ClientID:     cfg.OAuthGoogleID,
			ClientSecret: cfg.OAuthGoogleSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.OAuthCallbackURL + "/auth/google/secrets",
			Scopes:       []string{"profile", "email"},
		}
	}

	return svc
}

func (s *oauthService) Enabled() bool {
	return s.config != nil
}

func (s *oauthService) AuthURL(state string) string {
	if s.config == nil {
		return ""
	}
	return s.config.AuthCodeURL(state)
}

func (s *oauthService) HandleCallback(ctx context.Context, code string) (*models.User, string, error) {
	if s.config == nil {
		return nil, "", fmt.Errorf("%w: provider not configured", apperrors.ErrAuthFailed)
	}

	// Exchange authorization code for access token
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("%w: token exchange: %v", apperrors.ErrAuthFailed, err)
	}

	info, err := s.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperrors.ErrAuthFailed, err)
	}

	// Find or create the local record keyed on the provider identifier. The
	// uniqueness constraint at the storage layer guarantees at most one
	// record even under concurrent first logins.
	user, err := s.userRepo.FindOrCreateByGoogleID(ctx, info.ID, info.Email)
	if err != nil {
		return nil, "", fmt.Errorf("%w: linking user: %v", apperrors.ErrAuthFailed, err)
	}

	sessionID, err := s.authService.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, sessionID, nil
}

func (s *oauthService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get(s.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var data struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	// A profile without a stable id or an email cannot be linked.
	if data.ID == "" || data.Email == "" {
		return nil, fmt.Errorf("profile missing id or email")
	}

	return &OAuthUserInfo{
		ID:    data.ID,
		Email: data.Email,
		Name:  data.Name,
	}, nil
}

// Compile-time check to ensure oauthService implements OAuthService.
var _ OAuthService = (*oauthService)(nil)
