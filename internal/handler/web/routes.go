// Package web provides the HTTP handlers for the secrets board.
package web

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/hushboard/hushboard/internal/middleware"
	"github.com/hushboard/hushboard/internal/models"
	apperrors "github.com/hushboard/hushboard/internal/pkg/errors"
	"github.com/hushboard/hushboard/internal/repository"
	"github.com/hushboard/hushboard/internal/service"
)

// Context keys for request context values.
type contextKey string

const (
	// ContextKeyUser is the context key for the authenticated user.
	ContextKeyUser contextKey = "user"
	// ContextKeySessionID is the context key for the session ID.
	ContextKeySessionID contextKey = "session_id"
)

// Session cookie names.
const (
	SessionCookieName = "hushboard_session"
	OAuthStateCookie  = "hushboard_oauth_state"
)

// Handler handles HTTP requests for the secrets board.
type Handler struct {
	authService  service.AuthService
	oauthService service.OAuthService
	userRepo     repository.UserRepository
	sessionStore sessions.Store
	renderer     *Renderer
	logger       *slog.Logger

	// cookieMaxAge keeps the browser cookie's lifetime in step with the
	// server-side session TTL.
	cookieMaxAge int
}

// NewHandler creates a new web handler. sessionExpiry bounds both sides of a
// session: the cookie's MaxAge is derived from it.
func NewHandler(
	authService service.AuthService,
	oauthService service.OAuthService,
	userRepo repository.UserRepository,
	sessionStore sessions.Store,
	sessionExpiry time.Duration,
	logger *slog.Logger,
) (*Handler, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	if sessionExpiry <= 0 {
		sessionExpiry = 7 * 24 * time.Hour
	}

	return &Handler{
		authService:  authService,
		oauthService: oauthService,
		userRepo:     userRepo,
		sessionStore: sessionStore,
		renderer:     renderer,
		logger:       logger,
		cookieMaxAge: int(sessionExpiry.Seconds()),
	}, nil
}

// Routes returns the chi router with all web routes configured. credLimit,
// when non-nil, rate limits the credential-bearing POSTs.
func (h *Handler) Routes(credLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// Public routes (no auth required)
	r.Group(func(r chi.Router) {
		r.Get("/", h.HomePage)
		r.Get("/register", h.RegisterPage)
		r.Get("/login", h.LoginPage)

		// Brute-force protection on the credential-bearing endpoints
		if credLimit != nil {
			r.With(credLimit).Post("/register", h.Register)
			r.With(credLimit).Post("/login", h.Login)
		} else {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		}

		// Federated login
		r.Get("/auth/google", h.OAuthStart)
		r.Get("/auth/google/secrets", h.OAuthCallback)

		// The board itself is public
		r.Get("/secrets", h.Secrets)

		r.Get("/logout", h.Logout)
	})

	// Protected routes (auth required)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		r.Get("/submit", h.SubmitPage)
		r.Post("/submit", h.Submit)
	})

	return r
}

// ============================================
// Middleware
// ============================================

// RequireAuth ensures the request carries a valid session and loads the user
// into the request context; otherwise it redirects to the login page.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, sessionID := h.currentUser(r)
		if user == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUser, user)
		ctx = context.WithValue(ctx, ContextKeySessionID, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser resolves the cookie to a live user snapshot. Returns nil when
// the request is anonymous or the session no longer resolves.
func (h *Handler) currentUser(r *http.Request) (*models.User, string) {
	session, err := h.sessionStore.Get(r, SessionCookieName)
	if err != nil {
		return nil, ""
	}

	sessionID, ok := session.Values["session_id"].(string)
	if !ok || sessionID == "" {
		return nil, ""
	}

	user, err := h.authService.UserFromSession(r.Context(), sessionID)
	if err != nil || user == nil {
		return nil, ""
	}

	// The cookie's user id must agree with the server-side record.
	if userIDStr, ok := session.Values["user_id"].(string); ok {
		if id, err := uuid.Parse(userIDStr); err != nil || id != user.ID {
			return nil, ""
		}
	}

	return user, sessionID
}

// ============================================
// Public Page Handlers
// ============================================

// HomePage renders the landing page.
func (h *Handler) HomePage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, "home", nil)
}

// RegisterPage renders the registration form.
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if user, _ := h.currentUser(r); user != nil {
		http.Redirect(w, r, "/secrets", http.StatusFound)
		return
	}

	h.renderer.Render(w, "register", AuthPageData{
		Error:        r.URL.Query().Get("error"),
		Username:     r.URL.Query().Get("username"),
		OAuthEnabled: h.oauthService.Enabled(),
	})
}

// Register handles the registration form submission.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithError(w, r, "/register", "Invalid form data", "")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.redirectWithError(w, r, "/register", "Username and password are required", username)
		return
	}
	if len(password) < 8 {
		h.redirectWithError(w, r, "/register", "Password must be at least 8 characters", username)
		return
	}

	user, err := h.authService.Register(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateUser) {
			h.redirectWithError(w, r, "/register", "That username is already taken", username)
			return
		}
		h.logger.Error("registration failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, "/register", "Registration failed, please try again", username)
		return
	}

	// Log the new user in immediately
	sessionID, err := h.authService.CreateSession(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("session create failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/login?success=Account+created,+please+log+in", http.StatusFound)
		return
	}

	h.establishSession(w, r, user.ID, sessionID)
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

// LoginPage renders the login form.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if user, _ := h.currentUser(r); user != nil {
		http.Redirect(w, r, "/secrets", http.StatusFound)
		return
	}

	h.renderer.Render(w, "login", AuthPageData{
		Error:        r.URL.Query().Get("error"),
		Success:      r.URL.Query().Get("success"),
		OAuthEnabled: h.oauthService.Enabled(),
	})
}

// Login handles the login form submission.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithError(w, r, "/login", "Invalid form data", "")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.redirectWithError(w, r, "/login", "Username and password are required", "")
		return
	}

	user, sessionID, err := h.authService.Login(r.Context(), username, password)
	if err != nil {
		// Unknown username and wrong password take the same path out.
		middleware.IncrementLoginFailures("local")
		h.redirectWithError(w, r, "/login", "Invalid username or password", "")
		return
	}

	h.establishSession(w, r, user.ID, sessionID)
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

// OAuthStart initiates the federated login flow.
func (h *Handler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	if !h.oauthService.Enabled() {
		h.redirectWithError(w, r, "/login", "Google login is not configured", "")
		return
	}

	// Generate state for CSRF protection
	state, err := generateSecureState()
	if err != nil {
		h.redirectWithError(w, r, "/login", "Failed to start Google login", "")
		return
	}

	// Store state in a short-lived cookie for verification at the callback
	session, _ := h.sessionStore.Get(r, OAuthStateCookie)
	session.Values["state"] = state
	session.Options.MaxAge = 300 // 5 minutes
	session.Options.HttpOnly = true
	if err := session.Save(r, w); err != nil {
		h.redirectWithError(w, r, "/login", "Failed to start Google login", "")
		return
	}

	http.Redirect(w, r, h.oauthService.AuthURL(state), http.StatusTemporaryRedirect)
}

// OAuthCallback handles the provider callback, linking the federated
// identity to a local user and establishing a session.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !h.oauthService.Enabled() {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	// Provider-reported error or a missing code both end the attempt.
	if r.URL.Query().Get("error") != "" || code == "" {
		middleware.IncrementLoginFailures("oauth")
		h.redirectWithError(w, r, "/login", "Google login failed", "")
		return
	}

	// Verify state
	session, _ := h.sessionStore.Get(r, OAuthStateCookie)
	savedState, ok := session.Values["state"].(string)
	if !ok || savedState == "" || savedState != state {
		middleware.IncrementLoginFailures("oauth")
		h.redirectWithError(w, r, "/login", "Google login failed", "")
		return
	}

	// Clear the state cookie
	session.Options.MaxAge = -1
	session.Save(r, w)

	user, sessionID, err := h.oauthService.HandleCallback(r.Context(), code)
	if err != nil {
		middleware.IncrementLoginFailures("oauth")
		h.logger.Warn("oauth callback failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, "/login", "Google login failed", "")
		return
	}

	h.establishSession(w, r, user.ID, sessionID)
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

// Secrets renders the public board of all posted secrets.
func (h *Handler) Secrets(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.ListWithSecret(r.Context())
	if err != nil {
		h.logger.Error("failed to list secrets", slog.String("error", err.Error()))
		http.Error(w, "failed to load secrets", http.StatusInternalServerError)
		return
	}

	user, _ := h.currentUser(r)
	h.renderer.Render(w, "secrets", SecretsData{
		Users:    users,
		LoggedIn: user != nil,
	})
}

// Logout terminates the session and redirects home. Terminating an
// already-anonymous session is a no-op success.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessionStore.Get(r, SessionCookieName)

	if sessionID, ok := session.Values["session_id"].(string); ok && sessionID != "" {
		if err := h.authService.Logout(r.Context(), sessionID); err != nil {
			// The cookie is cleared regardless, so the browser ends up
			// logged out either way.
			h.logger.Error("failed to delete session", slog.String("error", err.Error()))
		}
	}

	session.Options.MaxAge = -1
	session.Save(r, w)

	http.Redirect(w, r, "/", http.StatusFound)
}

// ============================================
// Protected Page Handlers
// ============================================

// SubmitPage renders the secret submission form, pre-filled with the
// caller's current secret.
func (h *Handler) SubmitPage(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	var current string
	if user != nil && user.Secret != nil {
		current = *user.Secret
	}
	h.renderer.Render(w, "submit", SubmitData{
		Secret: current,
		Error:  r.URL.Query().Get("error"),
	})
}

// Submit overwrites the caller's secret and redirects to the board.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}

	secret := strings.TrimSpace(r.FormValue("secret"))
	if secret == "" {
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}

	if err := h.userRepo.UpdateSecret(r.Context(), user.ID, secret); err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			// The account vanished under a live session: drop the session
			// and tell the user rather than swallowing the failure.
			h.clearSession(w, r)
			h.redirectWithError(w, r, "/login", "Your account no longer exists", "")
			return
		}
		h.logger.Error("failed to update secret", slog.String("error", err.Error()))
		h.redirectWithError(w, r, "/submit", "Failed to save your secret, please try again", "")
		return
	}

	middleware.IncrementSecretsSubmitted()
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

// ============================================
// Helper Methods
// ============================================

// establishSession binds the user to the browser. The cookie save happens
// before the caller writes the redirect, so the Set-Cookie header is always
// part of the response.
func (h *Handler) establishSession(w http.ResponseWriter, r *http.Request, userID uuid.UUID, sessionID string) {
	session, _ := h.sessionStore.Get(r, SessionCookieName)
	session.Values["user_id"] = userID.String()
	session.Values["session_id"] = sessionID
	session.Options.MaxAge = h.cookieMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = r.TLS != nil
	session.Options.SameSite = http.SameSiteLaxMode
	if err := session.Save(r, w); err != nil {
		h.logger.Error("failed to save session cookie", slog.String("error", err.Error()))
	}
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessionStore.Get(r, SessionCookieName)
	session.Options.MaxAge = -1
	session.Save(r, w)
}

func (h *Handler) redirectWithError(w http.ResponseWriter, r *http.Request, path, msg, username string) {
	q := url.Values{}
	q.Set("error", msg)
	if username != "" {
		q.Set("username", username)
	}
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusFound)
}

// generateSecureState generates a cryptographically secure random state for
// OAuth CSRF protection.
func generateSecureState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// GetUserFromContext returns the authenticated user from context.
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(ContextKeyUser).(*models.User)
	return user, ok
}

// GetSessionIDFromContext returns the session ID from context.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeySessionID).(string)
	return id, ok
}
