package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/recursiadx/internal/api/middleware"
	"github.com/zatekoja/recursiadx/internal/application/services"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// AuthUseCases is the account and token surface used by AuthHandler
type AuthUseCases interface {
	Register(ctx context.Context, input services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	Logout(ctx context.Context, accessToken string) error
	Me(ctx context.Context, actor entities.Actor) (*entities.User, error)
	UpdateProfile(ctx context.Context, actor entities.Actor, input services.ProfileInput) (*entities.User, error)
	ChangePassword(ctx context.Context, actor entities.Actor, current, next string) (*services.AuthResult, error)
	Deactivate(ctx context.Context, actor entities.Actor, accessToken string) error
}

// Limiter throttles repeated attempts per key
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	RetryAfter() time.Duration
}

// AuthHandler handles account and session endpoints
type AuthHandler struct {
	auth          AuthUseCases
	loginLimit    Limiter
	registerLimit Limiter
	secureCookie  bool
}

// NewAuthHandler creates a new auth handler. Secure cookies are issued
// when secureCookie is set.
func NewAuthHandler(auth AuthUseCases, loginLimit, registerLimit Limiter, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		loginLimit:    loginLimit,
		registerLimit: registerLimit,
		secureCookie:  secureCookie,
	}
}

type registerRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Role          string `json:"role"`
	Department    string `json:"department"`
	LicenseNumber string `json:"licenseNumber"`
	Phone         string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req loginRequest) Validate() error {
	var fields []apperrors.FieldError
	if strings.TrimSpace(req.Email) == "" {
		fields = append(fields, apperrors.FieldError{Field: "email", Message: "is required"})
	}
	if req.Password == "" {
		fields = append(fields, apperrors.FieldError{Field: "password", Message: "is required"})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("invalid login request", fields...)
	}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type profileRequest struct {
	Name          *string `json:"name"`
	Department    *string `json:"department"`
	LicenseNumber *string `json:"licenseNumber"`
	Phone         *string `json:"phone"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, h.registerLimit) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.auth.Register(r.Context(), services.RegisterInput(req))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	h.setTokenCookie(w, result.Token, result.ExpiresAt)
	respondWithData(w, http.StatusCreated, "User registered successfully", result)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, h.loginLimit) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	h.setTokenCookie(w, result.Token, result.ExpiresAt)
	respondWithData(w, http.StatusOK, "Login successful", result)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), middleware.TokenFromRequest(r)); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.clearTokenCookie(w)
	respondWithData(w, http.StatusOK, "Logged out successfully", nil)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	user, err := h.auth.Me(r.Context(), actor)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "", map[string]interface{}{"user": user})
}

// RefreshToken handles POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		respondWithAppError(w, r, apperrors.NewValidationError("invalid refresh request",
			apperrors.FieldError{Field: "refreshToken", Message: "is required"}))
		return
	}

	result, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	h.setTokenCookie(w, result.Token, result.ExpiresAt)
	respondWithData(w, http.StatusOK, "Token refreshed successfully", result)
}

// UpdateProfile handles PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), actor, services.ProfileInput(req))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "Profile updated successfully", map[string]interface{}{"user": user})
}

// ChangePassword handles PUT /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.auth.ChangePassword(r.Context(), actor, req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	h.setTokenCookie(w, result.Token, result.ExpiresAt)
	respondWithData(w, http.StatusOK, "Password changed successfully", result)
}

// Deactivate handles DELETE /api/auth/deactivate
func (h *AuthHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.auth.Deactivate(r.Context(), actor, middleware.TokenFromRequest(r)); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.clearTokenCookie(w)
	respondWithData(w, http.StatusOK, "Account deactivated successfully", nil)
}

func (h *AuthHandler) allow(w http.ResponseWriter, r *http.Request, limiter Limiter) bool {
	if limiter == nil || limiter.Allow(r.Context(), clientIP(r)) {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(limiter.RetryAfter().Seconds())))
	respondWithError(w, http.StatusTooManyRequests, "too many attempts, please try again later")
	return false
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// requireActor returns the authenticated actor or writes a 401
func requireActor(w http.ResponseWriter, r *http.Request) (entities.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
	}
	return actor, ok
}

// clientIP prefers the first X-Forwarded-For hop over the socket address
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
