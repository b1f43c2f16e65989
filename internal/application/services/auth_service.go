package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/pkg/config"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	minPasswordLength = 8
	revokedKeyPrefix  = "auth:revoked:"
)

var errInvalidCredentials = apperrors.NewUnauthorizedError("invalid credentials")

// Claims are the JWT claims issued by the service
type Claims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// AuthResult is returned by register, login and refresh
type AuthResult struct {
	User         *entities.User `json:"user"`
	Token        string         `json:"token"`
	RefreshToken string         `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time      `json:"expiresAt"`
}

// RegisterInput holds a new account's details
type RegisterInput struct {
	Name          string
	Email         string
	Password      string
	Role          string
	Department    string
	LicenseNumber string
	Phone         string
}

// ProfileInput carries editable profile fields; nil means unchanged
type ProfileInput struct {
	Name          *string
	Department    *string
	LicenseNumber *string
	Phone         *string
}

// AuthService issues and verifies tokens
type AuthService struct {
	users repositories.UserRepository
	cache providers.CacheProvider
	cfg   config.AuthConfig
	now   func() time.Time
}

// NewAuthService creates a new auth service. cache may be nil, in which
// case logout cannot revoke tokens before they expire.
func NewAuthService(users repositories.UserRepository, cache providers.CacheProvider, cfg config.AuthConfig) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, cache: cache, cfg: cfg, now: time.Now}
}

// Register creates an account and signs it in. Admin cannot be self-assigned.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	user, err := s.createUser(ctx, input, false)
	if err != nil {
		return nil, err
	}
	return s.issue(user, true)
}

// Provision creates an account of any role without signing it in. It is
// the operator path used for seeding admins.
func (s *AuthService) Provision(ctx context.Context, input RegisterInput) (*entities.User, error) {
	return s.createUser(ctx, input, true)
}

func (s *AuthService) createUser(ctx context.Context, input RegisterInput, allowAdmin bool) (*entities.User, error) {
	var fields []apperrors.FieldError
	name := strings.TrimSpace(input.Name)
	if name == "" {
		fields = append(fields, apperrors.FieldError{Field: "name", Message: "is required"})
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		fields = append(fields, apperrors.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(input.Password) < minPasswordLength {
		fields = append(fields, apperrors.FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	role := entities.RoleLabTechnician
	if input.Role != "" {
		parsed, ok := entities.ParseRole(input.Role)
		switch {
		case !ok:
			fields = append(fields, apperrors.FieldError{Field: "role", Message: "is not a known role"})
		case parsed == entities.RoleAdmin && !allowAdmin:
			fields = append(fields, apperrors.FieldError{Field: "role", Message: "cannot be self-assigned"})
		}
		role = parsed
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError("invalid registration", fields...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to hash password", err)
	}

	now := s.now().UTC()
	user := &entities.User{
		ID:            uuid.NewString(),
		Name:          name,
		Email:         input.Email,
		PasswordHash:  string(hash),
		Role:          role,
		Department:    input.Department,
		LicenseNumber: input.LicenseNumber,
		Phone:         input.Phone,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and stamps the last login time
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.NewUnauthorizedError("account is deactivated")
	}

	now := s.now().UTC()
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to record last login")
	}
	return s.issue(user, true)
}

// Refresh exchanges a refresh token for a new access token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.parse(refreshToken, s.cfg.RefreshSecret, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if s.revoked(ctx, claims.ID) {
		return nil, apperrors.NewUnauthorizedError("token has been revoked")
	}
	user, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return s.issue(user, false)
}

// Authenticate resolves a bearer access token to the acting user
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (entities.Actor, error) {
	claims, err := s.parse(accessToken, s.cfg.AccessSecret, tokenTypeAccess)
	if err != nil {
		return entities.Actor{}, err
	}
	if s.revoked(ctx, claims.ID) {
		return entities.Actor{}, apperrors.NewUnauthorizedError("token has been revoked")
	}
	user, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return entities.Actor{}, err
	}
	return entities.Actor{UserID: user.ID, Name: user.Name, Role: user.Role}, nil
}

// Logout revokes the access token until it would have expired anyway
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.parse(accessToken, s.cfg.AccessSecret, tokenTypeAccess)
	if err != nil {
		return err
	}
	return s.revoke(ctx, claims)
}

// Me returns the current user
func (s *AuthService) Me(ctx context.Context, actor entities.Actor) (*entities.User, error) {
	return s.users.GetByID(ctx, actor.UserID)
}

// UpdateProfile edits the caller's own profile fields
func (s *AuthService) UpdateProfile(ctx context.Context, actor entities.Actor, input ProfileInput) (*entities.User, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("invalid profile",
				apperrors.FieldError{Field: "name", Message: "is required"})
		}
		user.Name = name
	}
	if input.Department != nil {
		user.Department = *input.Department
	}
	if input.LicenseNumber != nil {
		user.LicenseNumber = *input.LicenseNumber
	}
	if input.Phone != nil {
		user.Phone = *input.Phone
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the caller's password and returns fresh tokens
func (s *AuthService) ChangePassword(ctx context.Context, actor entities.Actor, current, next string) (*AuthResult, error) {
	if len(next) < minPasswordLength {
		return nil, apperrors.NewValidationError("invalid password",
			apperrors.FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return nil, apperrors.NewValidationError("current password is incorrect",
			apperrors.FieldError{Field: "currentPassword", Message: "is incorrect"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cfg.BcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to hash password", err)
	}
	user.PasswordHash = string(hash)
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user, true)
}

// Deactivate disables the caller's account and revokes the presented token
func (s *AuthService) Deactivate(ctx context.Context, actor entities.Actor, accessToken string) error {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	user.IsActive = false
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if claims, err := s.parse(accessToken, s.cfg.AccessSecret, tokenTypeAccess); err == nil {
		return s.revoke(ctx, claims)
	}
	return nil
}

func (s *AuthService) activeUser(ctx context.Context, id string) (*entities.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NewUnauthorizedError("user no longer exists")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.NewUnauthorizedError("account is deactivated")
	}
	return user, nil
}

func (s *AuthService) issue(user *entities.User, withRefresh bool) (*AuthResult, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	access, err := s.sign(user, tokenTypeAccess, s.cfg.AccessSecret, now, expiresAt)
	if err != nil {
		return nil, err
	}
	result := &AuthResult{User: user, Token: access, ExpiresAt: expiresAt.UTC()}
	if withRefresh {
		refresh, err := s.sign(user, tokenTypeRefresh, s.cfg.RefreshSecret, now, now.Add(s.cfg.RefreshTTL))
		if err != nil {
			return nil, err
		}
		result.RefreshToken = refresh
	}
	return result, nil
}

func (s *AuthService) sign(user *entities.User, tokenType, secret string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		Role:      string(user.Role),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", apperrors.NewInternalError("failed to sign token", err)
	}
	return signed, nil
}

func (s *AuthService) parse(token, secret, tokenType string) (*Claims, error) {
	if token == "" {
		return nil, apperrors.NewUnauthorizedError("authentication token is required")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.NewUnauthorizedError("token has expired")
		}
		return nil, apperrors.NewUnauthorizedError("invalid token")
	}
	if claims.TokenType != tokenType || claims.Subject == "" {
		return nil, apperrors.NewUnauthorizedError("invalid token")
	}
	return claims, nil
}

func (s *AuthService) revoke(ctx context.Context, claims *Claims) error {
	if s.cache == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := int(claims.ExpiresAt.Sub(s.now()).Seconds()) + 1
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.Set(ctx, revokedKeyPrefix+claims.ID, []byte("1"), ttl); err != nil {
		return apperrors.NewInternalError("failed to revoke token", err)
	}
	return nil
}

func (s *AuthService) revoked(ctx context.Context, jti string) bool {
	if s.cache == nil || jti == "" {
		return false
	}
	exists, err := s.cache.Exists(ctx, revokedKeyPrefix+jti)
	if err != nil {
		log.Warn().Err(err).Msg("Token blocklist unavailable")
		return false
	}
	return exists
}
