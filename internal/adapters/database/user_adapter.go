package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

var userColumns = []interface{}{
	"id", "name", "email", "password_hash", "role", "department",
	"license_number", "phone", "is_active", "last_login_at", "created_at", "updated_at",
}

// UserAdapter implements UserRepository
type UserAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewUserAdapter creates a new user adapter
func NewUserAdapter(client *postgres.Client) repositories.UserRepository {
	return &UserAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create creates a new user
func (a *UserAdapter) Create(ctx context.Context, user *entities.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	record := goqu.Record{
		"id":             user.ID,
		"name":           user.Name,
		"email":          user.Email,
		"password_hash":  user.PasswordHash,
		"role":           string(user.Role),
		"department":     nullString(user.Department),
		"license_number": nullString(user.LicenseNumber),
		"phone":          nullString(user.Phone),
		"is_active":      user.IsActive,
		"created_at":     user.CreatedAt,
		"updated_at":     user.UpdatedAt,
	}

	query, args, err := a.db.Insert("users").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
			return apperrors.NewConflictError("a user with this email already exists")
		}
		return apperrors.NewInternalError("failed to create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (a *UserAdapter) GetByID(ctx context.Context, id string) (*entities.User, error) {
	return a.getOne(ctx, goqu.Ex{"id": id}, fmt.Sprintf("user with id %s not found", id))
}

// GetByEmail retrieves a user by email
func (a *UserAdapter) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	return a.getOne(ctx, goqu.Ex{"email": normalized}, "user not found")
}

func (a *UserAdapter) getOne(ctx context.Context, where goqu.Ex, notFound string) (*entities.User, error) {
	query, args, err := a.db.Select(userColumns...).From("users").Where(where).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build select query", err)
	}

	var (
		user                             entities.User
		role                             string
		department, licenseNumber, phone sql.NullString
		lastLogin                        sql.NullTime
	)
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&department,
		&licenseNumber,
		&phone,
		&user.IsActive,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get user", err)
	}

	user.Role = entities.Role(role)
	if normalized, ok := entities.ParseRole(role); ok {
		user.Role = normalized
	}
	user.Department = department.String
	user.LicenseNumber = licenseNumber.String
	user.Phone = phone.String
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

// Update updates a user
func (a *UserAdapter) Update(ctx context.Context, user *entities.User) error {
	record := goqu.Record{
		"name":           user.Name,
		"password_hash":  user.PasswordHash,
		"role":           string(user.Role),
		"department":     nullString(user.Department),
		"license_number": nullString(user.LicenseNumber),
		"phone":          nullString(user.Phone),
		"is_active":      user.IsActive,
		"updated_at":     user.UpdatedAt,
	}
	if user.LastLoginAt != nil {
		record["last_login_at"] = *user.LastLoginAt
	}

	query, args, err := a.db.Update("users").Set(record).Where(goqu.Ex{"id": user.ID}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update user", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("user with id %s not found", user.ID))
	}
	return nil
}
