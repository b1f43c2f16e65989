package repositories

import (
	"context"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// Create creates a new user; a duplicate email is a conflict
	Create(ctx context.Context, user *entities.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*entities.User, error)

	// GetByEmail retrieves a user by email, case-insensitively
	GetByEmail(ctx context.Context, email string) (*entities.User, error)

	// Update updates a user's profile, password hash and login stamp
	Update(ctx context.Context, user *entities.User) error
}
