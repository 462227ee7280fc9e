package repository

import (
	"context"

	"sessionguard/internal/account/domain"
)

// Repository defines persistence for accounts and their security state.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	// UpdateSecurityState overwrites the lockout-related fields in one atomic update.
	UpdateSecurityState(ctx context.Context, id string, state domain.SecurityState) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}
