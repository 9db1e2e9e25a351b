package repositories

import (
	"context"

	"github.com/meishi/backend/internal/models"
)

// TokenRepository defines data access for exchange tokens. The owner id is
// the row key and the token value carries its own uniqueness constraint, so
// Insert and Rotate may both report ErrConflict.
type TokenRepository interface {
	FindByOwner(ctx context.Context, ownerID string) (models.ExchangeToken, error)
	FindByValue(ctx context.Context, token string) (models.ExchangeToken, error)
	Insert(ctx context.Context, token models.ExchangeToken) error
	Rotate(ctx context.Context, token models.ExchangeToken) error
	Delete(ctx context.Context, ownerID, token string) error
}
