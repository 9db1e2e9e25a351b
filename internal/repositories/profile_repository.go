package repositories

import (
	"context"
	"time"

	"github.com/meishi/backend/internal/models"
)

// ProfileRepository defines the data access contract for profiles. Every
// method is a single-row (or single-statement) operation; there is no
// cross-call transaction.
//
// AddFriend appends ref to the friend list of id unless an entry with the
// same id is already there, and reports whether it appended. The check and
// the append are one atomic step, so concurrent adds to the same list never
// drop each other.
type ProfileRepository interface {
	Create(ctx context.Context, profile models.Profile) error
	FindByID(ctx context.Context, id string) (models.Profile, error)
	FindByUsername(ctx context.Context, username string) (models.Profile, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Profile, error)
	AddFriend(ctx context.Context, id string, ref models.FriendRef, at time.Time) (bool, error)
	UpdateDetails(ctx context.Context, id string, patch models.ProfilePatch) (models.Profile, error)
	UpdateIcon(ctx context.Context, id, iconURL string, at time.Time) error
}
