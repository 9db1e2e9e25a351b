package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/meishi/backend/internal/apperr"
	"github.com/meishi/backend/internal/models"
	"github.com/meishi/backend/internal/repositories"
	"github.com/meishi/backend/internal/validate"
)

// Credentials identify a caller: a profile id plus the opaque password hash
// the client derived. The server never sees the raw password.
type Credentials struct {
	ID           string
	PasswordHash string
}

// ProfileFinder is the read side of the profile store used for
// authentication.
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (models.Profile, error)
	FindByUsername(ctx context.Context, username string) (models.Profile, error)
}

// Authenticator checks credentials against stored profiles by comparing the
// presented hash with the stored one.
type Authenticator struct {
	profiles ProfileFinder
}

// NewAuthenticator constructs an Authenticator over the provided store.
func NewAuthenticator(profiles ProfileFinder) *Authenticator {
	if profiles == nil {
		panic("auth: profile finder must not be nil")
	}
	return &Authenticator{profiles: profiles}
}

// Authenticate loads the profile named by id and verifies hash. A malformed
// id or blank hash is MALFORMED; an unknown id or a mismatch are both
// UNAUTHORIZED so callers cannot probe for existing ids.
func (a *Authenticator) Authenticate(ctx context.Context, id, hash string) (models.Profile, error) {
	if !validate.UUID(id) || !validate.Secret(hash) {
		return models.Profile{}, apperr.Malformed("id and password_hash are required")
	}

	profile, err := a.profiles.FindByID(ctx, id)
	return a.check(profile, err, hash)
}

// Login verifies hash for the profile registered under username.
func (a *Authenticator) Login(ctx context.Context, username, hash string) (models.Profile, error) {
	if !validate.Username(username) || !validate.Secret(hash) {
		return models.Profile{}, apperr.Malformed("username and password_hash are required")
	}

	profile, err := a.profiles.FindByUsername(ctx, username)
	return a.check(profile, err, hash)
}

func (a *Authenticator) check(profile models.Profile, err error, hash string) (models.Profile, error) {
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Profile{}, apperr.Unauthorized("invalid credentials")
		}
		return models.Profile{}, apperr.StoreUnavailable("load profile", err)
	}

	if subtle.ConstantTimeCompare([]byte(profile.PasswordHash), []byte(hash)) != 1 {
		return models.Profile{}, apperr.Unauthorized("invalid credentials")
	}

	return profile, nil
}
