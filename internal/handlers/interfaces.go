package handlers

import (
	"context"
	"io"

	"github.com/meishi/backend/internal/auth"
	"github.com/meishi/backend/internal/exchange"
	"github.com/meishi/backend/internal/friends"
	"github.com/meishi/backend/internal/models"
	"github.com/meishi/backend/internal/profiles"
)

// ProfileService covers registration, login and profile edits.
type ProfileService interface {
	Register(ctx context.Context, in profiles.Registration) (models.Profile, error)
	Login(ctx context.Context, username, hash string) (models.Profile, error)
	Update(ctx context.Context, in profiles.Changes) (models.Profile, error)
	UploadIcon(ctx context.Context, id, hash string, r io.Reader) (string, error)
}

// TokenIssuer hands out the caller's current QR token.
type TokenIssuer interface {
	IssueOrRotate(ctx context.Context, ownerID, hash string) (string, error)
}

// Exchanger redeems scanned tokens.
type Exchanger interface {
	Exchange(ctx context.Context, req exchange.Request) (exchange.Result, error)
}

// FriendViewer builds account and public profile views.
type FriendViewer interface {
	SelfView(ctx context.Context, id, hash string) (friends.Account, error)
	PublicView(ctx context.Context, targetID string, requester *auth.Credentials) (friends.PublicProfile, error)
}
