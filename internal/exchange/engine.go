// Package exchange turns a scanned QR token into a mutual friendship.
package exchange

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meishi/backend/internal/apperr"
	"github.com/meishi/backend/internal/auth"
	"github.com/meishi/backend/internal/logging"
	"github.com/meishi/backend/internal/models"
	"github.com/meishi/backend/internal/repositories"
	"github.com/meishi/backend/internal/validate"
)

// Authenticator verifies requester credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, id, hash string) (models.Profile, error)
}

// ProfileStore is the slice of the profile repository the engine touches.
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (models.Profile, error)
	AddFriend(ctx context.Context, id string, ref models.FriendRef, at time.Time) (bool, error)
}

// TokenStore is the slice of the token repository the engine touches.
type TokenStore interface {
	FindByValue(ctx context.Context, token string) (models.ExchangeToken, error)
	Delete(ctx context.Context, ownerID, token string) error
}

// Request is a scanned token plus optional requester credentials. A nil
// Requester selects view mode.
type Request struct {
	Token     string
	Requester *auth.Credentials
}

// Result identifies both sides of an exchange. RequesterID and
// RequesterUsername are nil in view mode.
type Result struct {
	RequesterID       *string
	RequesterUsername *string
	Counterpart       models.FriendRef
}

// Engine resolves tokens and links the two profiles.
type Engine struct {
	auth     Authenticator
	profiles ProfileStore
	tokens   TokenStore
	ttl      time.Duration

	Now func() time.Time
}

// NewEngine constructs an Engine. ttl must match the issuing manager's.
func NewEngine(auth Authenticator, profiles ProfileStore, tokens TokenStore, ttl time.Duration) *Engine {
	return &Engine{
		auth:     auth,
		profiles: profiles,
		tokens:   tokens,
		ttl:      ttl,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Exchange resolves req.Token to its owner. In view mode it only reports the
// owner. With credentials it appends each profile to the other's friend
// list, requester first, and then consumes the token.
//
// Each side is an atomic append-if-missing against the stored list, so
// concurrent exchanges touching the same profile never drop an edge. The
// two appends are independent: if the second fails the requester keeps a
// one-sided link, and repeating the exchange repairs it.
func (e *Engine) Exchange(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := logging.StartSpan(ctx, "exchange")
	defer func() { span.End(err) }()

	if !validate.Token(req.Token) {
		return Result{}, apperr.Malformed("qr is required")
	}

	creds, err := pairing(req.Requester)
	if err != nil {
		return Result{}, err
	}

	var requester models.Profile
	if creds != nil {
		requester, err = e.auth.Authenticate(ctx, creds.ID, creds.PasswordHash)
		if err != nil {
			return Result{}, err
		}
	}

	token, err := e.tokens.FindByValue(ctx, req.Token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Result{}, apperr.NotFound("qr not found")
		}
		return Result{}, apperr.StoreUnavailable("load exchange token", err)
	}

	if !token.LiveAt(e.Now(), e.ttl) {
		return Result{}, apperr.New(apperr.CodeExpired, "qr expired")
	}

	if creds != nil && token.OwnerID == requester.ID {
		return Result{}, apperr.New(apperr.CodeSelfExchange, "cannot exchange with yourself")
	}

	owner, err := e.profiles.FindByID(ctx, token.OwnerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Result{}, apperr.NotFound("qr owner not found")
		}
		return Result{}, apperr.StoreUnavailable("load qr owner", err)
	}

	if creds == nil {
		return Result{Counterpart: owner.Ref()}, nil
	}

	logger := span.Logger().With(slog.String("requester_id", requester.ID), slog.String("owner_id", owner.ID))
	now := e.Now()

	addedMine, err := e.profiles.AddFriend(ctx, requester.ID, owner.Ref(), now)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.CodeUpdateFailed, "failed to update friends", err)
	}

	addedTheirs, err := e.profiles.AddFriend(ctx, owner.ID, requester.Ref(), now)
	if err != nil {
		logger.Error("half-linked friendship", slog.String("error", err.Error()))
		return Result{}, apperr.Wrap(apperr.CodeUpdateFailed, "failed to update friends", err)
	}

	if err := e.tokens.Delete(ctx, owner.ID, token.Token); err != nil {
		logger.Warn("consume exchange token", slog.String("error", err.Error()))
	}

	logger.Info("friends exchanged", slog.Bool("requester_added", addedMine), slog.Bool("owner_added", addedTheirs))
	return Result{
		RequesterID:       &requester.ID,
		RequesterUsername: &requester.Username,
		Counterpart:       owner.Ref(),
	}, nil
}

// pairing enforces that id and hash are supplied together. Both empty is the
// same as no requester.
func pairing(c *auth.Credentials) (*auth.Credentials, error) {
	if c == nil {
		return nil, nil
	}
	hasID := c.ID != ""
	hasHash := c.PasswordHash != ""
	switch {
	case hasID != hasHash:
		return nil, apperr.Malformed("id and password_hash must be supplied together")
	case !hasID:
		return nil, nil
	}
	return c, nil
}
