package qrtoken

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meishi/backend/internal/apperr"
	"github.com/meishi/backend/internal/logging"
	"github.com/meishi/backend/internal/models"
	"github.com/meishi/backend/internal/repositories"
)

const (
	// DefaultTTL is how long an issued token stays exchangeable.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxAttempts bounds write retries after uniqueness conflicts.
	DefaultMaxAttempts = 5
)

// Authenticator verifies the caller owns the profile a token is issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, id, hash string) (models.Profile, error)
}

// Manager issues, reuses and rotates the single exchange token of a profile.
type Manager struct {
	auth        Authenticator
	tokens      repositories.TokenRepository
	ttl         time.Duration
	length      int
	maxAttempts int

	Now      func() time.Time
	Generate func(length int) string
}

// Option customises a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLength overrides DefaultLength.
func WithLength(length int) Option {
	return func(m *Manager) {
		if length > 0 {
			m.length = length
		}
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// NewManager constructs a Manager with the default policy.
func NewManager(auth Authenticator, tokens repositories.TokenRepository, opts ...Option) *Manager {
	m := &Manager{
		auth:        auth,
		tokens:      tokens,
		ttl:         DefaultTTL,
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
		Now:         func() time.Time { return time.Now().UTC() },
		Generate:    Generate,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL reports the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// IssueOrRotate returns the owner's live token, creating one when none exists
// and replacing it in place once it has expired. Repeated calls within the
// TTL return the same value.
func (m *Manager) IssueOrRotate(ctx context.Context, ownerID, hash string) (token string, err error) {
	ctx, span := logging.StartSpan(ctx, "qrtoken.issue_or_rotate")
	defer func() { span.End(err) }()

	if _, err := m.auth.Authenticate(ctx, ownerID, hash); err != nil {
		return "", err
	}

	current, err := m.tokens.FindByOwner(ctx, ownerID)
	haveRow := true
	switch {
	case err == nil:
		if current.LiveAt(m.Now(), m.ttl) {
			return current.Token, nil
		}
	case errors.Is(err, repositories.ErrNotFound):
		haveRow = false
	default:
		return "", apperr.StoreUnavailable("load exchange token", err)
	}

	logger := span.Logger()
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		candidate := models.ExchangeToken{
			OwnerID:   ownerID,
			Token:     m.Generate(m.length),
			CreatedAt: m.Now(),
		}

		if haveRow {
			err = m.tokens.Rotate(ctx, candidate)
		} else {
			err = m.tokens.Insert(ctx, candidate)
		}

		switch {
		case err == nil:
			logger.Info("exchange token issued", slog.Bool("rotated", haveRow), slog.Int("attempt", attempt))
			return candidate.Token, nil

		case errors.Is(err, repositories.ErrConflict):
			logger.Debug("exchange token collision", slog.Int("attempt", attempt))
			if haveRow {
				continue
			}
			// The conflict may be the owner's own row written by a
			// concurrent request rather than a value collision.
			existing, ferr := m.tokens.FindByOwner(ctx, ownerID)
			switch {
			case ferr == nil:
				if existing.LiveAt(m.Now(), m.ttl) {
					return existing.Token, nil
				}
				haveRow = true
			case errors.Is(ferr, repositories.ErrNotFound):
			default:
				return "", apperr.StoreUnavailable("load exchange token", ferr)
			}

		case haveRow && errors.Is(err, repositories.ErrNotFound):
			// Consumed by an exchange between lookup and rotate.
			haveRow = false

		case errors.Is(err, repositories.ErrNotFound):
			return "", apperr.NotFound("profile not found")

		default:
			return "", apperr.StoreUnavailable("write exchange token", err)
		}
	}

	return "", apperr.New(apperr.CodeExhausted, "could not allocate a unique token")
}
