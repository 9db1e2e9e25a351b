// Package profiles manages registration, login and the editable parts of a
// profile.
package profiles

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meishi/backend/internal/apperr"
	"github.com/meishi/backend/internal/icons"
	"github.com/meishi/backend/internal/logging"
	"github.com/meishi/backend/internal/models"
	"github.com/meishi/backend/internal/repositories"
	"github.com/meishi/backend/internal/validate"
)

// Authenticator verifies credentials by id or by username.
type Authenticator interface {
	Authenticate(ctx context.Context, id, hash string) (models.Profile, error)
	Login(ctx context.Context, username, hash string) (models.Profile, error)
}

// ProfileWriter is the write side of the profile repository.
type ProfileWriter interface {
	Create(ctx context.Context, profile models.Profile) error
	UpdateDetails(ctx context.Context, id string, patch models.ProfilePatch) (models.Profile, error)
	UpdateIcon(ctx context.Context, id, iconURL string, at time.Time) error
}

// IconStorage persists normalized icons and returns their public URL.
type IconStorage interface {
	Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// Registration is the input of Register. Optional fields are nil when absent.
type Registration struct {
	Username     string
	PasswordHash string
	Name         *string
	Affiliation  *string
	IconURL      *string
	SocialLinks  []string
}

// Changes is the input of Update.
type Changes struct {
	ID           string
	PasswordHash string
	Name         *string
	Affiliation  *string
	SocialLinks  []string
}

// Service implements the profile lifecycle outside of the friend graph.
type Service struct {
	auth     Authenticator
	profiles ProfileWriter
	icons    IconStorage
	iconSize int

	Now   func() time.Time
	NewID func() string
}

// NewService constructs a Service. icons may be nil, in which case icon
// uploads fail as unavailable.
func NewService(auth Authenticator, profiles ProfileWriter, icons IconStorage, iconSize int) *Service {
	return &Service{
		auth:     auth,
		profiles: profiles,
		icons:    icons,
		iconSize: iconSize,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// Register creates a profile with an empty friend list.
func (s *Service) Register(ctx context.Context, in Registration) (models.Profile, error) {
	if !validate.Username(in.Username) || !validate.Secret(in.PasswordHash) {
		return models.Profile{}, apperr.Malformed("username and password_hash are required")
	}
	if err := checkText(in.Name, in.Affiliation); err != nil {
		return models.Profile{}, err
	}
	// Registration stores links and icon_url as given; only updates insist
	// on http(s) URLs.
	if !validate.LinkCount(in.SocialLinks) {
		return models.Profile{}, apperr.Malformed("social_links must have at most 5 entries")
	}

	now := s.Now()
	profile := models.Profile{
		ID:           s.NewID(),
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Name:         in.Name,
		Affiliation:  in.Affiliation,
		IconURL:      in.IconURL,
		SocialLinks:  append([]string{}, in.SocialLinks...),
		Friends:      []models.FriendRef{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.Profile{}, apperr.Conflict("username already taken")
		}
		return models.Profile{}, apperr.StoreUnavailable("create profile", err)
	}

	logging.FromContext(ctx).Info("profile registered", slog.String("profile_id", profile.ID))
	return profile, nil
}

// Login resolves a username and hash to the profile identity.
func (s *Service) Login(ctx context.Context, username, hash string) (models.Profile, error) {
	return s.auth.Login(ctx, username, hash)
}

// Update applies display-field changes for an authenticated caller.
func (s *Service) Update(ctx context.Context, in Changes) (models.Profile, error) {
	patch := models.ProfilePatch{Name: in.Name, Affiliation: in.Affiliation, SocialLinks: in.SocialLinks}
	if patch.Empty() {
		return models.Profile{}, apperr.Malformed("nothing to update")
	}
	if err := checkText(in.Name, in.Affiliation); err != nil {
		return models.Profile{}, err
	}
	if !validate.SocialLinks(in.SocialLinks) {
		return models.Profile{}, apperr.Malformed("social_links must be at most 5 http(s) URLs")
	}

	if _, err := s.auth.Authenticate(ctx, in.ID, in.PasswordHash); err != nil {
		return models.Profile{}, err
	}

	patch.UpdatedAt = s.Now()
	profile, err := s.profiles.UpdateDetails(ctx, in.ID, patch)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Profile{}, apperr.NotFound("profile not found")
		}
		return models.Profile{}, apperr.StoreUnavailable("update profile", err)
	}
	return profile, nil
}

// UploadIcon normalizes the image in r, stores it as <id>.png and records
// its URL on the profile.
func (s *Service) UploadIcon(ctx context.Context, id, hash string, r io.Reader) (url string, err error) {
	ctx, span := logging.StartSpan(ctx, "profiles.upload_icon")
	defer func() { span.End(err) }()

	if _, err := s.auth.Authenticate(ctx, id, hash); err != nil {
		return "", err
	}
	if s.icons == nil {
		return "", apperr.StoreUnavailable("icon storage is not configured", nil)
	}

	normalized, err := icons.Normalize(r, s.iconSize)
	if err != nil {
		if errors.Is(err, icons.ErrUnsupported) {
			return "", apperr.Wrap(apperr.CodeMalformed, "icon must be an image", err)
		}
		return "", apperr.Wrap(apperr.CodeUnknown, "process icon", err)
	}

	url, err = s.icons.Save(ctx, id+".png", bytes.NewReader(normalized), icons.ContentType)
	if err != nil {
		return "", apperr.StoreUnavailable("store icon", err)
	}

	if err := s.profiles.UpdateIcon(ctx, id, url, s.Now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", apperr.NotFound("profile not found")
		}
		return "", apperr.StoreUnavailable("update icon url", err)
	}
	return url, nil
}

func checkText(name, affiliation *string) error {
	if name != nil && !validate.DisplayText(*name) {
		return apperr.Malformed("name is too long")
	}
	if affiliation != nil && !validate.DisplayText(*affiliation) {
		return apperr.Malformed("affiliation is too long")
	}
	return nil
}
