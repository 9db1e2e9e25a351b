// Package friends projects the stored friend lists into the views returned
// to clients.
package friends

import (
	"context"
	"errors"

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

// ProfileReader loads profiles one at a time or in batches.
type ProfileReader interface {
	FindByID(ctx context.Context, id string) (models.Profile, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Profile, error)
}

// Account is the authenticated owner's own view.
type Account struct {
	Profile models.Profile
	// FriendsOfFriends maps each friend's username to the usernames on that
	// friend's own list.
	FriendsOfFriends map[string][]string
}

// PublicProfile is what anyone may see about a profile. Friends is set only
// for requesters who list the target as a friend.
type PublicProfile struct {
	ID          string
	Username    string
	Name        *string
	Affiliation *string
	IconURL     *string
	SocialLinks []string
	Friends     *[]models.FriendRef
}

// Service builds account and public views.
type Service struct {
	auth     Authenticator
	profiles ProfileReader
}

// NewService constructs a Service.
func NewService(auth Authenticator, profiles ProfileReader) *Service {
	return &Service{auth: auth, profiles: profiles}
}

// SelfView returns the caller's profile with one level of friends-of-friends.
func (s *Service) SelfView(ctx context.Context, id, hash string) (acct Account, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.self_view")
	defer func() { span.End(err) }()

	profile, err := s.auth.Authenticate(ctx, id, hash)
	if err != nil {
		return Account{}, err
	}

	acct = Account{Profile: profile, FriendsOfFriends: map[string][]string{}}
	if len(profile.Friends) == 0 {
		return acct, nil
	}

	ids := make([]string, 0, len(profile.Friends))
	for _, f := range profile.Friends {
		ids = append(ids, f.ID)
	}

	friends, err := s.profiles.FindByIDs(ctx, ids)
	if err != nil {
		return Account{}, apperr.StoreUnavailable("load friends", err)
	}

	for _, friend := range friends {
		names := make([]string, 0, len(friend.Friends))
		for _, f := range friend.Friends {
			names = append(names, f.Username)
		}
		acct.FriendsOfFriends[friend.Username] = names
	}

	return acct, nil
}

// PublicView returns the public subset of target. When requester is given
// it must authenticate, and the target's friend list is included only if
// the target appears on the requester's own list.
func (s *Service) PublicView(ctx context.Context, targetID string, requester *auth.Credentials) (view PublicProfile, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.public_view")
	defer func() { span.End(err) }()

	if !validate.UUID(targetID) {
		return PublicProfile{}, apperr.Malformed("target is invalid")
	}

	isFriend := false
	if requester != nil && (requester.ID != "" || requester.PasswordHash != "") {
		if requester.ID == "" || requester.PasswordHash == "" {
			return PublicProfile{}, apperr.Malformed("id and password_hash must be supplied together")
		}
		me, err := s.auth.Authenticate(ctx, requester.ID, requester.PasswordHash)
		if err != nil {
			return PublicProfile{}, err
		}
		isFriend = me.HasFriend(targetID)
	}

	target, err := s.profiles.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return PublicProfile{}, apperr.NotFound("user not found")
		}
		return PublicProfile{}, apperr.StoreUnavailable("load user", err)
	}

	view = PublicProfile{
		ID:          target.ID,
		Username:    target.Username,
		Name:        target.Name,
		Affiliation: target.Affiliation,
		IconURL:     target.IconURL,
		SocialLinks: target.SocialLinks,
	}
	if isFriend {
		friends := target.Friends
		view.Friends = &friends
	}

	return view, nil
}
