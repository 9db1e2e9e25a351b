package models

import "time"

// Profile is a registered user and the owner of its own friend list.
type Profile struct {
	ID           string
	Username     string
	PasswordHash string
	Name         *string
	Affiliation  *string
	IconURL      *string
	SocialLinks  []string
	Friends      []FriendRef
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FriendRef is one entry of a profile's friend list.
type FriendRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Ref returns the identity other profiles store when they befriend p.
func (p Profile) Ref() FriendRef {
	return FriendRef{ID: p.ID, Username: p.Username}
}

// HasFriend reports whether id appears in the profile's friend list.
func (p Profile) HasFriend(id string) bool {
	for _, f := range p.Friends {
		if f.ID == id {
			return true
		}
	}
	return false
}

// AddFriend appends ref unless an entry with the same id is already present,
// keeping existing order. It reports whether the list changed.
func (p *Profile) AddFriend(ref FriendRef) bool {
	if p.HasFriend(ref.ID) {
		return false
	}
	p.Friends = append(p.Friends, ref)
	return true
}

// ProfilePatch lists the display fields a profile update may change. Nil
// fields are left untouched.
type ProfilePatch struct {
	Name        *string
	Affiliation *string
	SocialLinks []string
	UpdatedAt   time.Time
}

// Empty reports whether the patch would change nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Affiliation == nil && len(p.SocialLinks) == 0
}

// ExchangeToken is the value a user currently advertises in their QR code.
type ExchangeToken struct {
	OwnerID   string
	Token     string
	CreatedAt time.Time
}

// Age returns how long the token has been live at now.
func (t ExchangeToken) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// LiveAt reports whether the token is still within ttl at now.
func (t ExchangeToken) LiveAt(now time.Time, ttl time.Duration) bool {
	return t.Age(now) < ttl
}
