package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/meishi/backend/internal/models"
)

// MemoryStore keeps profiles and exchange tokens in process memory. It
// enforces the same uniqueness rules as the SQL schema and backs both the
// memory store mode and service tests.
type MemoryStore struct {
	mu         sync.Mutex
	profiles   map[string]models.Profile
	usernames  map[string]string
	tokens     map[string]models.ExchangeToken
	tokenOwner map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:   make(map[string]models.Profile),
		usernames:  make(map[string]string),
		tokens:     make(map[string]models.ExchangeToken),
		tokenOwner: make(map[string]string),
	}
}

// Profiles exposes the store through the profile repository contract.
func (s *MemoryStore) Profiles() ProfileRepository { return memoryProfiles{s} }

// Tokens exposes the store through the token repository contract.
func (s *MemoryStore) Tokens() TokenRepository { return memoryTokens{s} }

type memoryProfiles struct{ s *MemoryStore }

func (m memoryProfiles) Create(_ context.Context, profile models.Profile) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.ID]; ok {
		return ErrConflict
	}
	if _, ok := s.usernames[profile.Username]; ok {
		return ErrConflict
	}

	s.profiles[profile.ID] = cloneProfile(profile)
	s.usernames[profile.Username] = profile.ID
	return nil
}

func (m memoryProfiles) FindByID(_ context.Context, id string) (models.Profile, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return models.Profile{}, ErrNotFound
	}
	return cloneProfile(p), nil
}

func (m memoryProfiles) FindByUsername(_ context.Context, username string) (models.Profile, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usernames[username]
	if !ok {
		return models.Profile{}, ErrNotFound
	}
	return cloneProfile(s.profiles[id]), nil
}

func (m memoryProfiles) FindByIDs(_ context.Context, ids []string) ([]models.Profile, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(ids))
	var out []models.Profile
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := s.profiles[id]; ok {
			out = append(out, cloneProfile(p))
		}
	}
	return out, nil
}

func (m memoryProfiles) AddFriend(_ context.Context, id string, ref models.FriendRef, at time.Time) (bool, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return false, ErrNotFound
	}
	if !p.AddFriend(ref) {
		return false, nil
	}
	p.UpdatedAt = at
	s.profiles[id] = p
	return true, nil
}

func (m memoryProfiles) UpdateDetails(_ context.Context, id string, patch models.ProfilePatch) (models.Profile, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return models.Profile{}, ErrNotFound
	}
	if patch.Name != nil {
		p.Name = stringPtr(*patch.Name)
	}
	if patch.Affiliation != nil {
		p.Affiliation = stringPtr(*patch.Affiliation)
	}
	if len(patch.SocialLinks) > 0 {
		p.SocialLinks = append([]string{}, patch.SocialLinks...)
	}
	p.UpdatedAt = patch.UpdatedAt
	s.profiles[id] = p
	return cloneProfile(p), nil
}

func (m memoryProfiles) UpdateIcon(_ context.Context, id, iconURL string, at time.Time) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return ErrNotFound
	}
	p.IconURL = stringPtr(iconURL)
	p.UpdatedAt = at
	s.profiles[id] = p
	return nil
}

type memoryTokens struct{ s *MemoryStore }

func (m memoryTokens) FindByOwner(_ context.Context, ownerID string) (models.ExchangeToken, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[ownerID]
	if !ok {
		return models.ExchangeToken{}, ErrNotFound
	}
	return t, nil
}

func (m memoryTokens) FindByValue(_ context.Context, token string) (models.ExchangeToken, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.tokenOwner[token]
	if !ok {
		return models.ExchangeToken{}, ErrNotFound
	}
	return s.tokens[owner], nil
}

func (m memoryTokens) Insert(_ context.Context, token models.ExchangeToken) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[token.OwnerID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.tokens[token.OwnerID]; ok {
		return ErrConflict
	}
	if _, ok := s.tokenOwner[token.Token]; ok {
		return ErrConflict
	}

	s.tokens[token.OwnerID] = token
	s.tokenOwner[token.Token] = token.OwnerID
	return nil
}

func (m memoryTokens) Rotate(_ context.Context, token models.ExchangeToken) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tokens[token.OwnerID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := s.tokenOwner[token.Token]; taken && owner != token.OwnerID {
		return ErrConflict
	}

	delete(s.tokenOwner, current.Token)
	s.tokens[token.OwnerID] = token
	s.tokenOwner[token.Token] = token.OwnerID
	return nil
}

func (m memoryTokens) Delete(_ context.Context, ownerID, token string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tokens[ownerID]
	if !ok || current.Token != token {
		return ErrNotFound
	}

	delete(s.tokens, ownerID)
	delete(s.tokenOwner, token)
	return nil
}

func cloneProfile(p models.Profile) models.Profile {
	p.Name = clonePtr(p.Name)
	p.Affiliation = clonePtr(p.Affiliation)
	p.IconURL = clonePtr(p.IconURL)
	p.SocialLinks = append([]string{}, p.SocialLinks...)
	p.Friends = append([]models.FriendRef{}, p.Friends...)
	return p
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	return stringPtr(*s)
}

func stringPtr(s string) *string { return &s }

var _ ProfileRepository = memoryProfiles{}
var _ TokenRepository = memoryTokens{}
