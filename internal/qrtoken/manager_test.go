package qrtoken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meishi/backend/internal/apperr"
	"github.com/meishi/backend/internal/models"
	"github.com/meishi/backend/internal/repositories"
)

const (
	ownerID = "6f1c2a64-8f7e-4d59-9a77-5b0a1f4e2c11"
	otherID = "0b8c1c1e-5d8f-4a8e-9a0c-3f9e2d7b6a55"
)

type stubAuth struct {
	err   error
	calls int
}

func (s *stubAuth) Authenticate(_ context.Context, id, _ string) (models.Profile, error) {
	s.calls++
	if s.err != nil {
		return models.Profile{}, s.err
	}
	return models.Profile{ID: id}, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func sequence(values ...string) func(int) string {
	i := 0
	return func(int) string {
		v := values[i%len(values)]
		i++
		return v
	}
}

func newStore(t *testing.T) *repositories.MemoryStore {
	t.Helper()
	store := repositories.NewMemoryStore()
	for _, p := range []models.Profile{{ID: ownerID, Username: "owner"}, {ID: otherID, Username: "other"}} {
		require.NoError(t, store.Profiles().Create(context.Background(), p))
	}
	return store
}

func newManager(store *repositories.MemoryStore, c *clock) *Manager {
	m := NewManager(&stubAuth{}, store.Tokens())
	m.Now = c.Now
	return m
}

func TestIssueOrRotateIsIdempotentWithinTTL(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := newClock()
	m := newManager(store, c)

	first, err := m.IssueOrRotate(ctx, ownerID, "h")
	require.NoError(t, err)
	assert.Len(t, first, DefaultLength)

	c.Advance(4*time.Minute + 59*time.Second)
	second, err := m.IssueOrRotate(ctx, ownerID, "h")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	row, err := store.Tokens().FindByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, first, row.Token)
}

func TestIssueOrRotateRotatesExpiredRowInPlace(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := newClock()
	m := newManager(store, c)
	m.Generate = sequence("first", "second")

	first, err := m.IssueOrRotate(ctx, ownerID, "h")
	require.NoError(t, err)

	c.Advance(DefaultTTL)
	second, err := m.IssueOrRotate(ctx, ownerID, "h")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	row, err := store.Tokens().FindByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "second", row.Token)
	assert.Equal(t, c.now, row.CreatedAt)

	_, err = store.Tokens().FindByValue(ctx, "first")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestIssueOrRotateRetriesOnValueCollision(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := newClock()
	require.NoError(t, store.Tokens().Insert(ctx, models.ExchangeToken{OwnerID: otherID, Token: "taken", CreatedAt: c.now}))

	m := newManager(store, c)
	m.Generate = sequence("taken", "taken", "fresh")

	token, err := m.IssueOrRotate(ctx, ownerID, "h")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}

func TestIssueOrRotateExhaustsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := newClock()
	require.NoError(t, store.Tokens().Insert(ctx, models.ExchangeToken{OwnerID: otherID, Token: "taken", CreatedAt: c.now}))

	calls := 0
	m := newManager(store, c)
	m.Generate = func(int) string {
		calls++
		return "taken"
	}

	_, err := m.IssueOrRotate(ctx, ownerID, "h")
	assert.True(t, apperr.Is(err, apperr.CodeExhausted), "got %v", err)
	assert.Equal(t, DefaultMaxAttempts, calls)

	_, err = store.Tokens().FindByOwner(ctx, ownerID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestIssueOrRotateRotationCollisionRetries(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := newClock()
	require.NoError(t, store.Tokens().Insert(ctx, models.ExchangeToken{OwnerID: otherID, Token: "taken", CreatedAt: c.now}))
	require.NoError(t, store.Tokens().Insert(ctx, models.ExchangeToken{OwnerID: ownerID, Token: "stale", CreatedAt: c.now.Add(-time.Hour)}))

	m := newManager(store, c)
	m.Generate = sequence("taken", "renewed")

	token, err := m.IssueOrRotate(ctx, ownerID, "h")
	require.NoError(t, err)
	assert.Equal(t, "renewed", token)
}

func TestIssueOrRotateRejectsUnauthenticated(t *testing.T) {
	store := newStore(t)
	authn := &stubAuth{err: apperr.Unauthorized("invalid credentials")}
	m := NewManager(authn, store.Tokens())

	_, err := m.IssueOrRotate(context.Background(), ownerID, "bad")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, err = store.Tokens().FindByOwner(context.Background(), ownerID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

type scriptedTokens struct {
	findByOwner []func() (models.ExchangeToken, error)
	insertErr   []error
	rotateErr   []error
	inserted    []models.ExchangeToken
	rotated     []models.ExchangeToken
}

func (s *scriptedTokens) FindByOwner(context.Context, string) (models.ExchangeToken, error) {
	next := s.findByOwner[0]
	if len(s.findByOwner) > 1 {
		s.findByOwner = s.findByOwner[1:]
	}
	return next()
}

func (s *scriptedTokens) FindByValue(context.Context, string) (models.ExchangeToken, error) {
	return models.ExchangeToken{}, repositories.ErrNotFound
}

func (s *scriptedTokens) Insert(_ context.Context, token models.ExchangeToken) error {
	s.inserted = append(s.inserted, token)
	return pop(&s.insertErr)
}

func (s *scriptedTokens) Rotate(_ context.Context, token models.ExchangeToken) error {
	s.rotated = append(s.rotated, token)
	return pop(&s.rotateErr)
}

func (s *scriptedTokens) Delete(context.Context, string, string) error { return nil }

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func notFound() (models.ExchangeToken, error) { return models.ExchangeToken{}, repositories.ErrNotFound }

func TestIssueOrRotateFallsBackToInsertWhenRowConsumed(t *testing.T) {
	c := newClock()
	tokens := &scriptedTokens{
		findByOwner: []func() (models.ExchangeToken, error){
			func() (models.ExchangeToken, error) {
				return models.ExchangeToken{OwnerID: ownerID, Token: "old", CreatedAt: c.now.Add(-time.Hour)}, nil
			},
		},
		rotateErr: []error{repositories.ErrNotFound},
	}
	m := NewManager(&stubAuth{}, tokens)
	m.Now = c.Now
	m.Generate = sequence("a", "b")

	token, err := m.IssueOrRotate(context.Background(), ownerID, "h")
	require.NoError(t, err)
	assert.Equal(t, "b", token)
	assert.Len(t, tokens.rotated, 1)
	assert.Len(t, tokens.inserted, 1)
}

func TestIssueOrRotateReturnsConcurrentlyInsertedRow(t *testing.T) {
	c := newClock()
	tokens := &scriptedTokens{
		findByOwner: []func() (models.ExchangeToken, error){
			notFound,
			func() (models.ExchangeToken, error) {
				return models.ExchangeToken{OwnerID: ownerID, Token: "winner", CreatedAt: c.now}, nil
			},
		},
		insertErr: []error{repositories.ErrConflict},
	}
	m := NewManager(&stubAuth{}, tokens)
	m.Now = c.Now

	token, err := m.IssueOrRotate(context.Background(), ownerID, "h")
	require.NoError(t, err)
	assert.Equal(t, "winner", token)
	assert.Len(t, tokens.inserted, 1)
}

func TestIssueOrRotateStoreUnavailable(t *testing.T) {
	boom := errors.New("connection reset")

	cases := []struct {
		name   string
		tokens *scriptedTokens
	}{
		{
			name: "lookup",
			tokens: &scriptedTokens{findByOwner: []func() (models.ExchangeToken, error){
				func() (models.ExchangeToken, error) { return models.ExchangeToken{}, boom },
			}},
		},
		{
			name: "insert",
			tokens: &scriptedTokens{
				findByOwner: []func() (models.ExchangeToken, error){notFound},
				insertErr:   []error{boom},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(&stubAuth{}, tc.tokens)
			_, err := m.IssueOrRotate(context.Background(), ownerID, "h")
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.CodeStoreUnavailable), "got %v", err)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	m := NewManager(&stubAuth{}, &scriptedTokens{}, WithTTL(time.Minute), WithLength(12), WithMaxAttempts(2), WithTTL(0))
	assert.Equal(t, time.Minute, m.TTL())
	assert.Equal(t, 12, m.length)
	assert.Equal(t, 2, m.maxAttempts)
}
