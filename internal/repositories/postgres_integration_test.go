package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meishi/backend/internal/db"
	"github.com/meishi/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runWithDatabase(m))
}

func runWithDatabase(m *testing.M) int {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server, skipping postgres tests: %v\n", err)
		return m.Run()
	}
	defer server.Stop()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, "up"); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		return 1
	}

	testPool = pool
	return m.Run()
}

func requireDatabase(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("cockroach test server unavailable")
	}
	resetDatabase(t)
}

func TestPostgresProfileRepository_CreateFindAndConflict(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	repo := NewPostgresProfileRepository(testPool)

	name := "Alice"
	profile := newTestProfile("alice")
	profile.Name = &name
	profile.SocialLinks = []string{"https://example.com/alice"}

	if err := repo.Create(ctx, profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	dup := newTestProfile("alice")
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on duplicate username, got %v", err)
	}

	got, err := repo.FindByID(ctx, profile.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got.Username != "alice" || got.Name == nil || *got.Name != name {
		t.Fatalf("unexpected profile %+v", got)
	}
	if len(got.SocialLinks) != 1 || got.Friends == nil || len(got.Friends) != 0 {
		t.Fatalf("unexpected collections links=%v friends=%v", got.SocialLinks, got.Friends)
	}
	if !timesClose(got.CreatedAt, profile.CreatedAt, time.Millisecond) {
		t.Fatalf("created_at mismatch: %s vs %s", got.CreatedAt, profile.CreatedAt)
	}

	byName, err := repo.FindByUsername(ctx, "alice")
	if err != nil || byName.ID != profile.ID {
		t.Fatalf("find by username: %+v %v", byName, err)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresProfileRepository_FriendsAndDetails(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	repo := NewPostgresProfileRepository(testPool)

	alice := createTestProfile(t, repo, "alice")
	bob := createTestProfile(t, repo, "bob")

	at := time.Now().UTC().Truncate(time.Millisecond)
	added, err := repo.AddFriend(ctx, alice.ID, bob.Ref(), at)
	if err != nil || !added {
		t.Fatalf("add friend: added=%v err=%v", added, err)
	}
	added, err = repo.AddFriend(ctx, alice.ID, models.FriendRef{ID: bob.ID, Username: "renamed"}, at)
	if err != nil || added {
		t.Fatalf("duplicate add: added=%v err=%v", added, err)
	}
	if _, err := repo.AddFriend(ctx, uuid.NewString(), bob.Ref(), at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown profile, got %v", err)
	}

	got, err := repo.FindByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("reload alice: %v", err)
	}
	if len(got.Friends) != 1 || got.Friends[0] != bob.Ref() {
		t.Fatalf("unexpected friends %+v", got.Friends)
	}

	batch, err := repo.FindByIDs(ctx, []string{alice.ID, bob.ID, "not-a-uuid", uuid.NewString()})
	if err != nil {
		t.Fatalf("find by ids: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected two profiles, got %d", len(batch))
	}

	affiliation := "Meishi Labs"
	updated, err := repo.UpdateDetails(ctx, alice.ID, models.ProfilePatch{Affiliation: &affiliation, UpdatedAt: at})
	if err != nil {
		t.Fatalf("update details: %v", err)
	}
	if updated.Affiliation == nil || *updated.Affiliation != affiliation || updated.Name != nil {
		t.Fatalf("unexpected details %+v", updated)
	}
	if len(updated.Friends) != 1 {
		t.Fatal("details update must not touch friends")
	}

	if err := repo.UpdateIcon(ctx, alice.ID, "https://cdn.test/icons/a.png", at); err != nil {
		t.Fatalf("update icon: %v", err)
	}
	got, _ = repo.FindByID(ctx, alice.ID)
	if got.IconURL == nil || *got.IconURL != "https://cdn.test/icons/a.png" {
		t.Fatalf("unexpected icon url %v", got.IconURL)
	}
}

func TestPostgresProfileRepository_ConcurrentAddFriend(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	repo := NewPostgresProfileRepository(testPool)

	hub := createTestProfile(t, repo, "hub")
	friends := []models.Profile{
		createTestProfile(t, repo, "f1"),
		createTestProfile(t, repo, "f2"),
		createTestProfile(t, repo, "f3"),
		createTestProfile(t, repo, "f4"),
	}

	var wg sync.WaitGroup
	for _, f := range friends {
		wg.Add(1)
		go func(ref models.FriendRef) {
			defer wg.Done()
			if _, err := repo.AddFriend(ctx, hub.ID, ref, time.Now().UTC()); err != nil {
				t.Errorf("add friend %s: %v", ref.Username, err)
			}
		}(f.Ref())
	}
	wg.Wait()

	got, err := repo.FindByID(ctx, hub.ID)
	if err != nil {
		t.Fatalf("reload hub: %v", err)
	}
	if len(got.Friends) != len(friends) {
		t.Fatalf("expected %d friends, got %+v", len(friends), got.Friends)
	}
	for _, f := range friends {
		if !got.HasFriend(f.ID) {
			t.Fatalf("missing friend %s in %+v", f.Username, got.Friends)
		}
	}
}

func TestPostgresTokenRepository_Lifecycle(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	profiles := NewPostgresProfileRepository(testPool)
	repo := NewPostgresTokenRepository(testPool)

	alice := createTestProfile(t, profiles, "alice")
	bob := createTestProfile(t, profiles, "bob")
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := repo.Insert(ctx, models.ExchangeToken{OwnerID: alice.ID, Token: "tok-a", CreatedAt: now}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, models.ExchangeToken{OwnerID: alice.ID, Token: "tok-b", CreatedAt: now}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on second row for owner, got %v", err)
	}
	if err := repo.Insert(ctx, models.ExchangeToken{OwnerID: bob.ID, Token: "tok-a", CreatedAt: now}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on duplicate value, got %v", err)
	}

	byValue, err := repo.FindByValue(ctx, "tok-a")
	if err != nil || byValue.OwnerID != alice.ID {
		t.Fatalf("find by value: %+v %v", byValue, err)
	}

	later := now.Add(time.Minute)
	if err := repo.Rotate(ctx, models.ExchangeToken{OwnerID: alice.ID, Token: "tok-c", CreatedAt: later}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := repo.Rotate(ctx, models.ExchangeToken{OwnerID: bob.ID, Token: "tok-d", CreatedAt: later}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found rotating missing row, got %v", err)
	}

	byOwner, err := repo.FindByOwner(ctx, alice.ID)
	if err != nil {
		t.Fatalf("find by owner: %v", err)
	}
	if byOwner.Token != "tok-c" || !timesClose(byOwner.CreatedAt, later, time.Millisecond) {
		t.Fatalf("unexpected rotated row %+v", byOwner)
	}
	if _, err := repo.FindByValue(ctx, "tok-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old value to be gone, got %v", err)
	}

	if err := repo.Delete(ctx, alice.ID, "tok-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected delete of stale value to miss, got %v", err)
	}
	if err := repo.Delete(ctx, alice.ID, "tok-c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByOwner(ctx, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected row to be deleted, got %v", err)
	}
}

func TestPostgresTokenRepository_InsertRequiresProfile(t *testing.T) {
	requireDatabase(t)
	repo := NewPostgresTokenRepository(testPool)

	err := repo.Insert(context.Background(), models.ExchangeToken{OwnerID: uuid.NewString(), Token: "orphan", CreatedAt: time.Now().UTC()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing owner to map to not found, got %v", err)
	}
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE exchange_tokens, profiles CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func newTestProfile(username string) models.Profile {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Profile{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: "hash-" + username,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func createTestProfile(t *testing.T, repo *PostgresProfileRepository, username string) models.Profile {
	t.Helper()
	profile := newTestProfile(username)
	if err := repo.Create(context.Background(), profile); err != nil {
		t.Fatalf("create test profile: %v", err)
	}
	return profile
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
