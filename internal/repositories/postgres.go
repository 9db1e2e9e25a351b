package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meishi/backend/internal/db"
	"github.com/meishi/backend/internal/models"
)

const profileColumns = `id, username, password_hash, name, affiliation, icon_url, social_links, friends, created_at, updated_at`

// PostgresProfileRepository provides PostgreSQL-backed persistence for profiles.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

// Create persists a new profile record.
func (r *PostgresProfileRepository) Create(ctx context.Context, profile models.Profile) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO profiles (id, username, password_hash, name, affiliation, icon_url, social_links, friends, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, profile.ID, profile.Username, profile.PasswordHash, profile.Name, profile.Affiliation, profile.IconURL,
		nonNilLinks(profile.SocialLinks), nonNilFriends(profile.Friends), profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}

	return nil
}

// FindByID fetches a profile by its identifier.
func (r *PostgresProfileRepository) FindByID(ctx context.Context, id string) (models.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

// FindByUsername fetches a profile by its unique username.
func (r *PostgresProfileRepository) FindByUsername(ctx context.Context, username string) (models.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username)
}

func (r *PostgresProfileRepository) findOne(ctx context.Context, query string, arg any) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	profile, err := scanProfile(conn.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("select profile: %w", err)
	}

	return profile, nil
}

// FindByIDs batch-loads the profiles whose ids are listed. Unknown or
// malformed ids are skipped; the result order is unspecified.
func (r *PostgresProfileRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Profile, error) {
	keys := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		keys = append(keys, parsed)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}

// AddFriend appends ref to the stored friend list in a single statement. The
// containment check sits in the WHERE clause, which PostgreSQL re-evaluates
// against the latest row version once it holds the row lock, so concurrent
// appends to one list serialize instead of overwriting each other.
func (r *PostgresProfileRepository) AddFriend(ctx context.Context, id string, ref models.FriendRef, at time.Time) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE profiles
        SET friends = friends || jsonb_build_array(jsonb_build_object('id', $2::text, 'username', $3::text)),
            updated_at = $4
        WHERE id = $1
          AND NOT friends @> jsonb_build_array(jsonb_build_object('id', $2::text))
    `, id, ref.ID, ref.Username, at)
	if err != nil {
		return false, fmt.Errorf("append profile friend: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Nothing matched: either the friend is already listed or the profile
	// does not exist.
	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check profile: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}

	return false, nil
}

// UpdateDetails applies the non-nil fields of patch and returns the stored row.
func (r *PostgresProfileRepository) UpdateDetails(ctx context.Context, id string, patch models.ProfilePatch) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var links []string
	if len(patch.SocialLinks) > 0 {
		links = patch.SocialLinks
	}

	profile, err := scanProfile(conn.QueryRow(ctx, `
        UPDATE profiles
        SET name = COALESCE($2, name),
            affiliation = COALESCE($3, affiliation),
            social_links = COALESCE($4, social_links),
            updated_at = $5
        WHERE id = $1
        RETURNING `+profileColumns, id, patch.Name, patch.Affiliation, links, patch.UpdatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return models.Profile{}, ErrConflict
		}
		return models.Profile{}, fmt.Errorf("update profile details: %w", err)
	}

	return profile, nil
}

// UpdateIcon records the public URL of the profile's normalized icon.
func (r *PostgresProfileRepository) UpdateIcon(ctx context.Context, id, iconURL string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE profiles
        SET icon_url = $2, updated_at = $3
        WHERE id = $1
    `, id, iconURL, at)
	if err != nil {
		return fmt.Errorf("update profile icon: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresTokenRepository provides PostgreSQL-backed persistence for exchange tokens.
type PostgresTokenRepository struct {
	pool db.Pool
}

// NewPostgresTokenRepository constructs a token repository backed by PostgreSQL.
func NewPostgresTokenRepository(pool db.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

// FindByOwner loads the single token row of an owner.
func (r *PostgresTokenRepository) FindByOwner(ctx context.Context, ownerID string) (models.ExchangeToken, error) {
	return r.findOne(ctx, `SELECT owner_id, token, created_at FROM exchange_tokens WHERE owner_id = $1`, ownerID)
}

// FindByValue resolves a scanned token value to its row.
func (r *PostgresTokenRepository) FindByValue(ctx context.Context, token string) (models.ExchangeToken, error) {
	return r.findOne(ctx, `SELECT owner_id, token, created_at FROM exchange_tokens WHERE token = $1`, token)
}

func (r *PostgresTokenRepository) findOne(ctx context.Context, query string, arg any) (models.ExchangeToken, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ExchangeToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var token models.ExchangeToken
	if err := conn.QueryRow(ctx, query, arg).Scan(&token.OwnerID, &token.Token, &token.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ExchangeToken{}, ErrNotFound
		}
		return models.ExchangeToken{}, fmt.Errorf("select exchange token: %w", err)
	}

	token.CreatedAt = token.CreatedAt.UTC()
	return token, nil
}

// Insert creates the owner's token row.
func (r *PostgresTokenRepository) Insert(ctx context.Context, token models.ExchangeToken) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO exchange_tokens (owner_id, token, created_at)
        VALUES ($1, $2, $3)
    `, token.OwnerID, token.Token, token.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrConflict
		case isForeignKeyViolation(err):
			return ErrNotFound
		}
		return fmt.Errorf("insert exchange token: %w", err)
	}

	return nil
}

// Rotate replaces the value and timestamp of the owner's existing row.
func (r *PostgresTokenRepository) Rotate(ctx context.Context, token models.ExchangeToken) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE exchange_tokens
        SET token = $2, created_at = $3
        WHERE owner_id = $1
    `, token.OwnerID, token.Token, token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("rotate exchange token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes the owner's row only while it still holds the given value.
func (r *PostgresTokenRepository) Delete(ctx context.Context, ownerID, token string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM exchange_tokens
        WHERE owner_id = $1 AND token = $2
    `, ownerID, token)
	if err != nil {
		return fmt.Errorf("delete exchange token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.Name, &p.Affiliation, &p.IconURL,
		&p.SocialLinks, &p.Friends, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Profile{}, err
	}
	p.SocialLinks = nonNilLinks(p.SocialLinks)
	p.Friends = nonNilFriends(p.Friends)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func nonNilLinks(links []string) []string {
	if links == nil {
		return []string{}
	}
	return links
}

func nonNilFriends(friends []models.FriendRef) []models.FriendRef {
	if friends == nil {
		return []models.FriendRef{}
	}
	return friends
}

var _ ProfileRepository = (*PostgresProfileRepository)(nil)
var _ TokenRepository = (*PostgresTokenRepository)(nil)
