package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idropr/core/internal/permission"
	"github.com/idropr/core/internal/session"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint
// violation (23505).
const uniqueViolation = "23505"

// PostgresDB implements DB backed by a pgxpool connection pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB wraps an already-configured pool. Callers own the pool's
// lifecycle (pgxpool.New/Close); PostgresDB never closes it.
func NewPostgresDB(pool *pgxpool.Pool) *PostgresDB {
	return &PostgresDB{pool: pool}
}

// Ping reports whether the database connection is healthy.
func (p *PostgresDB) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (p *PostgresDB) findUser(ctx context.Context, predicate, value string) (UserRow, error) {
	var row UserRow
	var kind, status int32
	var upper, lower int64

	err := p.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT u.id, u.username, u.email, u.password_hash, u.user_type_id, u.user_status_id,
		       COALESCE(p.upper, 0), COALESCE(p.lower, 0)
		FROM users u
		LEFT JOIN user_permissions p ON p.user_id = u.id
		WHERE u.%s = $1
	`, predicate), value).Scan(
		&row.ID, &row.Username, &row.Email, &row.PasswordHash, &kind, &status, &upper, &lower,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRow{}, ErrNotFound
	}
	if err != nil {
		return UserRow{}, fmt.Errorf("find user by %s: %w", predicate, err)
	}

	row.Kind = session.UserKind(kind)
	row.Status = session.AccountStatus(status)
	row.Permissions = permission.Mask{Upper: uint64(upper), Lower: uint64(lower)}

	return row, nil
}

// FindUserByUsername looks up a user and its permission mask by username.
func (p *PostgresDB) FindUserByUsername(ctx context.Context, username string) (UserRow, error) {
	return p.findUser(ctx, "username", username)
}

// FindUserByEmail looks up a user and its permission mask by email.
func (p *PostgresDB) FindUserByEmail(ctx context.Context, email string) (UserRow, error) {
	return p.findUser(ctx, "email", email)
}

// UpsertSession records the current session fingerprint for userID,
// replacing any existing row for that user via an upsert on the user_id
// unique key.
func (p *PostgresDB) UpsertSession(ctx context.Context, userID int64, fingerprint string, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (user_id, hash, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET hash = EXCLUDED.hash, created_at = EXCLUDED.created_at
	`, userID, fingerprint, at)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// SessionFingerprint returns the stored fingerprint for userID.
func (p *PostgresDB) SessionFingerprint(ctx context.Context, userID int64) (string, error) {
	var hash string
	err := p.pool.QueryRow(ctx, `SELECT hash FROM sessions WHERE user_id = $1`, userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session fingerprint: %w", err)
	}
	return hash, nil
}

// DeleteSession removes userID's recorded session row, if any.
func (p *PostgresDB) DeleteSession(ctx context.Context, userID int64) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CreateSecret inserts a new secret inside a transaction, translating a
// unique-name collision into ErrNameTaken instead of a raw pgconn error.
func (p *PostgresDB) CreateSecret(ctx context.Context, secret Secret) (Secret, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Secret{}, fmt.Errorf("begin create secret tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var created Secret
	err = tx.QueryRow(ctx, `
		INSERT INTO api_secrets (name, description, api_key, api_secret)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, api_key, api_secret, created_at, updated_at
	`, secret.Name, secret.Description, secret.APIKey, secret.APISecret).Scan(
		&created.ID, &created.Name, &created.Description,
		&created.APIKey, &created.APISecret, &created.CreatedAt, &created.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return Secret{}, ErrNameTaken
	}
	if err != nil {
		return Secret{}, fmt.Errorf("create secret: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Secret{}, fmt.Errorf("commit create secret tx: %w", err)
	}

	return created, nil
}

// GetSecret retrieves a secret by ID.
func (p *PostgresDB) GetSecret(ctx context.Context, id int64) (Secret, error) {
	var s Secret
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, description, api_key, api_secret, created_at, updated_at
		FROM api_secrets
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Description, &s.APIKey, &s.APISecret, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Secret{}, ErrNotFound
	}
	if err != nil {
		return Secret{}, fmt.Errorf("get secret: %w", err)
	}
	return s, nil
}

// UpdateSecret updates an existing secret's mutable fields and returns the
// updated row.
func (p *PostgresDB) UpdateSecret(ctx context.Context, secret Secret) (Secret, error) {
	var updated Secret
	err := p.pool.QueryRow(ctx, `
		UPDATE api_secrets
		SET name = $2, description = $3, api_key = $4, api_secret = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, api_key, api_secret, created_at, updated_at
	`, secret.ID, secret.Name, secret.Description, secret.APIKey, secret.APISecret).Scan(
		&updated.ID, &updated.Name, &updated.Description,
		&updated.APIKey, &updated.APISecret, &updated.CreatedAt, &updated.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Secret{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return Secret{}, ErrNameTaken
	}
	if err != nil {
		return Secret{}, fmt.Errorf("update secret: %w", err)
	}
	return updated, nil
}

// DeleteSecret removes a secret by ID.
func (p *PostgresDB) DeleteSecret(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM api_secrets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSystemSettings retrieves the singleton settings row (id=1).
func (p *PostgresDB) GetSystemSettings(ctx context.Context) (SystemSettings, error) {
	var s SystemSettings
	err := p.pool.QueryRow(ctx, `SELECT id, settings FROM system_settings WHERE id = 1`).Scan(&s.ID, &s.Settings)
	if errors.Is(err, pgx.ErrNoRows) {
		return SystemSettings{}, ErrNotFound
	}
	if err != nil {
		return SystemSettings{}, fmt.Errorf("get system settings: %w", err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
