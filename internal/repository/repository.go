// Package repository provides PostgreSQL-backed persistence for user
// accounts, permission masks, session fingerprints, and encrypted API
// secrets. It is the repo's one boundary onto the database: everything
// above this package talks to [DB], never to pgx directly.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/idropr/core/internal/permission"
	"github.com/idropr/core/internal/session"
)

// ErrNotFound is returned when a lookup by username, email, user ID, or
// secret ID matches no row.
var ErrNotFound = errors.New("repository: not found")

// ErrNameTaken is returned by CreateSecret when a secret with the given
// name already exists.
var ErrNameTaken = errors.New("repository: name already in use")

// UserRow is a user joined with its permission mask, the shape the
// session-login flow needs in a single round trip.
type UserRow struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Kind         session.UserKind
	Status       session.AccountStatus
	Permissions  permission.Mask
}

// ToSessionUser converts a UserRow into the session.User the controller
// stores on a live session.
func (u UserRow) ToSessionUser() session.User {
	return session.User{
		Kind:        u.Kind,
		ID:          u.ID,
		Username:    u.Username,
		Status:      u.Status,
		Permissions: u.Permissions,
	}
}

// Secret is a stored API credential. APIKey and APISecret carry the
// nonce(12)‖AES-256-GCM(ciphertext‖tag) wire format internal/secretcodec
// produces; they are nil when the corresponding field was never set.
type Secret struct {
	ID          int64
	Name        string
	Description string
	APIKey      []byte
	APISecret   []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SystemSettings is the singleton settings row, keyed by id=1.
type SystemSettings struct {
	ID       int64
	Settings []byte
}

// DB is the persistence boundary this repo depends on: a health check, a
// transactional insert path (CreateSecret), and parameterized lookups
// returning tagged row structs for users, user permissions, sessions, and
// encrypted secrets.
//
// PostgresDB is the only production implementation; tests substitute a
// hand-rolled fake rather than a generated mock, testing call sites
// against small local interfaces.
type DB interface {
	// Ping reports whether the database connection is healthy.
	Ping(ctx context.Context) error

	// FindUserByUsername looks up a user and its permission mask by
	// username. Returns ErrNotFound if no such user exists.
	FindUserByUsername(ctx context.Context, username string) (UserRow, error)

	// FindUserByEmail looks up a user and its permission mask by email.
	// Returns ErrNotFound if no such user exists.
	FindUserByEmail(ctx context.Context, email string) (UserRow, error)

	// UpsertSession records the current session fingerprint for userID,
	// replacing any existing row for that user.
	UpsertSession(ctx context.Context, userID int64, fingerprint string, at time.Time) error

	// SessionFingerprint returns the stored fingerprint for userID.
	// Returns ErrNotFound if the user has no recorded session.
	SessionFingerprint(ctx context.Context, userID int64) (string, error)

	// DeleteSession removes userID's recorded session row, if any.
	DeleteSession(ctx context.Context, userID int64) error

	// CreateSecret inserts a new secret inside a transaction, returning
	// ErrNameTaken rather than a raw constraint violation when the name is
	// already in use.
	CreateSecret(ctx context.Context, secret Secret) (Secret, error)

	// GetSecret retrieves a secret by ID. Returns ErrNotFound if absent.
	GetSecret(ctx context.Context, id int64) (Secret, error)

	// UpdateSecret updates an existing secret's mutable fields and
	// returns the updated row. Returns ErrNotFound if absent.
	UpdateSecret(ctx context.Context, secret Secret) (Secret, error)

	// DeleteSecret removes a secret by ID. Returns ErrNotFound if absent.
	DeleteSecret(ctx context.Context, id int64) error

	// GetSystemSettings retrieves the singleton settings row (id=1).
	GetSystemSettings(ctx context.Context) (SystemSettings, error)
}
