// Package store provides storage backends for dreamstone.
//
// It includes an in-memory store for tests and single-process use, plus
// SQLite and PostgreSQL stores for persistent deployments.
package store

import (
	"errors"
	"strings"

	"github.com/dreamstone/dreamstone/internal/models"
)

// ErrUserExists indicates a register attempt for a username already taken.
var ErrUserExists = errors.New("username already exists")

// Store is the persistence interface shared by all backends. Lookups that
// find nothing return (nil, nil).
type Store interface {
	// CreateUser persists a new reader account. Returns ErrUserExists when
	// the username is taken.
	CreateUser(u models.User) error
	// GetUser returns the account with the given username.
	GetUser(username string) (*models.User, error)
	// SaveProgress stores or updates the reader's position in the novel.
	SaveProgress(p models.ReadingProgress) error
	// GetProgress returns the reader's current position.
	GetProgress(username string) (*models.ReadingProgress, error)
	// AddInvocation appends one entry to the flow audit log.
	AddInvocation(inv models.FlowInvocation) error
	// GetInvocations lists audit entries, newest first. An empty username
	// lists all readers; limit <= 0 means no limit.
	GetInvocations(username string, limit int) ([]models.FlowInvocation, error)
	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for the persistent stores.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for the persistent stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports whether a DSN refers to postgres or sqlite. File
// paths are treated as SQLite databases.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
