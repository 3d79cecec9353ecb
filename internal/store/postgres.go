// Package store provides storage backends for dreamstone.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/dreamstone/dreamstone/internal/models"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateUser(u models.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			slog.Debug("PostgresStore CreateUser duplicate username", "username", u.Username)
			return ErrUserExists
		}
		slog.Error("PostgresStore CreateUser failed", "error", err, "username", u.Username)
		return fmt.Errorf("failed to insert user %s: %w", u.Username, err)
	}
	slog.Debug("PostgresStore CreateUser succeeded", "username", u.Username)
	return nil
}

func (s *PostgresStore) GetUser(username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "username", username)
		return nil, fmt.Errorf("failed to query user %s: %w", username, err)
	}
	return &u, nil
}

func (s *PostgresStore) SaveProgress(p models.ReadingProgress) error {
	_, err := s.db.Exec(`
		INSERT INTO reading_progress (username, chapter, position, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE SET chapter = $2, position = $3, updated_at = $4`,
		p.Username, p.Chapter, p.Position, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveProgress failed", "error", err, "username", p.Username)
		return fmt.Errorf("failed to save progress for %s: %w", p.Username, err)
	}
	slog.Debug("PostgresStore SaveProgress succeeded", "username", p.Username, "chapter", p.Chapter)
	return nil
}

func (s *PostgresStore) GetProgress(username string) (*models.ReadingProgress, error) {
	var p models.ReadingProgress
	err := s.db.QueryRow(`SELECT username, chapter, position, updated_at FROM reading_progress WHERE username = $1`, username).
		Scan(&p.Username, &p.Chapter, &p.Position, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProgress failed", "error", err, "username", username)
		return nil, fmt.Errorf("failed to query progress for %s: %w", username, err)
	}
	return &p, nil
}

func (s *PostgresStore) AddInvocation(inv models.FlowInvocation) error {
	_, err := s.db.Exec(`INSERT INTO flow_invocations (id, username, flow, status, latency_ms, time) VALUES ($1, $2, $3, $4, $5, $6)`,
		inv.ID, inv.Username, inv.Flow, inv.Status, inv.LatencyMS, inv.Time)
	if err != nil {
		slog.Error("PostgresStore AddInvocation failed", "error", err, "flow", inv.Flow)
		return fmt.Errorf("failed to insert invocation for flow %s: %w", inv.Flow, err)
	}
	return nil
}

func (s *PostgresStore) GetInvocations(username string, limit int) ([]models.FlowInvocation, error) {
	query := `SELECT id, username, flow, status, latency_ms, time FROM flow_invocations`
	var args []interface{}
	if username != "" {
		args = append(args, username)
		query += fmt.Sprintf(` WHERE username = $%d`, len(args))
	}
	query += ` ORDER BY time DESC, id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore GetInvocations query failed", "error", err)
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer rows.Close()

	var invocations []models.FlowInvocation
	for rows.Next() {
		var inv models.FlowInvocation
		if err := rows.Scan(&inv.ID, &inv.Username, &inv.Flow, &inv.Status, &inv.LatencyMS, &inv.Time); err != nil {
			slog.Error("PostgresStore GetInvocations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan invocation row: %w", err)
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetInvocations rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate invocation rows: %w", err)
	}
	return invocations, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
