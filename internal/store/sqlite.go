// Package store provides storage backends for dreamstone.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/dreamstone/dreamstone/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateUser(u models.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			slog.Debug("SQLiteStore CreateUser duplicate username", "username", u.Username)
			return ErrUserExists
		}
		slog.Error("SQLiteStore CreateUser failed", "error", err, "username", u.Username)
		return fmt.Errorf("failed to insert user %s: %w", u.Username, err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "username", u.Username)
	return nil
}

func (s *SQLiteStore) GetUser(username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "username", username)
		return nil, fmt.Errorf("failed to query user %s: %w", username, err)
	}
	return &u, nil
}

func (s *SQLiteStore) SaveProgress(p models.ReadingProgress) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO reading_progress (username, chapter, position, updated_at) VALUES (?, ?, ?, ?)`,
		p.Username, p.Chapter, p.Position, p.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveProgress failed", "error", err, "username", p.Username)
		return fmt.Errorf("failed to save progress for %s: %w", p.Username, err)
	}
	slog.Debug("SQLiteStore SaveProgress succeeded", "username", p.Username, "chapter", p.Chapter)
	return nil
}

func (s *SQLiteStore) GetProgress(username string) (*models.ReadingProgress, error) {
	var p models.ReadingProgress
	err := s.db.QueryRow(`SELECT username, chapter, position, updated_at FROM reading_progress WHERE username = ?`, username).
		Scan(&p.Username, &p.Chapter, &p.Position, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProgress failed", "error", err, "username", username)
		return nil, fmt.Errorf("failed to query progress for %s: %w", username, err)
	}
	return &p, nil
}

func (s *SQLiteStore) AddInvocation(inv models.FlowInvocation) error {
	_, err := s.db.Exec(`INSERT INTO flow_invocations (id, username, flow, status, latency_ms, time) VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Username, inv.Flow, inv.Status, inv.LatencyMS, inv.Time)
	if err != nil {
		slog.Error("SQLiteStore AddInvocation failed", "error", err, "flow", inv.Flow)
		return fmt.Errorf("failed to insert invocation for flow %s: %w", inv.Flow, err)
	}
	return nil
}

func (s *SQLiteStore) GetInvocations(username string, limit int) ([]models.FlowInvocation, error) {
	query := `SELECT id, username, flow, status, latency_ms, time FROM flow_invocations`
	var args []interface{}
	if username != "" {
		query += ` WHERE username = ?`
		args = append(args, username)
	}
	query += ` ORDER BY time DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore GetInvocations query failed", "error", err)
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer rows.Close()

	var invocations []models.FlowInvocation
	for rows.Next() {
		var inv models.FlowInvocation
		if err := rows.Scan(&inv.ID, &inv.Username, &inv.Flow, &inv.Status, &inv.LatencyMS, &inv.Time); err != nil {
			slog.Error("SQLiteStore GetInvocations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan invocation row: %w", err)
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetInvocations rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate invocation rows: %w", err)
	}
	return invocations, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
