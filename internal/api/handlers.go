// Package api provides HTTP handlers for the account, chapter and progress
// endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreamstone/dreamstone/internal/auth"
	"github.com/dreamstone/dreamstone/internal/models"
	"github.com/dreamstone/dreamstone/internal/novel"
	"github.com/dreamstone/dreamstone/internal/store"
)

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.registerHandler: processing register request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.registerHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		slog.Warn("Server.registerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := creds.Validate(); err != nil {
		slog.Warn("Server.registerHandler: validation failed", "error", err, "username", creds.Username)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	hash, err := s.authSvc.HashPassword(creds.Password)
	if err != nil {
		slog.Error("Server.registerHandler: failed to hash password", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create account"))
		return
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(creds.Username),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.st.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			slog.Warn("Server.registerHandler: username taken", "username", user.Username)
			writeJSONResponse(w, http.StatusConflict, models.Error("Username already exists"))
			return
		}
		slog.Error("Server.registerHandler: failed to store user", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create account"))
		return
	}

	token, err := s.authSvc.IssueToken(user.Username)
	if err != nil {
		slog.Error("Server.registerHandler: failed to issue token", "error", err, "username", user.Username)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to issue session token"))
		return
	}

	slog.Info("Server.registerHandler: account created", "username", user.Username)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Account created successfully", map[string]string{
		"username": user.Username,
		"token":    token,
	}))
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.loginHandler: processing login request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.loginHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		slog.Warn("Server.loginHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	user, err := s.st.GetUser(strings.TrimSpace(creds.Username))
	if err != nil {
		slog.Error("Server.loginHandler: failed to fetch user", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to log in"))
		return
	}
	if user == nil || !s.authSvc.CheckPassword(user.PasswordHash, creds.Password) {
		slog.Warn("Server.loginHandler: invalid credentials", "username", creds.Username)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid username or password"))
		return
	}

	token, err := s.authSvc.IssueToken(user.Username)
	if err != nil {
		slog.Error("Server.loginHandler: failed to issue token", "error", err, "username", user.Username)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to issue session token"))
		return
	}

	slog.Info("Server.loginHandler: login succeeded", "username", user.Username)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"username": user.Username,
		"token":    token,
	}))
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.meHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	username, _ := auth.UsernameFromContext(r.Context())
	user, err := s.st.GetUser(username)
	if err != nil {
		slog.Error("Server.meHandler: failed to fetch user", "error", err, "username", username)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch account"))
		return
	}
	if user == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Account not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(user))
}

// chaptersHandler serves the chapter index (GET /chapters) and single
// chapters (GET /chapters/{number}).
func (s *Server) chaptersHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.chaptersHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/chapters")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		writeJSONResponse(w, http.StatusOK, models.Success(novel.List()))
		return
	}

	number, err := strconv.Atoi(path)
	if err != nil {
		slog.Warn("Server.chaptersHandler: invalid chapter number", "path", r.URL.Path)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid chapter number"))
		return
	}
	chapter, err := novel.Get(number)
	if err != nil {
		slog.Warn("Server.chaptersHandler: chapter not found", "number", number)
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(chapter))
}

// progressHandler reads (GET) and updates (PUT) the reader's position.
func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.progressHandler invoked", "method", r.Method, "path", r.URL.Path)
	username, _ := auth.UsernameFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		progress, err := s.st.GetProgress(username)
		if err != nil {
			slog.Error("Server.progressHandler: failed to fetch progress", "error", err, "username", username)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch progress"))
			return
		}
		if progress == nil {
			writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("No reading progress yet", nil))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(progress))

	case http.MethodPut:
		var p models.ReadingProgress
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			slog.Warn("Server.progressHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := p.Validate(); err != nil {
			slog.Warn("Server.progressHandler: validation failed", "error", err, "username", username)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		p.Username = username
		p.UpdatedAt = time.Now().UTC()
		if err := s.st.SaveProgress(p); err != nil {
			slog.Error("Server.progressHandler: failed to save progress", "error", err, "username", username)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save progress"))
			return
		}
		slog.Info("Server.progressHandler: progress saved", "username", username, "chapter", p.Chapter)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Progress saved", p))

	default:
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// A failing store read marks the service degraded.
	if _, err := s.st.GetInvocations("", 1); err != nil {
		slog.Warn("Health check: store read failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to read invocation log"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
