package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreamstone/dreamstone/internal/auth"
	"github.com/dreamstone/dreamstone/internal/flow"
	"github.com/dreamstone/dreamstone/internal/models"
	"github.com/dreamstone/dreamstone/internal/novel"
)

// flowSummary is the catalogue entry served by GET /flows.
type flowSummary struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	InputFields     []string `json:"input_fields"`
	RequiredInputs  []string `json:"required_inputs"`
	RequiredOutputs []string `json:"required_outputs"`
	HasFallback     bool     `json:"has_fallback"`
}

// flowsHandler lists the registered flows (GET /flows).
func (s *Server) flowsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.flowsHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	defs := flow.Definitions()
	summaries := make([]flowSummary, 0, len(defs))
	for _, def := range defs {
		names := make([]string, 0, len(def.Input.Fields))
		for _, f := range def.Input.Fields {
			names = append(names, f.Name)
		}
		summaries = append(summaries, flowSummary{
			Name:            def.Name,
			Description:     def.Description,
			InputFields:     names,
			RequiredInputs:  def.Input.Required(),
			RequiredOutputs: def.Output.Required(),
			HasFallback:     def.Fallback != nil,
		})
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summaries))
}

// flowExecuteHandler runs one flow (POST /flows/{name}) and records the
// invocation in the audit log.
func (s *Server) flowExecuteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.flowExecuteHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/flows/")
	if name == "" || strings.Contains(name, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing flow name"))
		return
	}
	if _, ok := flow.Get(name); !ok {
		slog.Warn("Server.flowExecuteHandler: unknown flow", "flow", name)
		writeJSONResponse(w, http.StatusNotFound, models.Error(fmt.Sprintf("Unknown flow: %s", name)))
		return
	}

	var req models.FlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.flowExecuteHandler: failed to decode JSON", "flow", name, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	username, _ := auth.UsernameFromContext(r.Context())
	s.runFlow(r.Context(), w, username, name, req)
}

// runFlow executes a flow with the server's timeout, records the invocation,
// and writes the HTTP response. Shared by the flow and analytics endpoints.
func (s *Server) runFlow(ctx context.Context, w http.ResponseWriter, username, name string, req models.FlowRequest) {
	ctx, cancel := context.WithTimeout(ctx, s.flowTimeout)
	defer cancel()

	start := time.Now()
	resp, status, err := s.engine.Execute(ctx, name, req)
	latency := time.Since(start)

	s.recordInvocation(username, name, status, latency)

	if err != nil {
		if status == models.InvocationStatusError && resp == nil && isValidationError(err) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.runFlow: flow failed", "flow", name, "username", username, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(err.Error()))
		return
	}

	slog.Info("Server.runFlow: flow completed", "flow", name, "username", username,
		"status", status, "latency_ms", latency.Milliseconds())
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"flow":   name,
		"status": status,
		"output": resp,
	}))
}

// isValidationError distinguishes caller mistakes from provider failures so
// the handler can answer 400 instead of 500.
func isValidationError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "missing required field") || strings.Contains(msg, "unknown flow")
}

// recordInvocation appends one entry to the flow audit log. Log failures are
// reported but never fail the request.
func (s *Server) recordInvocation(username, name string, status models.InvocationStatus, latency time.Duration) {
	inv := models.FlowInvocation{
		ID:        uuid.NewString(),
		Username:  username,
		Flow:      name,
		Status:    status,
		LatencyMS: latency.Milliseconds(),
		Time:      time.Now().Unix(),
	}
	if err := s.st.AddInvocation(inv); err != nil {
		slog.Error("Server.recordInvocation: failed to record invocation", "flow", name, "error", err)
	}
}

// analyticsHandler assembles the reader's activity summary from the store
// and feeds it through the learning-analytics flow (GET /analytics).
func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.analyticsHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	username, _ := auth.UsernameFromContext(r.Context())

	progress, err := s.st.GetProgress(username)
	if err != nil {
		slog.Error("Server.analyticsHandler: failed to fetch progress", "error", err, "username", username)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch reading progress"))
		return
	}
	invocations, err := s.st.GetInvocations(username, 20)
	if err != nil {
		slog.Error("Server.analyticsHandler: failed to fetch invocations", "error", err, "username", username)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch activity log"))
		return
	}

	req := models.FlowRequest{
		"reading_summary": buildReadingSummary(progress, invocations),
	}
	if topics := recentTopics(invocations); topics != "" {
		req["recent_topics"] = topics
	}

	s.runFlow(r.Context(), w, username, "learning-analytics", req)
}

// buildReadingSummary renders the stored activity into the prose summary the
// learning-analytics flow expects.
func buildReadingSummary(progress *models.ReadingProgress, invocations []models.FlowInvocation) string {
	var sb strings.Builder
	if progress == nil {
		sb.WriteString("讀者尚未開始閱讀。")
	} else {
		fmt.Fprintf(&sb, "讀者目前讀到第 %d 回", progress.Chapter)
		if chapter, err := novel.Get(progress.Chapter); err == nil {
			fmt.Fprintf(&sb, "〈%s〉", chapter.Title)
		}
		sb.WriteString("。")
	}
	if len(invocations) == 0 {
		sb.WriteString("尚無任何 AI 功能使用紀錄。")
		return sb.String()
	}
	counts := make(map[string]int)
	for _, inv := range invocations {
		counts[inv.Flow]++
	}
	fmt.Fprintf(&sb, "最近 %d 次 AI 功能使用中：", len(invocations))
	parts := make([]string, 0, len(counts))
	for _, def := range flow.Definitions() {
		if n, ok := counts[def.Name]; ok {
			parts = append(parts, fmt.Sprintf("%s %d 次", def.Description, n))
		}
	}
	sb.WriteString(strings.Join(parts, "，"))
	sb.WriteString("。")
	return sb.String()
}

// recentTopics lists the distinct flows the reader used recently, newest
// first.
func recentTopics(invocations []models.FlowInvocation) string {
	seen := make(map[string]bool)
	var topics []string
	for _, inv := range invocations {
		if inv.Flow == "learning-analytics" || seen[inv.Flow] {
			continue
		}
		seen[inv.Flow] = true
		if def, ok := flow.Get(inv.Flow); ok {
			topics = append(topics, def.Description)
		}
	}
	return strings.Join(topics, "、")
}

// statsHandler reports aggregate flow usage (GET /stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statsHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	invocations, err := s.st.GetInvocations("", 0)
	if err != nil {
		slog.Error("Server.statsHandler: failed to fetch invocations", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch statistics"))
		return
	}

	byFlow := make(map[string]int)
	byStatus := make(map[string]int)
	var totalLatency int64
	for _, inv := range invocations {
		byFlow[inv.Flow]++
		byStatus[string(inv.Status)]++
		totalLatency += inv.LatencyMS
	}
	stats := map[string]interface{}{
		"total_invocations": len(invocations),
		"by_flow":           byFlow,
		"by_status":         byStatus,
	}
	if len(invocations) > 0 {
		stats["avg_latency_ms"] = totalLatency / int64(len(invocations))
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}
