package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dreamstone/dreamstone/internal/models"
)

// ModelClient defines the provider call used by the engine, so tests can
// substitute a fake provider.
type ModelClient interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// maxFallbackErrorRunes bounds the error excerpt quoted in fallback bodies.
const maxFallbackErrorRunes = 80

// Engine executes registered prompt flows against a model provider. Each
// Execute call is independent and stateless; the engine holds no per-request
// state.
type Engine struct {
	client ModelClient
}

// NewEngine creates a flow engine backed by the given model client.
func NewEngine(client ModelClient) *Engine {
	return &Engine{client: client}
}

// Execute runs the named flow: input validation, template rendering, one
// provider call, output validation, and the flow's failure policy. The
// returned status records whether the response is genuine provider output,
// a fallback substitute, or absent because the flow failed.
func (e *Engine) Execute(ctx context.Context, name string, req models.FlowRequest) (models.FlowResponse, models.InvocationStatus, error) {
	def, ok := Get(name)
	if !ok {
		slog.Error("flow.Execute: unknown flow", "flow", name)
		return nil, models.InvocationStatusError, fmt.Errorf("unknown flow: %s", name)
	}

	// Input validation happens before any provider call.
	if err := def.Input.Validate(req); err != nil {
		slog.Warn("flow.Execute: input validation failed", "flow", name, "error", err)
		return nil, models.InvocationStatusError, fmt.Errorf("flow %s: %w", name, err)
	}

	userPrompt, err := Render(def, req)
	if err != nil {
		slog.Error("flow.Execute: template rendering failed", "flow", name, "error", err)
		return nil, models.InvocationStatusError, fmt.Errorf("flow %s: render: %w", name, err)
	}
	slog.Debug("flow.Execute: prompt rendered", "flow", name, "prompt_length", len(userPrompt))

	if e.client == nil {
		return e.finishFailed(def, req, fmt.Errorf("model client not configured"))
	}

	raw, err := e.client.GenerateJSON(ctx, def.SystemPrompt, userPrompt)
	if err != nil {
		slog.Error("flow.Execute: provider call failed", "flow", name, "error", err)
		return e.finishFailed(def, req, err)
	}

	resp, err := parseResponse(raw)
	if err != nil {
		slog.Error("flow.Execute: provider reply not parseable", "flow", name, "error", err)
		return e.finishFailed(def, req, err)
	}
	if err := def.Output.ValidateResponse(resp); err != nil {
		slog.Error("flow.Execute: output validation failed", "flow", name, "error", err)
		return e.finishFailed(def, req, err)
	}

	slog.Info("flow.Execute: flow completed", "flow", name, "output_fields", len(resp))
	return resp, models.InvocationStatusOK, nil
}

// finishFailed applies the flow's failure policy: substitute the fallback
// body when one is declared, otherwise propagate a labeled error.
func (e *Engine) finishFailed(def *Definition, req models.FlowRequest, cause error) (models.FlowResponse, models.InvocationStatus, error) {
	if def.Fallback == nil {
		return nil, models.InvocationStatusError, fmt.Errorf("flow %s failed: %w", def.Name, cause)
	}
	resp := def.fallbackResponse(req, cause)
	slog.Warn("flow.finishFailed: returning fallback response", "flow", def.Name, "cause", cause)
	return resp, models.InvocationStatusFallback, nil
}

// fallbackResponse builds the canned substitute response. Every required
// output field is filled so the response still satisfies the output schema.
func (d *Definition) fallbackResponse(req models.FlowRequest, cause error) models.FlowResponse {
	source := req.Field(d.Fallback.SourceField)
	body := fmt.Sprintf("很抱歉，系統暫時無法完成這項分析。您提供的內容是：「%s」。錯誤：%s。請稍後再試一次。",
		source, truncateRunes(cause.Error(), maxFallbackErrorRunes))

	resp := models.FlowResponse{}
	for _, name := range d.Output.Required() {
		if name == d.Fallback.TargetField {
			resp[name] = body
		} else {
			resp[name] = "系統暫時無法提供此項內容。"
		}
	}
	return resp
}

// Render expands the flow template with the request fields. Rendering is
// pure: the same request always yields the same prompt text, and optional
// blocks appear only when the corresponding field is present.
func Render(def *Definition, req models.FlowRequest) (string, error) {
	data := make(map[string]string, len(def.Input.Fields))
	for _, f := range def.Input.Fields {
		data[f.Name] = req.Field(f.Name)
	}
	var sb strings.Builder
	if err := def.Template.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return sb.String(), nil
}

// parseResponse decodes the provider reply into a flow response. Replies are
// requested in JSON mode, but fenced code blocks still show up occasionally
// and are unwrapped before decoding.
func parseResponse(raw string) (models.FlowResponse, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse provider reply: %w", err)
	}

	resp := models.FlowResponse{}
	for name, value := range fields {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("output field %s is not a string", name)
		}
		resp[name] = strings.TrimSpace(s)
	}
	return resp, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
