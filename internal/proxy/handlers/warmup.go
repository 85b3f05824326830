package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nexusgate/oauth-llm-nexus/internal/apierr"
	"github.com/nexusgate/oauth-llm-nexus/internal/auth/token"
	"github.com/nexusgate/oauth-llm-nexus/internal/cryptoutil"
	"github.com/nexusgate/oauth-llm-nexus/internal/proxy/translator"
	"github.com/nexusgate/oauth-llm-nexus/internal/upstream"
)

// WarmupRequest is the /internal/warmup request body (spec §4.8): an
// account/model pair to ping, with an optional direct token/project so
// the caller can warm an account the token manager doesn't track.
type WarmupRequest struct {
	Email       string `json:"email"`
	Model       string `json:"model"`
	AccessToken string `json:"access_token,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
}

// WarmupResponse reports whether the ping reached the upstream and, when
// available, the token counts the vendor billed for it.
type WarmupResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Error        string `json:"error,omitempty"`
	InputTokens  *int   `json:"input_tokens,omitempty"`
	OutputTokens *int   `json:"output_tokens,omitempty"`
}

// WarmupHandler implements /internal/warmup: a single-token ping issued
// against an account/model pair to pre-allocate upstream resources
// without generating user-visible output (GLOSSARY "Warmup"). It is
// unconditionally exempt from the auth middleware (spec §4.6) since it
// is only reachable by other internal components, not end clients.
func WarmupHandler(tokenMgr *token.Manager, upstreamClient *upstream.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WarmupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Model == "" {
			writeWarmupError(w, http.StatusBadRequest, "email and model are required", nil)
			return
		}

		log.Printf("🔥 [Warmup] start: email=%s model=%s", req.Email, req.Model)

		accessToken, projectID, err := resolveWarmupCredentials(tokenMgr, req)
		if err != nil {
			log.Printf("⚠️ [Warmup] token resolution failed for %s: %v", req.Email, err)
			writeWarmupError(w, http.StatusBadRequest, fmt.Sprintf("failed to get token for %s", req.Email), err)
			return
		}

		sessionID := cryptoutil.NewWarmupSessionID(time.Now().Unix())
		payload := buildWarmupPayload(req.Model, projectID, sessionID)
		if translator.NeedsClaudeFormat(req.Model) {
			translator.PrepareRequestForClaude(payload)
		}

		resp, err := upstreamClient.SmartGenerateContent(accessToken, payload)
		if err != nil {
			log.Printf("⚠️ [Warmup] upstream call failed for %s/%s: %v", req.Email, req.Model, err)
			setWarmupAttributionHeaders(w, req.Email, req.Model)
			writeWarmupError(w, http.StatusInternalServerError, "warmup request failed", err)
			return
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		setWarmupAttributionHeaders(w, req.Email, req.Model)

		if resp.StatusCode != http.StatusOK {
			log.Printf("⚠️ [Warmup] upstream returned %d for %s/%s", resp.StatusCode, req.Email, req.Model)
			writeWarmupError(w, resp.StatusCode, fmt.Sprintf("warmup failed: HTTP %d", resp.StatusCode), errFromBody(body))
			return
		}

		inputTokens, outputTokens := extractWarmupUsage(body)
		message := "warmup successful"
		if inputTokens == nil && outputTokens == nil {
			message = "warmup triggered (token usage not reported by upstream)"
		}
		log.Printf("✅ [Warmup] success: email=%s model=%s in=%v out=%v", req.Email, req.Model, inputTokens, outputTokens)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(WarmupResponse{
			Success:      true,
			Message:      message,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		})
	}
}

// resolveWarmupCredentials honors an explicit access_token/project_id
// override before falling back to the token manager, matching the
// original's "skip TokenManager when both are supplied directly" shape.
func resolveWarmupCredentials(tokenMgr *token.Manager, req WarmupRequest) (accessToken, projectID string, err error) {
	if req.AccessToken != "" && req.ProjectID != "" {
		return req.AccessToken, req.ProjectID, nil
	}
	cached, err := tokenMgr.GetTokenByIdentifier(req.Email)
	if err != nil {
		return "", "", err
	}
	return cached.AccessToken, cached.ProjectID, nil
}

// buildWarmupPayload builds the minimal one-token ping body: a single
// "ping" user turn with generation capped at one output token, wrapped
// in the same project/request/model envelope the GenAI handler sends.
func buildWarmupPayload(model, projectID, sessionID string) map[string]interface{} {
	request := map[string]interface{}{
		"contents": []interface{}{
			map[string]interface{}{
				"role":  "user",
				"parts": []interface{}{map[string]interface{}{"text": "ping"}},
			},
		},
		"generationConfig": map[string]interface{}{
			"maxOutputTokens": 1,
			"temperature":     0,
		},
		"sessionId": sessionID,
	}
	return map[string]interface{}{
		"project":     projectID,
		"requestId":   sessionID,
		"request":     request,
		"model":       model,
		"userAgent":   "antigravity",
		"requestType": "agent",
	}
}

// warmupUsage mirrors the subset of Gemini's usageMetadata (and the
// OpenAI-shaped "usage" fallback some routes use) warmup cares about.
type warmupUsage struct {
	PromptTokenCount     *int `json:"promptTokenCount"`
	CandidatesTokenCount *int `json:"candidatesTokenCount"`
	PromptTokens         *int `json:"prompt_tokens"`
	CompletionTokens     *int `json:"completion_tokens"`
}

// extractWarmupUsage reads the merged response body SmartGenerateContent
// returns (always a single JSON object, even for a streamed premium
// model) and pulls out the prompt/completion token counts, if present.
func extractWarmupUsage(body []byte) (inputTokens, outputTokens *int) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, nil
	}

	inner := outer
	if respRaw, ok := outer["response"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(respRaw, &nested); err == nil {
			inner = nested
		}
	}

	usageRaw, ok := inner["usageMetadata"]
	if !ok {
		usageRaw, ok = inner["usage"]
	}
	if !ok {
		return nil, nil
	}

	var usage warmupUsage
	if err := json.Unmarshal(usageRaw, &usage); err != nil {
		return nil, nil
	}

	inputTokens = firstNonNil(usage.PromptTokenCount, usage.PromptTokens)
	outputTokens = firstNonNil(usage.CandidatesTokenCount, usage.CompletionTokens)
	return inputTokens, outputTokens
}

func firstNonNil(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}

func errFromBody(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	if len(trimmed) > 500 {
		trimmed = trimmed[:500]
	}
	return fmt.Errorf("%s", trimmed)
}

// setWarmupAttributionHeaders sets X-Account-Email/X-Mapped-Model so the
// monitor's request-logging middleware can attribute the call, per
// spec §4.8.
func setWarmupAttributionHeaders(w http.ResponseWriter, email, model string) {
	w.Header().Set("X-Account-Email", email)
	w.Header().Set("X-Mapped-Model", model)
}

// writeWarmupError logs the tagged apierr.Kind (upstream failures always,
// since warmup only ever fails by not reaching or not understanding the
// vendor) and writes WarmupResponse's own shape rather than apierr's
// generic envelope, since this endpoint is internal-only.
func writeWarmupError(w http.ResponseWriter, status int, message string, cause error) {
	apiErr := &apierr.Error{Kind: apierr.KindUpstream, Message: message, Err: cause}
	log.Printf("[Warmup] %s", apiErr.Error())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := WarmupResponse{Success: false, Message: message}
	if cause != nil {
		resp.Error = cause.Error()
	}
	json.NewEncoder(w).Encode(resp)
}
