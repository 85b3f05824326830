package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWarmupHandler_MissingFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/internal/warmup", strings.NewReader(`{"email":""}`))
	w := httptest.NewRecorder()

	WarmupHandler(nil, nil)(w, req)

	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "email and model are required") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestBuildWarmupPayload(t *testing.T) {
	payload := buildWarmupPayload("gemini-3-pro", "proj-1", "warmup_1000_abcd1234")

	if payload["model"] != "gemini-3-pro" {
		t.Fatalf("expected model to round-trip, got %v", payload["model"])
	}
	if payload["project"] != "proj-1" {
		t.Fatalf("expected project to round-trip, got %v", payload["project"])
	}
	if payload["requestId"] != "warmup_1000_abcd1234" {
		t.Fatalf("expected requestId to carry the warmup session id, got %v", payload["requestId"])
	}

	request, ok := payload["request"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected request to be a map, got %T", payload["request"])
	}
	genConfig, ok := request["generationConfig"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected generationConfig to be a map, got %T", request["generationConfig"])
	}
	if genConfig["maxOutputTokens"] != 1 {
		t.Fatalf("expected a single-token cap, got %v", genConfig["maxOutputTokens"])
	}
}

func TestExtractWarmupUsage_GeminiShape(t *testing.T) {
	body := []byte(`{"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":1}}`)

	in, out := extractWarmupUsage(body)
	if in == nil || *in != 12 {
		t.Fatalf("expected input tokens 12, got %v", in)
	}
	if out == nil || *out != 1 {
		t.Fatalf("expected output tokens 1, got %v", out)
	}
}

func TestExtractWarmupUsage_NestedResponseEnvelope(t *testing.T) {
	body := []byte(`{"response":{"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":1}}}`)

	in, out := extractWarmupUsage(body)
	if in == nil || *in != 7 {
		t.Fatalf("expected input tokens 7, got %v", in)
	}
	if out == nil || *out != 1 {
		t.Fatalf("expected output tokens 1, got %v", out)
	}
}

func TestExtractWarmupUsage_OpenAIShapeFallback(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":5,"completion_tokens":1}}`)

	in, out := extractWarmupUsage(body)
	if in == nil || *in != 5 {
		t.Fatalf("expected input tokens 5, got %v", in)
	}
	if out == nil || *out != 1 {
		t.Fatalf("expected output tokens 1, got %v", out)
	}
}

func TestExtractWarmupUsage_MissingUsage(t *testing.T) {
	body := []byte(`{"candidates":[]}`)

	in, out := extractWarmupUsage(body)
	if in != nil || out != nil {
		t.Fatalf("expected nil usage, got in=%v out=%v", in, out)
	}
}

func TestSetWarmupAttributionHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	setWarmupAttributionHeaders(w, "user@example.com", "gemini-3-flash")

	if w.Header().Get("X-Account-Email") != "user@example.com" {
		t.Fatalf("expected X-Account-Email header, got %q", w.Header().Get("X-Account-Email"))
	}
	if w.Header().Get("X-Mapped-Model") != "gemini-3-flash" {
		t.Fatalf("expected X-Mapped-Model header, got %q", w.Header().Get("X-Mapped-Model"))
	}
}
