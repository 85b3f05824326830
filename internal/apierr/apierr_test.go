package apierr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestForbiddenStatusAndBody(t *testing.T) {
	e := Forbidden("203.0.113.7", "ip is blacklisted")
	if e.HTTPStatus() != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", e.HTTPStatus(), http.StatusForbidden)
	}
	body := e.Body()
	errBody, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("body missing error object: %#v", body)
	}
	if errBody["type"] != "ip_blocked" {
		t.Fatalf("type = %v, want ip_blocked", errBody["type"])
	}
	if errBody["ip"] != "203.0.113.7" {
		t.Fatalf("ip = %v, want 203.0.113.7", errBody["ip"])
	}
}

func TestAuthStatus(t *testing.T) {
	e := Auth("IP binding exhausted")
	if e.HTTPStatus() != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", e.HTTPStatus(), http.StatusUnauthorized)
	}
}

func TestQuotaWaitMs(t *testing.T) {
	e := Quota("account over quota", 1500)
	if e.WaitMs() != 1500 {
		t.Fatalf("WaitMs() = %d, want 1500", e.WaitMs())
	}
	if e.HTTPStatus() != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", e.HTTPStatus(), http.StatusTooManyRequests)
	}
}

func TestUpstreamUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	e := Upstream("vendor call failed", cause)
	if !errors.Is(e, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

func TestWriteJSONSetsStatusAndContentType(t *testing.T) {
	e := Forbidden("198.51.100.1", "ip is blacklisted")
	rec := httptest.NewRecorder()
	e.WriteJSON(rec)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("recorded status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
}
