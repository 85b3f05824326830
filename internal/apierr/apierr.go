// Package apierr defines the tagged error taxonomy every middleware and
// handler converts its own errors to at the HTTP boundary, instead of
// each handler picking a status code ad hoc.
package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind identifies which bucket of the error taxonomy an Error belongs
// to.
type Kind int

const (
	// KindConfig is a missing or malformed configuration value; fatal
	// at startup only, never returned to a client.
	KindConfig Kind = iota
	// KindAuth is a missing/invalid credential, an out-of-curfew
	// account, or an exhausted IP binding.
	KindAuth
	// KindForbidden is an IP-blacklist hit.
	KindForbidden
	// KindUpstream is a non-2xx or transport failure talking to a
	// vendor.
	KindUpstream
	// KindSchema is a tool schema the sanitizer could not repair.
	// Callers degrade to a string-typed fallback rather than raising
	// this to the client; it exists mainly for logging/observability.
	KindSchema
	// KindQuota is an account over quota for the requested model.
	KindQuota
	// KindPersistence is a DAO failure. Never propagated to the
	// client; the monitor and DAO callers log and continue.
	KindPersistence
	// KindThinkingIntegrity is a signature-family mismatch caught by
	// the context sanitizer. The offending block is stripped and the
	// request proceeds; this exists for logging, not for failing the
	// request.
	KindThinkingIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config_error"
	case KindAuth:
		return "auth_error"
	case KindForbidden:
		return "ip_blocked"
	case KindUpstream:
		return "upstream_error"
	case KindSchema:
		return "schema_error"
	case KindQuota:
		return "quota_error"
	case KindPersistence:
		return "persistence_error"
	case KindThinkingIntegrity:
		return "thinking_integrity_error"
	default:
		return "unknown_error"
	}
}

// Error is the tagged error type. Internal functions keep returning
// bare `error` per Go idiom; Error only shows up where a caller needs
// to decide an HTTP status, typically one layer below the handler.
type Error struct {
	Kind    Kind
	Message string
	// IP is set on Forbidden errors so the handler can echo it in the
	// structured body without re-deriving it.
	IP string
	// Err is the underlying cause, if any, for %w-style wrapping.
	Err error
	// waitMs is set on QuotaError to suggest a retry-after delay.
	waitMs int64
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error's Kind to the status code the spec assigns
// it. Kinds that never reach a client (Config, Schema, Persistence,
// ThinkingIntegrity) still return a status for completeness, since a
// caller that does propagate one of them by mistake needs a sane
// default rather than a zero value.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	case KindQuota:
		return http.StatusTooManyRequests
	case KindConfig, KindPersistence:
		return http.StatusInternalServerError
	case KindSchema, KindThinkingIntegrity:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Body returns the JSON-serializable structured error body for Kinds
// that are surfaced to a client. Forbidden uses the exact
// {error.type, message, ip} shape the spec names; the others use a
// single-level {error.type, message}.
func (e *Error) Body() map[string]interface{} {
	errBody := map[string]interface{}{
		"type":    e.Kind.String(),
		"message": e.Message,
	}
	if e.Kind == KindForbidden && e.IP != "" {
		errBody["ip"] = e.IP
	}
	return map[string]interface{}{"error": errBody}
}

// WriteJSON writes the structured body to w with the appropriate
// status code and Content-Type, the one place every middleware and
// handler should funnel through instead of calling http.Error ad hoc.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(e.Body())
}

// Config wraps err as a ConfigError.
func Config(message string, err error) *Error {
	return &Error{Kind: KindConfig, Message: message, Err: err}
}

// Auth builds an AuthError with the given reason (e.g. "credential
// missing", "out of curfew", "IP binding exhausted").
func Auth(reason string) *Error {
	return &Error{Kind: KindAuth, Message: reason}
}

// Forbidden builds a Forbidden error for a blacklisted IP, carrying
// the IP so the handler's JSON body can echo it.
func Forbidden(ip, message string) *Error {
	return &Error{Kind: KindForbidden, Message: message, IP: ip}
}

// Upstream wraps a non-2xx or transport failure talking to a vendor.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// Schema builds a SchemaError for a tool schema the sanitizer could
// not repair.
func Schema(message string) *Error {
	return &Error{Kind: KindSchema, Message: message}
}

// Quota builds a QuotaError. waitMs is carried in Message so existing
// callers that only look at the error string still get useful
// information; WaitMs is the typed accessor.
func Quota(message string, waitMs int64) *Error {
	e := &Error{Kind: KindQuota, Message: message}
	e.waitMs = waitMs
	return e
}

// WaitMs returns the suggested retry-after delay for a QuotaError, or
// 0 if not set / not a QuotaError.
func (e *Error) WaitMs() int64 { return e.waitMs }

// Persistence wraps a DAO failure. Callers log this and continue;
// it must never be returned to an HTTP client.
func Persistence(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

// ThinkingIntegrity builds a ThinkingIntegrityError for a
// signature-family mismatch. Callers strip the offending block and
// let the request proceed.
func ThinkingIntegrity(message string) *Error {
	return &Error{Kind: KindThinkingIntegrity, Message: message}
}
