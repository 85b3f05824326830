package middleware

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nexusgate/oauth-llm-nexus/internal/apierr"
	"github.com/nexusgate/oauth-llm-nexus/internal/security"
)

// IPFilter rejects requests from blacklisted IPs and logs every request to
// the security DAO, mirroring the original's ip_filter.rs decision order:
// whitelist short-circuits (always allowed), then blacklist (exact IP or
// CIDR match) blocks with the original's ban-duration phrasing.
func IPFilter(secDB *sql.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := security.ExtractClientIP(r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), r.RemoteAddr)
			start := time.Now()

			whitelisted, err := security.IsWhitelisted(secDB, func(pattern string) bool {
				return security.MatchesPattern(clientIP, pattern)
			})
			if err != nil {
				log.Printf("⚠️ whitelist lookup failed for %s: %v", clientIP, err)
			}

			if !whitelisted {
				entry, err := security.FindBlacklistEntry(secDB, func(pattern string) bool {
					return security.MatchesPattern(clientIP, pattern)
				})
				if err != nil {
					log.Printf("⚠️ blacklist lookup failed for %s: %v", clientIP, err)
				}
				if entry != nil {
					msg := security.BanMessage(entry.Reason, entry.ExpiresAt, time.Now())
					go func() {
						_ = security.IncrementBlacklistHit(secDB, entry.ID)
						_ = security.LogAccess(secDB, security.IpAccessLog{
							ID: uuid.New().String(), ClientIP: clientIP, Timestamp: start.Unix(),
							Method: r.Method, Path: r.URL.Path, UserAgent: r.UserAgent(),
							Status: http.StatusForbidden, DurationMs: time.Since(start).Milliseconds(),
							Blocked: true, BlockReason: entry.Reason,
						})
					}()
					apierr.Forbidden(clientIP, msg).WriteJSON(w)
					return
				}
			}

			rec := &ipFilterRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			go func() {
				_ = security.LogAccess(secDB, security.IpAccessLog{
					ID: uuid.New().String(), ClientIP: clientIP, Timestamp: start.Unix(),
					Method: r.Method, Path: r.URL.Path, UserAgent: r.UserAgent(),
					Status: rec.statusCode, DurationMs: time.Since(start).Milliseconds(),
				})
			}()
		})
	}
}

type ipFilterRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *ipFilterRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
