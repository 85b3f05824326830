// Package security provides plain-function DAO access to security.db: IP
// access logs, the IP blacklist and the IP whitelist. Grounded on
// _examples/original_source/src-tauri/src/modules/security_db.rs, ported
// from rusqlite to database/sql + modernc.org/sqlite. No ORM, per spec §2
// item 3 ("Exposed as plain functions; no ORM").
package security

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// IpAccessLog mirrors spec §3's IpAccessLog entity.
type IpAccessLog struct {
	ID          string
	ClientIP    string
	Timestamp   int64
	Method      string
	Path        string
	UserAgent   string
	Status      int
	DurationMs  int64
	APIKeyHash  string
	Blocked     bool
	BlockReason string
	Username    string
}

// BlacklistEntry mirrors spec §3's BlacklistEntry entity.
type BlacklistEntry struct {
	ID        string
	IPPattern string
	Reason    string
	CreatedAt int64
	ExpiresAt *int64
	CreatedBy string
	HitCount  int64
}

// WhitelistEntry mirrors the original's IpWhitelistEntry.
type WhitelistEntry struct {
	ID          string
	IPPattern   string
	Description string
	CreatedAt   int64
}

// Stats mirrors the original's IpStats.
type Stats struct {
	TotalRequests  int64
	UniqueIPs      int64
	BlockedCount   int64
	TodayRequests  int64
	BlacklistCount int64
	WhitelistCount int64
}

// Open opens (creating if absent) the security database at path, sets the
// WAL/busy_timeout/synchronous pragmas spec §5 requires on every
// connection, and ensures the schema exists.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open security db: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ip_access_logs (
			id TEXT PRIMARY KEY,
			client_ip TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			method TEXT,
			path TEXT,
			user_agent TEXT,
			status INTEGER,
			duration INTEGER,
			api_key_hash TEXT,
			blocked INTEGER DEFAULT 0,
			block_reason TEXT,
			username TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ip_blacklist (
			id TEXT PRIMARY KEY,
			ip_pattern TEXT NOT NULL UNIQUE,
			reason TEXT,
			created_at INTEGER NOT NULL,
			expires_at INTEGER,
			created_by TEXT DEFAULT 'manual',
			hit_count INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ip_whitelist (
			id TEXT PRIMARY KEY,
			ip_pattern TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ip_access_ip ON ip_access_logs (client_ip)`,
		`CREATE INDEX IF NOT EXISTS idx_ip_access_timestamp ON ip_access_logs (timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_ip_access_blocked ON ip_access_logs (blocked)`,
		`CREATE INDEX IF NOT EXISTS idx_blacklist_pattern ON ip_blacklist (ip_pattern)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// LogAccess inserts one IpAccessLog row. Called from the IP filter
// middleware on a background goroutine; persistence errors are logged by
// the caller and never propagated (spec §7 PersistenceError).
func LogAccess(db *sql.DB, entry IpAccessLog) error {
	_, err := db.Exec(
		`INSERT INTO ip_access_logs (id, client_ip, timestamp, method, path, user_agent, status, duration, api_key_hash, blocked, block_reason, username)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ClientIP, entry.Timestamp, entry.Method, entry.Path, entry.UserAgent,
		entry.Status, entry.DurationMs, entry.APIKeyHash, boolToInt(entry.Blocked), entry.BlockReason, entry.Username,
	)
	return err
}

// FindBlacklistEntry returns the blacklist entry matching ip (exact match
// or CIDR containment is evaluated by the caller; this just scans rows),
// lazily deleting any entry whose expires_at has already passed.
func FindBlacklistEntry(db *sql.DB, matches func(pattern string) bool) (*BlacklistEntry, error) {
	rows, err := db.Query(`SELECT id, ip_pattern, reason, created_at, expires_at, created_by, hit_count FROM ip_blacklist`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now().Unix()
	var expired []string
	var found *BlacklistEntry
	for rows.Next() {
		var e BlacklistEntry
		var reason, createdBy sql.NullString
		var expiresAt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.IPPattern, &reason, &e.CreatedAt, &expiresAt, &createdBy, &e.HitCount); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		e.CreatedBy = createdBy.String
		if expiresAt.Valid {
			v := expiresAt.Int64
			e.ExpiresAt = &v
			if v < now {
				expired = append(expired, e.ID)
				continue
			}
		}
		if found == nil && matches(e.IPPattern) {
			found = &e
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range expired {
		_, _ = db.Exec(`DELETE FROM ip_blacklist WHERE id = ?`, id)
	}
	return found, nil
}

// IncrementBlacklistHit atomically bumps hit_count for the given entry id.
func IncrementBlacklistHit(db *sql.DB, id string) error {
	_, err := db.Exec(`UPDATE ip_blacklist SET hit_count = hit_count + 1 WHERE id = ?`, id)
	return err
}

// AddBlacklistEntry inserts or replaces a blacklist entry.
func AddBlacklistEntry(db *sql.DB, e BlacklistEntry) error {
	var expires interface{}
	if e.ExpiresAt != nil {
		expires = *e.ExpiresAt
	}
	_, err := db.Exec(
		`INSERT INTO ip_blacklist (id, ip_pattern, reason, created_at, expires_at, created_by, hit_count)
		 VALUES (?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(ip_pattern) DO UPDATE SET reason=excluded.reason, expires_at=excluded.expires_at, created_by=excluded.created_by`,
		e.ID, e.IPPattern, e.Reason, e.CreatedAt, expires, e.CreatedBy,
	)
	return err
}

// RemoveBlacklistEntry deletes a blacklist entry by id.
func RemoveBlacklistEntry(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM ip_blacklist WHERE id = ?`, id)
	return err
}

// IsWhitelisted reports whether any whitelist entry matches ip.
func IsWhitelisted(db *sql.DB, matches func(pattern string) bool) (bool, error) {
	rows, err := db.Query(`SELECT ip_pattern FROM ip_whitelist`)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return false, err
		}
		if matches(pattern) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// AddWhitelistEntry inserts a whitelist entry.
func AddWhitelistEntry(db *sql.DB, e WhitelistEntry) error {
	_, err := db.Exec(
		`INSERT INTO ip_whitelist (id, ip_pattern, description, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(ip_pattern) DO UPDATE SET description=excluded.description`,
		e.ID, e.IPPattern, e.Description, e.CreatedAt,
	)
	return err
}

// RemoveWhitelistEntry deletes a whitelist entry by id.
func RemoveWhitelistEntry(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM ip_whitelist WHERE id = ?`, id)
	return err
}

// RemoveWhitelistEntryByPattern deletes a whitelist entry by its IP/CIDR
// pattern, for admin endpoints that only know the pattern, not the id.
func RemoveWhitelistEntryByPattern(db *sql.DB, pattern string) error {
	_, err := db.Exec(`DELETE FROM ip_whitelist WHERE ip_pattern = ?`, pattern)
	return err
}

// GetStats computes an IpStats snapshot. TodayRequests is best-effort (spec
// §9 Design Note #3: treat as best-effort, not an invariant).
func GetStats(db *sql.DB) (Stats, error) {
	var s Stats
	row := db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT client_ip), COALESCE(SUM(blocked),0) FROM ip_access_logs`)
	if err := row.Scan(&s.TotalRequests, &s.UniqueIPs, &s.BlockedCount); err != nil {
		return s, err
	}
	dayStart := time.Now().Truncate(24 * time.Hour).Unix()
	_ = db.QueryRow(`SELECT COUNT(*) FROM ip_access_logs WHERE timestamp >= ?`, dayStart).Scan(&s.TodayRequests)
	_ = db.QueryRow(`SELECT COUNT(*) FROM ip_blacklist`).Scan(&s.BlacklistCount)
	_ = db.QueryRow(`SELECT COUNT(*) FROM ip_whitelist`).Scan(&s.WhitelistCount)
	return s, nil
}

// ListAccessLogs returns the most recent access log rows, newest first.
func ListAccessLogs(db *sql.DB, limit int) ([]IpAccessLog, error) {
	rows, err := db.Query(
		`SELECT id, client_ip, timestamp, method, path, user_agent, status, duration, api_key_hash, blocked, block_reason, username
		 FROM ip_access_logs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IpAccessLog
	for rows.Next() {
		var e IpAccessLog
		var method, path, userAgent, apiKeyHash, blockReason, username sql.NullString
		var blocked int
		if err := rows.Scan(&e.ID, &e.ClientIP, &e.Timestamp, &method, &path, &userAgent, &e.Status, &e.DurationMs, &apiKeyHash, &blocked, &blockReason, &username); err != nil {
			return nil, err
		}
		e.Method, e.Path, e.UserAgent, e.APIKeyHash, e.BlockReason, e.Username = method.String, path.String, userAgent.String, apiKeyHash.String, blockReason.String, username.String
		e.Blocked = blocked != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
