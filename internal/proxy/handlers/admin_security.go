package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nexusgate/oauth-llm-nexus/internal/security"
)

// SchemaCacheStatsHandler reports hit/miss/size stats for the tool-schema
// sanitizer cache shared by every protocol handler.
func SchemaCacheStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toolSchemaCache.Stats())
	}
}

// SchemaCacheClearHandler empties the tool-schema sanitizer cache.
func SchemaCacheClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		toolSchemaCache.Clear()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"cleared": true})
	}
}

// SecurityIPLogsHandler lists recent IP access log entries.
func SecurityIPLogsHandler(secDB *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := security.ListAccessLogs(secDB, 200)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"logs": logs})
	}
}

// SecurityStatsHandler reports aggregate counters over the security DB.
func SecurityStatsHandler(secDB *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := security.GetStats(secDB)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

// SecurityWhitelistAddHandler adds an IP or CIDR pattern to the whitelist.
func SecurityWhitelistAddHandler(secDB *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Pattern string `json:"pattern"`
			Note    string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Pattern == "" {
			http.Error(w, "pattern is required", http.StatusBadRequest)
			return
		}
		entry := security.WhitelistEntry{
			ID:          uuid.New().String(),
			IPPattern:   body.Pattern,
			Description: body.Note,
			CreatedAt:   time.Now().Unix(),
		}
		if err := security.AddWhitelistEntry(secDB, entry); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"added": true})
	}
}

// SecurityWhitelistRemoveHandler removes an IP or CIDR pattern from the whitelist.
func SecurityWhitelistRemoveHandler(secDB *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Pattern string `json:"pattern"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Pattern == "" {
			http.Error(w, "pattern is required", http.StatusBadRequest)
			return
		}
		if err := security.RemoveWhitelistEntryByPattern(secDB, body.Pattern); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"removed": true})
	}
}
