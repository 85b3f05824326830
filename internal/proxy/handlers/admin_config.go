package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nexusgate/oauth-llm-nexus/internal/httpclient"
	"github.com/nexusgate/oauth-llm-nexus/internal/upstream"
)

// ProxyConfigHandler reports the upstream proxy currently in effect.
func ProxyConfigHandler(pool *httpclient.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"upstream_proxy_url": pool.ProxyURL()})
	}
}

// ProxyConfigUpdateHandler hot-swaps the shared HTTP client pool (and
// the upstream client's streaming transport) onto a new upstream
// proxy URL, without restarting the process. An empty proxy_url
// reverts to a direct connection.
func ProxyConfigUpdateHandler(pool *httpclient.Pool, upstreamClient *upstream.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ProxyURL string `json:"proxy_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := pool.SetProxy(body.ProxyURL); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		upstreamClient.ReloadProxy()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"upstream_proxy_url": pool.ProxyURL()})
	}
}
