// Package httpclient provides the two shared HTTP clients (short/long
// timeout) used to talk to upstream vendors, hot-reloadable when the
// admin edits the upstream-proxy setting in gui_config.json.
package httpclient

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	shortTimeout = 15 * time.Second
	longTimeout  = 60 * time.Second

	// UserAgent is sent on every request built from these clients unless
	// a caller overrides it per-request.
	UserAgent = "NexusGate/1.0"
)

// Pool holds the short- and long-timeout shared clients behind a
// lock-cell each, so a proxy-config change can swap both without
// stalling a request already in flight on the old client.
type Pool struct {
	mu       sync.RWMutex
	short    *http.Client
	long     *http.Client
	proxyURL string
	proxySet bool
}

// New builds a Pool with an optional initial upstream proxy URL (empty
// string means direct connection).
func New(proxyURL string) *Pool {
	p := &Pool{}
	p.rebuild(proxyURL)
	return p
}

// Short returns the current short-timeout (15s) client, for ordinary
// request/response calls.
func (p *Pool) Short() *http.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.short
}

// Long returns the current long-timeout (60s) client, for OAuth
// exchanges, warmups, and other slow calls.
func (p *Pool) Long() *http.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.long
}

// SetProxy rebuilds both clients against the new upstream proxy URL
// and swaps them in under the lock. The new clients are built outside
// the lock so readers of the old ones are never blocked on proxy
// parsing or dial setup.
func (p *Pool) SetProxy(proxyURL string) error {
	short, long, err := buildClients(proxyURL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.short = short
	p.long = long
	p.proxyURL = proxyURL
	p.proxySet = proxyURL != ""
	p.mu.Unlock()

	if proxyURL != "" {
		log.Printf("🌐 HTTP client pool reloaded with upstream proxy: %s", proxyURL)
	} else {
		log.Printf("🌐 HTTP client pool reloaded with direct connection")
	}
	return nil
}

// ProxyURL returns the upstream proxy URL currently in effect, or ""
// for a direct connection.
func (p *Pool) ProxyURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.proxyURL
}

func (p *Pool) rebuild(proxyURL string) {
	short, long, err := buildClients(proxyURL)
	if err != nil {
		log.Printf("⚠️ invalid upstream proxy URL %q, falling back to direct connection: %v", proxyURL, err)
		short, long, _ = buildClients("")
		proxyURL = ""
	}
	p.short = short
	p.long = long
	p.proxyURL = proxyURL
	p.proxySet = proxyURL != ""
}

func buildClients(proxyURL string) (*http.Client, *http.Client, error) {
	var proxyFunc func(*http.Request) (*url.URL, error)
	if proxyURL != "" {
		normalized := proxyURL
		if !strings.Contains(normalized, "://") {
			normalized = "http://" + normalized
		}
		parsed, err := url.Parse(normalized)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing upstream proxy url: %w", err)
		}
		proxyFunc = http.ProxyURL(parsed)
	}

	short := &http.Client{
		Timeout: shortTimeout,
		Transport: &http.Transport{
			Proxy: proxyFunc,
		},
	}
	long := &http.Client{
		Timeout: longTimeout,
		Transport: &http.Transport{
			Proxy: proxyFunc,
		},
	}
	return short, long, nil
}
