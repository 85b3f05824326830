// Package config loads gui_config.json, the admin-editable settings
// file (admin password, upstream proxy URL, auth mode, IP-filter
// mode), with NEXUS_* environment variables overriding individual
// fields exactly like the rest of cmd/nexus/main.go's startup flags.
package config

import (
	"encoding/json"
	"log"
	"os"
)

// AuthMode selects how the API-key middleware treats an unconfigured
// key: "open" allows all requests (first-run default), "strict"
// rejects requests once a key exists even if the header is absent.
type AuthMode string

const (
	AuthModeOpen   AuthMode = "open"
	AuthModeStrict AuthMode = "strict"
)

// IPFilterMode selects the IPFilter middleware's default posture when
// neither a whitelist nor blacklist entry matches.
type IPFilterMode string

const (
	IPFilterModeAllowByDefault IPFilterMode = "allow"
	IPFilterModeDenyByDefault  IPFilterMode = "deny"
)

// GUIConfig is the process-wide application configuration, loaded once
// at startup. A missing file is not an error (first-run default);
// a malformed one is, per the ConfigError taxonomy (fatal at startup
// only).
type GUIConfig struct {
	AdminPassword string       `json:"admin_password"`
	UpstreamProxy string       `json:"upstream_proxy_url"`
	AuthMode      AuthMode     `json:"auth_mode"`
	IPFilterMode  IPFilterMode `json:"ip_filter_mode"`
}

func defaults() GUIConfig {
	return GUIConfig{
		AuthMode:     AuthModeOpen,
		IPFilterMode: IPFilterModeAllowByDefault,
	}
}

// Load reads gui_config.json from path, applies NEXUS_* environment
// overrides, and returns the resolved configuration. A missing file
// yields defaults; a present-but-unparseable file is a ConfigError
// (caller should log.Fatalf, matching InitDB's failure path).
func Load(path string) (GUIConfig, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("ℹ️ no %s found, using defaults + environment", path)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *GUIConfig) {
	if v := os.Getenv("NEXUS_ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}
	if v := os.Getenv("NEXUS_UPSTREAM_PROXY"); v != "" {
		cfg.UpstreamProxy = v
	}
	if v := os.Getenv("NEXUS_AUTH_MODE"); v != "" {
		cfg.AuthMode = AuthMode(v)
	}
	if v := os.Getenv("NEXUS_IP_FILTER_MODE"); v != "" {
		cfg.IPFilterMode = IPFilterMode(v)
	}
}
