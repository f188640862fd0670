package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		DSN string
	}

	OAuth struct {
		ClientID     string
		ClientSecret string
		IssuerURL    string
		DiscoveryURL string
		RedirectPath string
	}

	Session struct {
		Secret string
		TTL    time.Duration
	}

	Engine struct {
		MaxOccurrences int
		CacheTTL       time.Duration
		CacheEntries   int
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("ALMANAC_LISTEN_ADDR", ":8080")
	cfg.BaseURL = getenvDefault("ALMANAC_BASE_URL", "http://localhost:8080")
	cfg.DB.DSN = os.Getenv("ALMANAC_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("ALMANAC_DB_HOST")
		name := os.Getenv("ALMANAC_DB_NAME")
		user := os.Getenv("ALMANAC_DB_USER")
		password := os.Getenv("ALMANAC_DB_PASSWORD")
		port := getenvDefault("ALMANAC_DB_PORT", "5432")
		sslmode := getenvDefault("ALMANAC_DB_SSLMODE", "disable")

		var missing []string
		if host == "" {
			missing = append(missing, "ALMANAC_DB_HOST")
		}
		if name == "" {
			missing = append(missing, "ALMANAC_DB_NAME")
		}
		if user == "" {
			missing = append(missing, "ALMANAC_DB_USER")
		}
		if password == "" {
			missing = append(missing, "ALMANAC_DB_PASSWORD")
		}

		if len(missing) == 0 {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.OAuth.ClientID = os.Getenv("ALMANAC_OAUTH_CLIENT_ID")
	cfg.OAuth.ClientSecret = os.Getenv("ALMANAC_OAUTH_CLIENT_SECRET")
	cfg.OAuth.IssuerURL = os.Getenv("ALMANAC_OAUTH_ISSUER_URL")
	cfg.OAuth.DiscoveryURL = os.Getenv("ALMANAC_OAUTH_DISCOVERY_URL")
	cfg.OAuth.RedirectPath = getenvDefault("ALMANAC_OAUTH_REDIRECT_PATH", "/auth/callback")
	cfg.Session.Secret = os.Getenv("ALMANAC_SESSION_SECRET")
	cfg.Session.TTL = getenvDuration("ALMANAC_SESSION_TTL", 30*24*time.Hour)
	cfg.Engine.MaxOccurrences = getenvInt("ALMANAC_ENGINE_MAX_OCCURRENCES", 1000)
	cfg.Engine.CacheTTL = getenvDuration("ALMANAC_ENGINE_CACHE_TTL", 15*time.Minute)
	cfg.Engine.CacheEntries = getenvInt("ALMANAC_ENGINE_CACHE_ENTRIES", 1000)
	cfg.PrometheusEnabled = getenvBool("ALMANAC_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("ALMANAC_TRUSTED_PROXIES")

	if cfg.DB.DSN == "" {
		return nil, errors.New("ALMANAC_DB_DSN is required (or set ALMANAC_DB_HOST, ALMANAC_DB_NAME, ALMANAC_DB_USER, and ALMANAC_DB_PASSWORD)")
	}
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return nil, fmt.Errorf("oauth configuration is required: client id and secret")
	}
	if cfg.OAuth.DiscoveryURL == "" && cfg.OAuth.IssuerURL == "" {
		return nil, errors.New("ALMANAC_OAUTH_DISCOVERY_URL or ALMANAC_OAUTH_ISSUER_URL is required")
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("ALMANAC_SESSION_SECRET is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("ALMANAC_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}
	if cfg.Engine.MaxOccurrences < 1 {
		return nil, errors.New("ALMANAC_ENGINE_MAX_OCCURRENCES must be positive")
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No ALMANAC_TRUSTED_PROXIES configured. Almanac will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
