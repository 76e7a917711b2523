package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Dev struct {
		Mode bool `yaml:"mode"`
	} `yaml:"dev"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Auth struct {
		TokenSigningKey     string   `yaml:"token_signing_key"`
		Issuer              string   `yaml:"issuer"`
		Audience            string   `yaml:"audience"`
		SessionCookie       string   `yaml:"session_cookie"`
		ImpersonationCookie string   `yaml:"impersonation_cookie"`
		SignInURL           string   `yaml:"sign_in_url"`
		ErrorURL            string   `yaml:"error_url"`
		AppRootURL          string   `yaml:"app_root_url"`
		PublicPaths         []string `yaml:"public_paths"`
	} `yaml:"auth"`
	RateLimit struct {
		AuthenticatedLimit   int           `yaml:"authenticated_limit"`
		UnauthenticatedLimit int           `yaml:"unauthenticated_limit"`
		Window               time.Duration `yaml:"window"`
		BypassPrefixes       []string      `yaml:"bypass_prefixes"`
		SweepInterval        time.Duration `yaml:"sweep_interval"`
	} `yaml:"rate_limit"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8090"
	cfg.Dev.Mode = true
	cfg.Auth.SessionCookie = "pd_session"
	cfg.Auth.ImpersonationCookie = "pd_impersonate"
	cfg.Auth.SignInURL = "/auth/sign-in"
	cfg.Auth.ErrorURL = "/error"
	cfg.Auth.AppRootURL = "/"
	cfg.Auth.PublicPaths = []string{"/auth/sign-in", "/auth/sign-up", "/auth/callback", "/error"}
	cfg.RateLimit.AuthenticatedLimit = 200
	cfg.RateLimit.UnauthenticatedLimit = 50
	cfg.RateLimit.Window = 60 * time.Second
	cfg.RateLimit.BypassPrefixes = []string{"/healthz", "/readyz", "/metrics", "/static/", "/favicon.ico", "/auth/"}
	cfg.RateLimit.SweepInterval = 5 * time.Minute
	cfg.Log.Level = "info"
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Auth.TokenSigningKey == "" {
		return cfg, errors.New("missing auth.token_signing_key (or PD_TOKEN_SIGNING_KEY)")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PD_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("PD_DEV_MODE"); v != "" {
		cfg.Dev.Mode = parseBool(v, cfg.Dev.Mode)
	}
	if v := os.Getenv("PD_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PD_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PD_TOKEN_SIGNING_KEY"); v != "" {
		cfg.Auth.TokenSigningKey = v
	}
	if v := os.Getenv("PD_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("PD_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("PD_SESSION_COOKIE"); v != "" {
		cfg.Auth.SessionCookie = v
	}
	if v := os.Getenv("PD_IMPERSONATION_COOKIE"); v != "" {
		cfg.Auth.ImpersonationCookie = v
	}
	if v := os.Getenv("PD_SIGN_IN_URL"); v != "" {
		cfg.Auth.SignInURL = v
	}
	if v := os.Getenv("PD_ERROR_URL"); v != "" {
		cfg.Auth.ErrorURL = v
	}
	if v := os.Getenv("PD_APP_ROOT_URL"); v != "" {
		cfg.Auth.AppRootURL = v
	}
	if v := os.Getenv("PD_PUBLIC_PATHS"); v != "" {
		cfg.Auth.PublicPaths = splitCSV(v)
	}
	if v := os.Getenv("PD_RATE_LIMIT_AUTHENTICATED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.AuthenticatedLimit = n
		}
	}
	if v := os.Getenv("PD_RATE_LIMIT_UNAUTHENTICATED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.UnauthenticatedLimit = n
		}
	}
	if v := os.Getenv("PD_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.Window = d
		}
	}
	if v := os.Getenv("PD_RATE_LIMIT_BYPASS"); v != "" {
		cfg.RateLimit.BypassPrefixes = splitCSV(v)
	}
	if v := os.Getenv("PD_RATE_LIMIT_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.SweepInterval = d
		}
	}
	if v := os.Getenv("PD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val == "" {
			continue
		}
		out = append(out, val)
	}
	return out
}
