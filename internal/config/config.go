package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/park285/chessboard-client/internal/obslog"
	yaml "gopkg.in/yaml.v3"
)

// SessionConfig is fixed for the lifetime of a session.
type SessionConfig struct {
	Side     string `yaml:"side" validate:"required,oneof=white black"`
	Opponent string `yaml:"opponent" validate:"required,max=64,excludesall=/?#"`
}

type AppConfig struct {
	Session SessionConfig `yaml:"session"`

	// Origin is the page origin the endpoint is derived from, e.g. http://localhost:8080.
	Origin string `yaml:"origin" validate:"required,url"`

	EvalLimit       float64 `yaml:"eval_limit" validate:"gt=0"`
	RestartPolicy   string  `yaml:"restart_policy" validate:"omitempty,oneof=keep keep-game-over clear clear-game-over"`
	DialTimeoutSec  int     `yaml:"dial_timeout_sec" validate:"min=1,max=300"`
	PingIntervalSec int     `yaml:"ping_interval_sec" validate:"min=0,max=3600"`

	Optimistic       bool `yaml:"optimistic"`
	AdvisoryLegality bool `yaml:"advisory_legality"`

	RedisURL   string `yaml:"redis_url" validate:"omitempty,url"`
	ViewTTLSec int    `yaml:"view_ttl_sec" validate:"min=0"`
	ViewAddr   string `yaml:"view_addr"`

	MessagesDir string `yaml:"messages_dir"`

	Log obslog.Config `yaml:"log"`
}

func (c *AppConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSec) * time.Second
}

func (c *AppConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSec) * time.Second
}

func (c *AppConfig) ViewTTL() time.Duration {
	return time.Duration(c.ViewTTLSec) * time.Second
}

func Default() *AppConfig {
	return &AppConfig{
		Session:        SessionConfig{Side: "white", Opponent: "echo"},
		Origin:         "http://localhost:8080",
		EvalLimit:      2000,
		RestartPolicy:  "keep-game-over",
		DialTimeoutSec: 10,
		Optimistic:     true,
		ViewTTLSec:     3600,
		Log:            obslog.DefaultConfig(),
	}
}

var validate = validator.New()

// Load reads defaults, then the YAML file named by CONFIG_FILE (if any), then
// environment overrides, and validates the result.
func Load() (*AppConfig, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	if v := strings.TrimSpace(os.Getenv("SIDE")); v != "" {
		cfg.Session.Side = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("OPPONENT")); v != "" {
		cfg.Session.Opponent = v
	}
	if v := strings.TrimSpace(os.Getenv("SERVER_ORIGIN")); v != "" {
		cfg.Origin = v
	}
	if v := strings.TrimSpace(os.Getenv("EVAL_LIMIT")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("EVAL_LIMIT: %w", err)
		}
		cfg.EvalLimit = f
	}
	if v := strings.TrimSpace(os.Getenv("RESTART_POLICY")); v != "" {
		cfg.RestartPolicy = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("DIAL_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DialTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PING_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.PingIntervalSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPTIMISTIC_MOVES")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Optimistic = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("ADVISORY_LEGALITY")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AdvisoryLegality = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VIEW_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ViewTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("VIEW_ADDR")); v != "" {
		cfg.ViewAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MESSAGES_DIR")); v != "" {
		cfg.MessagesDir = v
	}
	cfg.Log = obslog.ApplyEnv(cfg.Log, os.Getenv)
	return nil
}

// Validate checks struct tags plus the fields tags cannot express.
func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs)
		}
		return err
	}
	if cfg.ViewAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.ViewAddr); err != nil {
			return fmt.Errorf("invalid config: view_addr %q: %w", cfg.ViewAddr, err)
		}
	}
	return nil
}

func describe(errs validator.ValidationErrors) error {
	var b strings.Builder
	for _, e := range errs {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		switch e.Tag() {
		case "required":
			fmt.Fprintf(&b, "%s is required", e.Namespace())
		case "oneof":
			fmt.Fprintf(&b, "%s must be one of [%s]", e.Namespace(), e.Param())
		case "excludesall":
			fmt.Fprintf(&b, "%s must not contain any of %q", e.Namespace(), e.Param())
		default:
			fmt.Fprintf(&b, "%s failed %s=%s", e.Namespace(), e.Tag(), e.Param())
		}
	}
	return fmt.Errorf("invalid config: %s", b.String())
}
