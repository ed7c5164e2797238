package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment overrides, nested keys use "__"
// e.g. STUDYHUB_AUTH__SIGNING_KEY
const EnvPrefix = "STUDYHUB_"

type BaseConfig struct {
	App         App         `koanf:"app" json:"app"`
	HTTP        HTTP        `koanf:"http" json:"http"`
	Auth        Auth        `koanf:"auth" json:"auth"`
	Account     Account     `koanf:"account" json:"account"`
	Persistence Persistence `koanf:"persistence" json:"persistence"`
	Notifier    Notifier    `koanf:"notifier" json:"notifier"`
	Views       Views       `koanf:"views" json:"views"`
}

type App struct {
	Name  string `koanf:"name" json:"name"`
	Host  string `koanf:"host" json:"host"`
	Debug bool   `koanf:"debug" json:"debug"`
}

type HTTP struct {
	Addr                      string `koanf:"addr" json:"addr"`
	ShutdownTimeoutExpression string `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	CSRFExpirationExpression  string `koanf:"csrf_expiration" json:"csrf_expiration"`
}

type Auth struct {
	SigningKey      string `koanf:"signing_key" json:"-"`
	TokenExpiration int    `koanf:"token_expiration" json:"token_expiration"`
	ContextKey      string `koanf:"context_key" json:"context_key"`
	Issuer          string `koanf:"issuer" json:"issuer"`
	CookieSecure    bool   `koanf:"cookie_secure" json:"cookie_secure"`
	LoginRoute      string `koanf:"login_route" json:"login_route"`
}

type Account struct {
	TokenTTLExpression       string `koanf:"token_ttl" json:"token_ttl"`
	ResendCooldownExpression string `koanf:"resend_cooldown" json:"resend_cooldown"`
	UseHashid                bool   `koanf:"use_hashid" json:"use_hashid"`
}

type Persistence struct {
	Driver string `koanf:"driver" json:"driver"`
	DSN    string `koanf:"dsn" json:"-"`
	Debug  bool   `koanf:"debug" json:"debug"`
}

type Notifier struct {
	Kind   string `koanf:"kind" json:"kind"`
	Pretty bool   `koanf:"pretty" json:"pretty"`
	Kafka  Kafka  `koanf:"kafka" json:"kafka"`
}

type Kafka struct {
	Brokers                []string `koanf:"brokers" json:"brokers"`
	Topic                  string   `koanf:"topic" json:"topic"`
	ActivityTopic          string   `koanf:"activity_topic" json:"activity_topic"`
	Username               string   `koanf:"username" json:"username"`
	Password               string   `koanf:"password" json:"-"`
	TLS                    bool     `koanf:"tls" json:"tls"`
	WriteTimeoutExpression string   `koanf:"write_timeout" json:"write_timeout"`
}

type Views struct {
	Dir       string `koanf:"dir" json:"dir"`
	Extension string `koanf:"extension" json:"extension"`
	Reload    bool   `koanf:"reload" json:"reload"`
}

// Defaults returns the configuration used when nothing else is provided
func Defaults() BaseConfig {
	return BaseConfig{
		App: App{
			Name: "studyhub",
			Host: "http://localhost:8080",
		},
		HTTP: HTTP{
			Addr:                      ":8080",
			ShutdownTimeoutExpression: "10s",
		CSRFExpirationExpression:  "2h",
		},
		Auth: Auth{
			TokenExpiration: 24,
			ContextKey:      "studyhub_session",
			Issuer:          "studyhub",
			CookieSecure:    false,
			LoginRoute:      "/login",
		},
		Account: Account{
			TokenTTLExpression:       "24h",
			ResendCooldownExpression: "1h",
		},
		Persistence: Persistence{
			Driver: "sqlite",
			DSN:    "file:studyhub.db?cache=shared",
		},
		Notifier: Notifier{
			Kind:   "log",
			Pretty: true,
			Kafka: Kafka{
				Topic:                  "account.verify-email",
				WriteTimeoutExpression: "5s",
			},
		},
		Views: Views{
			Dir:       "views",
			Extension: ".html",
		},
	}
}

// LoadDotEnv copies KEY=value pairs from the given files into the process
// environment. Variables already set win and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to load env file").
				WithMetadata(map[string]any{"path": path})
		}
	}
	return nil
}

// Load merges defaults, the optional JSON file at path and STUDYHUB_
// environment variables, in that order.
func Load(path string) (*BaseConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load config defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load config from env")
	}

	cfg := &BaseConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c BaseConfig) Validate() error {
	var problems []string

	if c.Auth.SigningKey == "" {
		problems = append(problems, "auth.signing_key is required")
	}

	switch c.Persistence.Driver {
	case "sqlite", "postgres", "pgx":
	default:
		problems = append(problems, fmt.Sprintf("persistence.driver %q not supported", c.Persistence.Driver))
	}

	switch c.Notifier.Kind {
	case "log":
	case "kafka":
		if len(c.Notifier.Kafka.Brokers) == 0 {
			problems = append(problems, "notifier.kafka.brokers is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("notifier.kind %q not supported", c.Notifier.Kind))
	}

	for key, expr := range map[string]string{
		"http.shutdown_timeout":        c.HTTP.ShutdownTimeoutExpression,
		"http.csrf_expiration":         c.HTTP.CSRFExpirationExpression,
		"account.token_ttl":            c.Account.TokenTTLExpression,
		"account.resend_cooldown":      c.Account.ResendCooldownExpression,
		"notifier.kafka.write_timeout": c.Notifier.Kafka.WriteTimeoutExpression,
	} {
		if _, err := parseDuration(expr); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration", errors.CategoryValidation).
			WithTextCode("INVALID_CONFIG").
			WithMetadata(map[string]any{"problems": problems})
	}

	return nil
}

func parseDuration(expr string) (time.Duration, error) {
	if expr == "" {
		return 0, nil
	}
	return time.ParseDuration(expr)
}

func mustDuration(expr string) time.Duration {
	dur, err := parseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}

func (c *BaseConfig) GetSigningKey() string {
	return c.Auth.SigningKey
}

func (c *BaseConfig) GetTokenExpiration() int {
	return c.Auth.TokenExpiration
}

func (c *BaseConfig) GetContextKey() string {
	return c.Auth.ContextKey
}

func (c *BaseConfig) GetIssuer() string {
	return c.Auth.Issuer
}

func (c *BaseConfig) GetCookieSecure() bool {
	return c.Auth.CookieSecure
}

func (c *BaseConfig) GetLoginRoute() string {
	return c.Auth.LoginRoute
}

func (c *BaseConfig) GetEmailTokenTTL() time.Duration {
	return mustDuration(c.Account.TokenTTLExpression)
}

func (c *BaseConfig) GetResendCooldown() time.Duration {
	return mustDuration(c.Account.ResendCooldownExpression)
}

func (c *BaseConfig) GetShutdownTimeout() time.Duration {
	return mustDuration(c.HTTP.ShutdownTimeoutExpression)
}

func (c *BaseConfig) GetCSRFExpiration() time.Duration {
	return mustDuration(c.HTTP.CSRFExpirationExpression)
}

func (k Kafka) GetWriteTimeout() time.Duration {
	return mustDuration(k.WriteTimeoutExpression)
}
