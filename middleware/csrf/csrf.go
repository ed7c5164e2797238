// Package csrf protects form posts with signed double-submit tokens.
//
// A random seed is kept in a cookie. Every request gets a token signed over
// that seed and the issue time, exposed to views through locals. Unsafe
// methods must send the token back in the form or a header.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required")
)

// DefaultSeedLength is the number of random bytes in the seed cookie
const DefaultSeedLength = 32

// DefaultContextKey is the locals key holding the token
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName is the form field carrying the token
const DefaultFormFieldName = "_csrf"

// DefaultHeaderName is the header carrying the token
const DefaultHeaderName = "X-CSRF-Token"

// DefaultCookieName is the cookie holding the seed
const DefaultCookieName = "csrf_seed"

type Config struct {
	// Skip bypasses the middleware when it returns true
	Skip func(router.Context) bool

	ContextKey    string
	FormFieldName string
	HeaderName    string
	CookieName    string
	CookieSecure  bool

	// SafeMethods are not validated
	SafeMethods []string

	// Expiration bounds the token age, zero disables the check
	Expiration time.Duration

	// SecureKey signs tokens. Required.
	SecureKey []byte

	ErrorHandler router.ErrorHandler

	// Clock defaults to time.Now
	Clock func() time.Time
}

func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			seed := ctx.Cookies(cfg.CookieName)
			if !validSeed(seed) {
				var err error
				if seed, err = newSeed(); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
				ctx.Cookie(&router.Cookie{
					Name:     cfg.CookieName,
					Value:    seed,
					Path:     "/",
					HTTPOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: "Lax",
				})
			}

			ctx.Locals(cfg.ContextKey, cfg.sign(seed, cfg.Clock()))
			ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)

			if slices.Contains(cfg.SafeMethods, strings.ToUpper(ctx.Method())) {
				return next(ctx)
			}

			if err := cfg.validate(ctx, seed); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return next(ctx)
		}
	}
}

// Token returns the token placed in locals for the current request
func Token(ctx router.Context, key ...string) string {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	token, _ := ctx.Locals(k).(string)
	return token
}

// token layout: base64(unix_seconds ":" hex(hmac(seed ":" unix_seconds)))
func (cfg Config) sign(seed string, at time.Time) string {
	ts := strconv.FormatInt(at.UTC().Unix(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(ts + ":" + cfg.mac(seed, ts)))
}

func (cfg Config) mac(seed, ts string) string {
	m := hmac.New(sha256.New, cfg.SecureKey)
	m.Write([]byte(seed + ":" + ts))
	return hex.EncodeToString(m.Sum(nil))
}

func (cfg Config) validate(ctx router.Context, seed string) error {
	received := ctx.FormValue(cfg.FormFieldName)
	if received == "" {
		received = ctx.GetString(cfg.HeaderName, "")
	}
	if received == "" {
		return ErrTokenMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(received)
	if err != nil {
		return ErrTokenMismatch
	}

	ts, sig, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return ErrTokenMismatch
	}

	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if !hmac.Equal([]byte(sig), []byte(cfg.mac(seed, ts))) {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 && cfg.Clock().After(time.Unix(issued, 0).Add(cfg.Expiration)) {
		return ErrTokenExpired
	}

	return nil
}

func newSeed() (string, error) {
	b := make([]byte, DefaultSeedLength)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validSeed(seed string) bool {
	if len(seed) != DefaultSeedLength*2 {
		return false
	}
	_, err := hex.DecodeString(seed)
	return err == nil
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if len(cfg.SecureKey) == 0 {
		panic(ErrSecureKeyMissing)
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	return cfg
}

func defaultErrorHandler(ctx router.Context, err error) error {
	switch err {
	case ErrTokenMissing:
		return ctx.Status(router.StatusBadRequest).SendString("CSRF token missing")
	case ErrTokenMismatch, ErrTokenExpired:
		return ctx.Status(router.StatusForbidden).SendString(err.Error())
	default:
		return ctx.Status(router.StatusInternalServerError).SendString("CSRF validation error")
	}
}
