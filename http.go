package account

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/studyolle/go-account/middleware/jwtware"
)

// SessionAuthenticator keeps the session token in a cookie and guards
// routes that are not public.
type SessionAuthenticator struct {
	cfg              Config
	tokens           *TokenService
	policy           *RoutePolicy
	cookieDuration   time.Duration
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

var _ HTTPSessions = (*SessionAuthenticator)(nil)

// NewSessionAuthenticator returns an authenticator using tokens to validate
// sessions and policy to let public routes through.
func NewSessionAuthenticator(tokens *TokenService, cfg Config, policy *RoutePolicy) *SessionAuthenticator {
	if policy == nil {
		policy = DefaultRoutePolicy()
	}

	a := &SessionAuthenticator{
		cfg:            cfg,
		tokens:         tokens,
		policy:         policy,
		cookieDuration: tokens.Duration(),
		Logger:         defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a
}

func (a *SessionAuthenticator) WithLogger(l Logger) *SessionAuthenticator {
	a.Logger = normalizeLogger(l)
	return a
}

func (a *SessionAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// Policy returns the route policy
func (a *SessionAuthenticator) Policy() *RoutePolicy {
	return a.policy
}

// ProtectedRoute rejects requests without a valid session unless the
// route policy marks the route public.
func (a *SessionAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		Filter: func(c router.Context) bool {
			return a.policy.IsPublic(c.Method(), c.Path())
		},
		ErrorHandler:    a.MakeClientRouteAuthErrorHandler(),
		ContextKey:      a.cfg.GetContextKey(),
		TokenLookup:     "cookie:" + a.cfg.GetContextKey(),
		ContextEnricher: sessionContextEnricher,
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.Claims, error) {
			claims, err := a.tokens.Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
	})
}

// OptionalSession exposes the session to handlers when present and never rejects
func (a *SessionAuthenticator) OptionalSession() router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		Optional:        true,
		ContextKey:      a.cfg.GetContextKey(),
		TokenLookup:     "cookie:" + a.cfg.GetContextKey(),
		ContextEnricher: sessionContextEnricher,
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.Claims, error) {
			claims, err := a.tokens.Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
	})
}

// SignIn stores the session token in the session cookie
func (a *SessionAuthenticator) SignIn(c router.Context, session Session) error {
	if session == nil || session.GetToken() == "" {
		return ErrUnableToFindSession
	}

	expires := time.Now().Add(a.cookieDuration)
	if exp := session.GetExpiresAt(); exp != nil {
		expires = *exp
	}

	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    session.GetToken(),
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: "Lax",
	})

	a.Logger.Info("session established", "nickname", session.GetNickname())
	return nil
}

// SignOut clears the session cookie
func (a *SessionAuthenticator) SignOut(c router.Context) {
	a.cookieDel(c, a.cfg.GetContextKey())
}

// CurrentSession returns the claims placed in locals by ProtectedRoute
func (a *SessionAuthenticator) CurrentSession(c router.Context) (*SessionClaims, error) {
	return GetRouterSession(c, a.cfg.GetContextKey())
}

// GetRouterSession reads session claims stored under key
func GetRouterSession(c router.Context, key string) (*SessionClaims, error) {
	val := c.Locals(key)
	if val == nil {
		return nil, ErrUnableToFindSession
	}

	claims, ok := val.(*SessionClaims)
	if !ok || claims == nil {
		return nil, ErrUnableToDecodeSession
	}

	return claims, nil
}

func (a *SessionAuthenticator) MakeClientRouteAuthErrorHandler() func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error
		if !errors.As(err, &richErr) {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid session token").
				WithCode(errors.CodeUnauthorized)
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *SessionAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: "Lax",
	})
}

func (a *SessionAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.Path(),
	)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.loginRoute(), statusCode)
}

func (a *SessionAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return renderError(c, richErr)
	}
}

func (a *SessionAuthenticator) loginRoute() string {
	if r := a.cfg.GetLoginRoute(); r != "" {
		return r
	}
	return "/login"
}

// renderError renders the generic error view for err
func renderError(c router.Context, richErr *errors.Error) error {
	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	return c.Status(code).Render("errors/500", router.ViewContext{
		"error": richErr.Message,
		"code":  richErr.TextCode,
	})
}

func defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}
	return renderError(c, richErr)
}
