package jwtware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/studyolle/go-account/middleware/jwtware"
)

var errBadToken = errors.New("bad token")

type testClaims struct {
	id       string
	nickname string
}

func (c testClaims) GetAccountID() string { return c.id }
func (c testClaims) GetNickname() string  { return c.nickname }

// validator accepts the single token "good"
func validator() jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.Claims, error) {
		if raw != "good" {
			return nil, errBadToken
		}
		return testClaims{id: "1", nickname: "jungi"}, nil
	})
}

func okHandler(called *bool) router.HandlerFunc {
	return func(ctx router.Context) error {
		*called = true
		return nil
	}
}

func TestJWTWare_BasicHeaderExtraction(t *testing.T) {
	var captured error
	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		ErrorHandler: func(ctx router.Context, err error) error {
			captured = err
			return err
		},
	})

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer good"
	ctx.On("GetString", "Authorization", "").Return("Bearer good").Maybe()
	ctx.On("Locals", "user", mock.Anything).Return(nil)
	ctx.On("Locals", "current_user", mock.Anything).Return(nil)

	called := false
	require.NoError(t, mw(okHandler(&called))(ctx))
	assert.True(t, called)
	assert.NoError(t, captured)
	ctx.AssertExpectations(t)
}

func TestJWTWare_MissingToken(t *testing.T) {
	var captured error
	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		ErrorHandler: func(ctx router.Context, err error) error {
			captured = err
			return err
		},
	})

	ctx := router.NewMockContext()

	called := false
	err := mw(okHandler(&called))(ctx)
	assert.ErrorIs(t, err, jwtware.ErrJWTMissingOrMalformed)
	assert.ErrorIs(t, captured, jwtware.ErrJWTMissingOrMalformed)
	assert.False(t, called)
}

func TestJWTWare_InvalidToken(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	ctx := router.NewMockContext()
	ctx.CookiesM["session"] = "forged"

	called := false
	err := mw(okHandler(&called))(ctx)
	assert.ErrorIs(t, err, errBadToken)
	assert.False(t, called)
}

func TestJWTWare_CookieLookup(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		ContextKey:     "studyhub_session",
		TokenLookup:    "header:Authorization,cookie:studyhub_session",
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	ctx := router.NewMockContext()
	ctx.CookiesM["studyhub_session"] = "good"
	ctx.On("GetString", "Authorization", "").Return("").Maybe()

	var stored jwtware.Claims
	ctx.On("Locals", "studyhub_session", mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(jwtware.Claims)
	}).Return(nil)
	ctx.On("Locals", "current_user", mock.Anything).Return(nil)

	called := false
	require.NoError(t, mw(okHandler(&called))(ctx))
	assert.True(t, called)
	require.NotNil(t, stored)
	assert.Equal(t, "jungi", stored.GetNickname())
}

func TestJWTWare_Optional(t *testing.T) {
	errorHandlerCalled := false
	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		Optional:       true,
		ErrorHandler: func(ctx router.Context, err error) error {
			errorHandlerCalled = true
			return err
		},
	})

	for _, cookie := range []string{"", "forged"} {
		ctx := router.NewMockContext()
		if cookie != "" {
			ctx.CookiesM["session"] = cookie
		}

		called := false
		require.NoError(t, mw(okHandler(&called))(ctx))
		assert.True(t, called)
		ctx.AssertNotCalled(t, "Locals", mock.Anything, mock.Anything)
	}

	assert.False(t, errorHandlerCalled)
}

func TestJWTWare_FilterFunction(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		Filter: func(ctx router.Context) bool {
			return ctx.Path() == "/public"
		},
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/public")

	called := false
	require.NoError(t, mw(okHandler(&called))(ctx))
	assert.True(t, called)
	ctx.AssertExpectations(t)
}

func TestJWTWare_ValidationListeners(t *testing.T) {
	errSuspended := errors.New("account suspended")

	var seen []string
	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(ctx router.Context, claims jwtware.Claims) error {
				seen = append(seen, claims.GetNickname())
				return nil
			},
			func(ctx router.Context, claims jwtware.Claims) error {
				return errSuspended
			},
		},
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	ctx := router.NewMockContext()
	ctx.CookiesM["session"] = "good"

	called := false
	err := mw(okHandler(&called))(ctx)
	assert.ErrorIs(t, err, errSuspended)
	assert.False(t, called)
	assert.Equal(t, []string{"jungi"}, seen)
}

type ctxKey struct{}

func TestJWTWare_ContextEnricher(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		ContextEnricher: func(c context.Context, claims jwtware.Claims) context.Context {
			return context.WithValue(c, ctxKey{}, claims.GetAccountID())
		},
	})

	ctx := router.NewMockContext()
	ctx.CookiesM["session"] = "good"
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil)
	ctx.On("Context").Return(context.Background())

	var enriched context.Context
	ctx.On("SetContext", mock.Anything).Run(func(args mock.Arguments) {
		enriched = args.Get(0).(context.Context)
	}).Return()

	called := false
	require.NoError(t, mw(okHandler(&called))(ctx))
	assert.True(t, called)
	require.NotNil(t, enriched)
	assert.Equal(t, "1", enriched.Value(ctxKey{}))
}

func TestJWTWare_RequiresValidator(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.New(jwtware.Config{})
	})
}

func TestJWTWare_Extractors(t *testing.T) {
	tests := []struct {
		name   string
		lookup string
		setup  func(ctx *router.MockContext)
	}{
		{
			name:   "header",
			lookup: "header:Authorization",
			setup: func(ctx *router.MockContext) {
				ctx.HeadersM["Authorization"] = "bearer good"
				ctx.On("GetString", "Authorization", "").Return("bearer good").Maybe()
			},
		},
		{
			name:   "query",
			lookup: "query:auth_token",
			setup: func(ctx *router.MockContext) {
				ctx.QueriesM["auth_token"] = "good"
				ctx.On("Query", "auth_token", "").Return("good").Maybe()
			},
		},
		{
			name:   "param",
			lookup: "param:token",
			setup: func(ctx *router.MockContext) {
				ctx.ParamsM["token"] = "good"
				ctx.On("Param", "token").Return("good").Maybe()
			},
		},
		{
			name:   "cookie",
			lookup: "cookie:jwt_cookie",
			setup: func(ctx *router.MockContext) {
				ctx.CookiesM["jwt_cookie"] = "good"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := router.NewMockContext()
			tt.setup(ctx)

			raw, err := jwtware.ExtractRawTokenFromContext(ctx, jwtware.GetExtractors(tt.lookup))
			require.NoError(t, err)
			assert.Equal(t, "good", raw)
		})
	}

	t.Run("unknown source", func(t *testing.T) {
		assert.Empty(t, jwtware.GetExtractors("body:token,header"))
	})
}
