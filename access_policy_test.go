package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	account "github.com/studyolle/go-account"
)

func TestDefaultRoutePolicy(t *testing.T) {
	policy := account.DefaultRoutePolicy()

	tests := []struct {
		method string
		path   string
		public bool
	}{
		{"GET", "/", true},
		{"GET", "/login", true},
		{"POST", "/login", true},
		{"GET", "/sign-up", true},
		{"POST", "/sign-up/", true},
		{"GET", "/check-email", true},
		{"GET", "/check-email-token?token=abc&email=jungi@email.com", true},
		{"GET", "/email-login", true},
		{"get", "/profile/jungi", true},
		{"POST", "/profile/jungi", false},
		{"GET", "/profile/jungi/study", false},
		{"GET", "/settings", false},
		{"POST", "/resend-confirm-email", false},
		{"POST", "/logout", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.public, policy.IsPublic(tt.method, tt.path))
		})
	}
}

func TestNewRoutePolicy(t *testing.T) {
	t.Run("custom rules", func(t *testing.T) {
		policy, err := account.NewRoutePolicy(
			account.RouteRule{Pattern: "/docs/**"},
			account.RouteRule{Method: "post", Pattern: "/hooks/*"},
		)
		require.NoError(t, err)

		assert.True(t, policy.IsPublic("GET", "/docs/a/b/c"))
		assert.True(t, policy.IsPublic("POST", "/hooks/github"))
		assert.False(t, policy.IsPublic("GET", "/hooks/github"))
		assert.False(t, policy.IsPublic("GET", "/"))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := account.NewRoutePolicy(account.RouteRule{Pattern: "/a/[b"})
		assert.Error(t, err)
	})

	t.Run("nil policy", func(t *testing.T) {
		var policy *account.RoutePolicy
		assert.False(t, policy.IsPublic("GET", "/"))
	})
}
