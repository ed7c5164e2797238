package account_test

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	account "github.com/studyolle/go-account"
)

func TestIsTokenExpiredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Legacy token expired error (string match)",
			err:      errors.New("some wrapper: token is expired"),
			expected: true,
		},
		{
			name:     "Different structured error",
			err:      account.ErrWrongEmail,
			expected: false,
		},
		{
			name:     "Different legacy error",
			err:      errors.New("invalid token"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, account.IsTokenExpiredError(tt.err))
		})
	}
}

func TestValidationErrors_ToMap(t *testing.T) {
	verrs := account.ValidationErrors{
		account.DuplicateEmail("jungi@email.com"),
		{Field: "email", Code: account.CodeInvalidEmail, Message: "second"},
		account.DuplicateNickname("jungi"),
	}

	m := verrs.ToMap()
	assert.Len(t, m, 2)
	assert.Contains(t, m["email"], "already in use")
	assert.Contains(t, m["nickname"], "jungi")
}

func TestValidationErrors_ToError(t *testing.T) {
	verrs := account.ValidationErrors{account.DuplicateNickname("jungi")}

	richErr := verrs.ToError()
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Equal(t, goerrors.CodeBadRequest, richErr.Code)

	violations, ok := richErr.Metadata["violations"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, violations, 1)
	assert.Equal(t, account.CodeDuplicateNickname, violations[0]["code"])

	extracted, ok := account.AsValidationErrors(richErr)
	require.True(t, ok)
	assert.Equal(t, verrs, extracted)
}

func TestFormatValidationErrorToMap(t *testing.T) {
	t.Run("field violations", func(t *testing.T) {
		out := account.FormatValidationErrorToMap(account.ValidationErrors{account.DuplicateEmail("a@b.c")})
		assert.Contains(t, out, "email")
	})

	t.Run("ozzo errors", func(t *testing.T) {
		out := account.FormatValidationErrorToMap(validation.Errors{"nickname": errors.New("too short")})
		assert.Equal(t, map[string]string{"nickname": "too short"}, out)
	})

	t.Run("other errors", func(t *testing.T) {
		out := account.FormatValidationErrorToMap(errors.New("boom"))
		assert.Equal(t, map[string]string{"form": "boom"}, out)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Empty(t, account.FormatValidationErrorToMap(nil))
	})
}

func TestSentinelCategories(t *testing.T) {
	assert.Equal(t, goerrors.CategoryAuth, account.ErrWrongEmail.Category)
	assert.Equal(t, goerrors.CategoryRateLimit, account.ErrResendTooSoon.Category)
	assert.Equal(t, "NOTIFICATION_FAILED", account.ErrNotificationFailed.TextCode)
}

func TestIsNotificationFailed(t *testing.T) {
	assert.True(t, account.IsNotificationFailed(account.ErrNotificationFailed))
	assert.False(t, account.IsNotificationFailed(nil))
	assert.False(t, account.IsNotificationFailed(errors.New("smtp down")))
	assert.False(t, account.IsNotificationFailed(account.ErrResendTooSoon))
}
