package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	account "github.com/studyolle/go-account"
)

func TestSignUpForm_Validate(t *testing.T) {
	tests := []struct {
		name   string
		form   account.SignUpForm
		fields []string
	}{
		{
			name: "valid",
			form: account.SignUpForm{Nickname: "jungi", Email: "jungi@email.com", Password: "12345678"},
		},
		{
			name: "korean nickname",
			form: account.SignUpForm{Nickname: "스터디올래", Email: "study@email.com", Password: "12345678"},
		},
		{
			name:   "malformed email and short password",
			form:   account.SignUpForm{Nickname: "jungi", Email: "email..", Password: "12345"},
			fields: []string{"email", "password"},
		},
		{
			name:   "nickname too short",
			form:   account.SignUpForm{Nickname: "ab", Email: "ab@email.com", Password: "12345678"},
			fields: []string{"nickname"},
		},
		{
			name:   "nickname with spaces",
			form:   account.SignUpForm{Nickname: "jun gi", Email: "jungi@email.com", Password: "12345678"},
			fields: []string{"nickname"},
		},
		{
			name:   "password too long",
			form:   account.SignUpForm{Nickname: "jungi", Email: "jungi@email.com", Password: string(make([]byte, 51))},
			fields: []string{"password"},
		},
		{
			name:   "everything missing",
			form:   account.SignUpForm{},
			fields: []string{"nickname", "email", "password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Normalize().Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			verrs, ok := account.AsValidationErrors(err)
			require.True(t, ok, "expected ValidationErrors, got %v", err)

			var got []string
			for _, v := range verrs {
				got = append(got, v.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestSignUpForm_ViolationCodes(t *testing.T) {
	err := account.SignUpForm{Nickname: "x", Email: "nope", Password: "1"}.Validate()

	verrs, ok := account.AsValidationErrors(err)
	require.True(t, ok)

	assert.True(t, verrs.Has(account.CodeInvalidNickname))
	assert.True(t, verrs.Has(account.CodeInvalidEmail))
	assert.True(t, verrs.Has(account.CodeInvalidPassword))
	assert.False(t, verrs.Has(account.CodeDuplicateEmail))
}

func TestSignUpForm_Normalize(t *testing.T) {
	form := account.SignUpForm{
		Nickname: "  jungi ",
		Email:    " Jungi@Email.COM ",
		Password: " pass with spaces ",
	}.Normalize()

	assert.Equal(t, "jungi", form.Nickname)
	assert.Equal(t, "jungi@email.com", form.Email)
	assert.Equal(t, " pass with spaces ", form.Password)
}
