package account_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	account "github.com/studyolle/go-account"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := account.HashPassword(tt.password)

			if tt.wantErr {
				assert.ErrorIs(t, err, account.ErrNoEmptyString)
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

			assert.NoError(t, account.ComparePasswordAndHash(tt.password, hash))
		})
	}
}

func TestHashPassword_Salted(t *testing.T) {
	first, err := account.HashPassword("12345678")
	require.NoError(t, err)

	second, err := account.HashPassword("12345678")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestComparePasswordAndHash(t *testing.T) {
	password := "testPassword123!"
	hash, err := account.HashPassword(password)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  error
	}{
		{
			name:     "Correct password",
			password: password,
			hash:     hash,
		},
		{
			name:     "Incorrect password",
			password: "wrongPassword",
			hash:     hash,
			wantErr:  account.ErrMismatchedHashAndPassword,
		},
		{
			name:     "Garbage hash",
			password: password,
			hash:     "$argon2id$nope",
			wantErr:  account.ErrUnsupportedHash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := account.ComparePasswordAndHash(tt.password, tt.hash)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDefaultPasswordHasher_AcceptsBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("12345678"), bcrypt.MinCost)
	require.NoError(t, err)

	hasher := account.DefaultPasswordHasher()

	assert.NoError(t, hasher.Compare("12345678", string(legacy)))
	assert.ErrorIs(t, hasher.Compare("87654321", string(legacy)), account.ErrMismatchedHashAndPassword)
}

func TestArgon2Hasher_EncodesParams(t *testing.T) {
	hasher := account.Argon2Hasher{Params: account.Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	}}

	hash, err := hasher.Hash("12345678")
	require.NoError(t, err)
	assert.Contains(t, hash, "$m=8192,t=1,p=1$")

	// verification reads the parameters back from the hash
	assert.NoError(t, account.NewArgon2Hasher().Compare("12345678", hash))
}
