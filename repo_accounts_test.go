package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	account "github.com/studyolle/go-account"
	"github.com/uptrace/bun"
)

func newAccountRecord(nickname, email string) *account.Account {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	acc := &account.Account{
		Email:                      email,
		Nickname:                   nickname,
		PasswordHash:               "hash",
		EmailCheckToken:            uuid.NewString(),
		EmailCheckTokenGeneratedAt: &now,
		NotificationSettings:       account.DefaultNotificationSettings(),
	}
	return acc
}

func TestAccountsRepository_RegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := account.NewRepositoryManager(newTestDB(t))

	created, err := repo.Accounts().Register(ctx, newAccountRecord("jungi", " Jungi@Email.com "))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "jungi@email.com", created.Email)

	found, err := repo.Accounts().GetByEmail(ctx, "JUNGI@email.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.False(t, found.EmailVerified)
	assert.NotEmpty(t, found.EmailCheckToken)
	assert.True(t, found.StudyCreatedByWeb)
	assert.False(t, found.StudyCreatedByEmail)

	byID, err := repo.Accounts().GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "jungi", byID.Nickname)

	exists, err := repo.Accounts().ExistsByEmail(ctx, "jungi@email.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Accounts().ExistsByNickname(ctx, "jungi")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Accounts().ExistsByNickname(ctx, "someone")
	require.NoError(t, err)
	assert.False(t, exists)

	count, err := repo.Accounts().CountAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAccountsRepository_GetByEmailNotFound(t *testing.T) {
	repo := account.NewRepositoryManager(newTestDB(t))

	_, err := repo.Accounts().GetByEmail(context.Background(), "missing@email.com")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestAccountsRepository_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	repo := account.NewRepositoryManager(newTestDB(t))

	_, err := repo.Accounts().Register(ctx, newAccountRecord("jungi", "jungi@email.com"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		record *account.Account
		code   string
	}{
		{name: "same email", record: newAccountRecord("other", "jungi@email.com"), code: account.CodeDuplicateEmail},
		{name: "same nickname", record: newAccountRecord("jungi", "other@email.com"), code: account.CodeDuplicateNickname},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Accounts().Register(ctx, tt.record)

			verrs, ok := account.AsValidationErrors(err)
			require.True(t, ok, "expected duplicate violation, got %v", err)
			assert.True(t, verrs.Has(tt.code))
		})
	}

	count, err := repo.Accounts().CountAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAccountsRepository_CompleteSignupOnce(t *testing.T) {
	ctx := context.Background()
	repo := account.NewRepositoryManager(newTestDB(t))

	created, err := repo.Accounts().Register(ctx, newAccountRecord("jungi", "jungi@email.com"))
	require.NoError(t, err)

	first := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	var applied []bool
	for _, at := range []time.Time{first, second} {
		err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			ok, err := repo.Accounts().CompleteSignupTx(ctx, tx, created.ID, at)
			applied = append(applied, ok)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []bool{true, false}, applied)

	found, err := repo.Accounts().GetByEmail(ctx, "jungi@email.com")
	require.NoError(t, err)
	assert.True(t, found.EmailVerified)
	assert.Empty(t, found.EmailCheckToken)
	assert.Nil(t, found.EmailCheckTokenGeneratedAt)
	require.NotNil(t, found.JoinedAt)
	assert.True(t, first.Equal(*found.JoinedAt))
}

func TestAccountsRepository_SetEmailCheckToken(t *testing.T) {
	ctx := context.Background()
	repo := account.NewRepositoryManager(newTestDB(t))

	created, err := repo.Accounts().Register(ctx, newAccountRecord("jungi", "jungi@email.com"))
	require.NoError(t, err)

	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.Accounts().SetEmailCheckTokenTx(ctx, tx, created.ID, "fresh-token", at)
	})
	require.NoError(t, err)

	found, err := repo.Accounts().GetByEmail(ctx, "jungi@email.com")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", found.EmailCheckToken)
	require.NotNil(t, found.EmailCheckTokenGeneratedAt)
	assert.True(t, at.Equal(*found.EmailCheckTokenGeneratedAt))

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.Accounts().SetEmailCheckTokenTx(ctx, tx, uuid.New(), "x", at)
	})
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestAccountsRepository_SetConfirmEmailSent(t *testing.T) {
	ctx := context.Background()
	repo := account.NewRepositoryManager(newTestDB(t))

	created, err := repo.Accounts().Register(ctx, newAccountRecord("jungi", "jungi@email.com"))
	require.NoError(t, err)
	assert.Nil(t, created.ConfirmEmailSentAt)

	at := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.Accounts().SetConfirmEmailSentTx(ctx, tx, created.ID, at)
	})
	require.NoError(t, err)

	found, err := repo.Accounts().GetByEmail(ctx, "jungi@email.com")
	require.NoError(t, err)
	require.NotNil(t, found.ConfirmEmailSentAt)
	assert.True(t, at.Equal(*found.ConfirmEmailSentAt))
	assert.Equal(t, created.EmailCheckToken, found.EmailCheckToken)

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.Accounts().SetConfirmEmailSentTx(ctx, tx, uuid.New(), at)
	})
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestRepositoryManager_Validate(t *testing.T) {
	repo := account.NewRepositoryManager(newTestDB(t))
	assert.NoError(t, repo.Validate())
}
