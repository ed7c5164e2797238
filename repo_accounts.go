package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

// CompleteSignupSQL flips the verified flag once. Rows already verified
// are left untouched so joined_at keeps its first value.
var CompleteSignupSQL = `UPDATE "accounts"
SET
	"email_verified" = TRUE,
	"joined_at" = ?,
	"email_check_token" = '',
	"email_check_token_generated_at" = NULL,
	"updated_at" = ?
WHERE
	"id" = ?
	AND "email_verified" = FALSE;`

// Accounts is the account repository
type Accounts interface {
	repository.Repository[*Account]
	AccountChecker

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	CountAccounts(ctx context.Context) (int, error)
	CountAccountsTx(ctx context.Context, tx bun.IDB) (int, error)
	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	SetEmailCheckTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, at time.Time) error
	SetConfirmEmailSentTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	CompleteSignupTx(ctx context.Context, tx bun.IDB, id uuid.UUID, joinedAt time.Time) (bool, error)
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var _ Accounts = (*accounts)(nil)

// NewAccountsRepository returns the bun backed Accounts repository
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return a.existsBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (a *accounts) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	return a.existsBy(ctx, "nickname", strings.TrimSpace(nickname))
}

func (a *accounts) existsBy(ctx context.Context, column, value string) (bool, error) {
	return a.db.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Exists(ctx)
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"email": email})
	}

	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) CountAccounts(ctx context.Context) (int, error) {
	return a.CountAccountsTx(ctx, a.db)
}

func (a *accounts) CountAccountsTx(ctx context.Context, tx bun.IDB) (int, error) {
	return tx.NewSelect().Model((*Account)(nil)).Count(ctx)
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

// RegisterTx inserts a new account. Unique constraint violations are
// returned as ValidationErrors so callers treat them like the pre-check.
func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	prepareAccountDefaults(account)

	created, err := a.Repository.CreateTx(ctx, tx, account)
	if err != nil {
		if verrs := uniqueViolation(err, account); len(verrs) > 0 {
			return nil, verrs
		}
		return nil, err
	}
	return created, nil
}

func (a *accounts) SetEmailCheckTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("email_check_token = ?", token).
		Set("email_check_token_generated_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}
	return nil
}

func (a *accounts) SetConfirmEmailSentTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("confirm_email_sent_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}
	return nil
}

// CompleteSignupTx reports whether this call performed the transition.
func (a *accounts) CompleteSignupTx(ctx context.Context, tx bun.IDB, id uuid.UUID, joinedAt time.Time) (bool, error) {
	res, err := tx.NewRaw(CompleteSignupSQL, joinedAt, joinedAt, id).Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = strings.ToLower(strings.TrimSpace(record.Email))
	record.Nickname = strings.TrimSpace(record.Nickname)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}

func uniqueViolation(err error, record *Account) ValidationErrors {
	verrs := ValidationErrors{}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return nil
		}
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			verrs = append(verrs, DuplicateEmail(record.Email))
		case strings.Contains(pgErr.ConstraintName, "nickname"):
			verrs = append(verrs, DuplicateNickname(record.Nickname))
		}
		return verrs
	}

	msg := chainText(err)
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	if strings.Contains(msg, "accounts.email") {
		verrs = append(verrs, DuplicateEmail(record.Email))
	}
	if strings.Contains(msg, "accounts.nickname") {
		verrs = append(verrs, DuplicateNickname(record.Nickname))
	}
	return verrs
}

// chainText joins the messages of err and every error it wraps.
// Wrappers do not always repeat the driver message.
func chainText(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return b.String()
}
