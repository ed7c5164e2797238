package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type CheckEmailTokenMessage struct {
	Email      string `json:"email"`
	Token      string `json:"token"`
	OnResponse func(*CheckEmailTokenResponse)
}

func (e CheckEmailTokenMessage) Type() string { return "account.check_email_token" }

type CheckEmailTokenResponse struct {
	Found         bool     `json:"found"`
	Verified      bool     `json:"verified"`
	Account       *Account `json:"account,omitempty"`
	Nickname      string   `json:"nickname,omitempty"`
	NumberOfUsers int      `json:"number_of_users"`
}

type CheckEmailTokenHandler struct {
	lifecycle *LifecycleManager
	logger    Logger
}

// NewCheckEmailTokenHandler returns the email verification command handler
func NewCheckEmailTokenHandler(lifecycle *LifecycleManager, logger Logger) *CheckEmailTokenHandler {
	return &CheckEmailTokenHandler{
		lifecycle: lifecycle,
		logger:    normalizeLogger(logger),
	}
}

func (h *CheckEmailTokenHandler) Execute(ctx context.Context, event CheckEmailTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email token check")
	default:
		return h.execute(ctx, event)
	}
}

func (h *CheckEmailTokenHandler) execute(ctx context.Context, event CheckEmailTokenMessage) error {
	resp := &CheckEmailTokenResponse{}
	repo := h.lifecycle.Repository()

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			// unknown emails are part of the expected flow
			if repository.IsRecordNotFound(err) {
				h.logger.Info("email token check for unknown email", "email", event.Email)
				return ErrWrongEmail
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
		}

		resp.Found = true

		if err := h.lifecycle.CheckToken(account, event.Token); err != nil {
			h.logger.Info("email token check rejected",
				"account_id", account.ID.String(),
				"reason", err.Error(),
			)
			h.lifecycle.recordActivity(ctx, ActivityEvent{
				EventType: ActivityEventVerificationFailed,
				AccountID: account.ID.String(),
				FromState: account.State(),
				Metadata:  map[string]any{"reason": err.Error()},
			})
			return err
		}

		if account, err = h.lifecycle.CompleteSignupTx(ctx, tx, account); err != nil {
			return err
		}

		count, err := repo.Accounts().CountAccountsTx(ctx, tx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count accounts")
		}

		resp.Verified = account.IsVerified()
		resp.Account = account
		resp.Nickname = account.Nickname
		resp.NumberOfUsers = count
		return nil
	})

	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
