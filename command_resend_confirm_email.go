package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type ResendConfirmEmailMessage struct {
	Email      string `json:"email"`
	OnResponse func(*ResendConfirmEmailResponse)
}

func (e ResendConfirmEmailMessage) Type() string { return "account.resend_confirm_email" }

type ResendConfirmEmailResponse struct {
	Account *Account   `json:"account,omitempty"`
	SentAt  *time.Time `json:"sent_at,omitempty"`
}

type ResendConfirmEmailHandler struct {
	lifecycle *LifecycleManager
}

func NewResendConfirmEmailHandler(lifecycle *LifecycleManager) *ResendConfirmEmailHandler {
	return &ResendConfirmEmailHandler{lifecycle: lifecycle}
}

func (h *ResendConfirmEmailHandler) Execute(ctx context.Context, event ResendConfirmEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during confirmation email resend")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendConfirmEmailHandler) execute(ctx context.Context, event ResendConfirmEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.lifecycle.Repository().Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrWrongEmail
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
	}

	if err := h.lifecycle.ResendConfirmEmail(ctx, account); err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&ResendConfirmEmailResponse{
			Account: account,
			SentAt:  account.ConfirmEmailSentAt,
		})
	}

	return nil
}
