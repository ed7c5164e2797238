package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

type RegisterAccountMessage struct {
	Nickname   string `json:"nickname"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(*RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

type RegisterAccountResponse struct {
	Account *Account `json:"account"`
	// NotificationFailed is set when the account was stored but the
	// verification message could not be delivered.
	NotificationFailed bool `json:"notification_failed"`
}

type RegisterAccountHandler struct {
	lifecycle *LifecycleManager
	validator *SignupValidator
}

// NewRegisterAccountHandler returns the sign-up command handler
func NewRegisterAccountHandler(lifecycle *LifecycleManager) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		lifecycle: lifecycle,
		validator: NewSignupValidator(lifecycle.Repository().Accounts()),
	}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	form := SignUpForm{
		Nickname: event.Nickname,
		Email:    event.Email,
		Password: event.Password,
	}.Normalize()

	if err := form.Validate(); err != nil {
		return err
	}

	if err := h.validator.Validate(ctx, form.Email, form.Nickname); err != nil {
		return err
	}

	in := NewAccount{
		Email:    form.Email,
		Nickname: form.Nickname,
		Password: form.Password,
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(form.Email); err == nil {
			in.ID = id
		}
	}

	resp := &RegisterAccountResponse{}
	account, err := h.lifecycle.CreateAccount(ctx, in)
	resp.Account = account

	if err != nil {
		if account == nil || !IsNotificationFailed(err) {
			return err
		}
		resp.NotificationFailed = true
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return err
}
