package account

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// Error codes exposed to the views
const (
	ViewErrorWrongEmail    = "wrong.email"
	ViewErrorExpiredToken  = "expired.token"
	ViewErrorResendTooSoon = "resend.too_soon"
)

// HTTPSessions is what the controller needs from the session layer
type HTTPSessions interface {
	SignIn(c router.Context, session Session) error
	SignOut(c router.Context)
	CurrentSession(c router.Context) (*SessionClaims, error)
	OptionalSession() router.MiddlewareFunc
}

func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) *AccountController {
	controller := NewAccountController(opts...)

	app.Get(controller.Routes.SignUp, controller.SignUpShow).
		SetName("sign-up.get")
	app.Post(controller.Routes.SignUp, controller.SignUpCreate).
		SetName("sign-up.post")

	app.Get(controller.Routes.CheckEmailToken, controller.CheckEmailToken).
		SetName("check-email-token.get")

	// public route, the session is read when present
	app.Get(controller.Routes.CheckEmail, controller.Sessions.OptionalSession()(controller.CheckEmail)).
		SetName("check-email.get")
	// both change state, so they sit behind the csrf check
	app.Post(controller.Routes.ResendConfirmEmail, controller.ResendConfirmEmail).
		SetName("resend-confirm-email.post")

	app.Post(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.post")

	return controller
}

type AccountControllerRoutes struct {
	SignUp             string
	CheckEmailToken    string
	CheckEmail         string
	ResendConfirmEmail string
	Logout             string
	Home               string
}

type AccountControllerViews struct {
	SignUp       string
	CheckedEmail string
	CheckEmail   string
}

type AccountController struct {
	Debug        bool
	Logger       Logger
	Lifecycle    *LifecycleManager
	Sessions     HTTPSessions
	Routes       *AccountControllerRoutes
	Views        *AccountControllerViews
	ErrorHandler router.ErrorHandler
	UseHashid    bool
}

type AccountControllerOption func(*AccountController) *AccountController

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AccountControllerRoutes{
			SignUp:             "/sign-up",
			CheckEmailToken:    CheckEmailTokenPath,
			CheckEmail:         "/check-email",
			ResendConfirmEmail: "/resend-confirm-email",
			Logout:             "/logout",
			Home:               "/",
		},
		Views: &AccountControllerViews{
			SignUp:       "account/sign-up",
			CheckedEmail: "account/checked-email",
			CheckEmail:   "account/check-email",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Lifecycle == nil {
		panic("Missing LifecycleManager in account controller...")
	}

	if c.Sessions == nil {
		panic("Missing HTTPSessions in account controller...")
	}

	return c
}

func (a *AccountController) WithLogger(l Logger) *AccountController {
	a.Logger = normalizeLogger(l)
	return a
}

func (a *AccountController) SignUpShow(ctx router.Context) error {
	return ctx.Render(a.Views.SignUp, router.ViewContext{
		"signUpForm": SignUpForm{},
		"errors":     map[string]string{},
	})
}

func (a *AccountController) SignUpCreate(ctx router.Context) error {
	form := SignUpForm{
		Nickname: ctx.FormValue("nickname"),
		Email:    ctx.FormValue("email"),
		Password: ctx.FormValue("password"),
	}

	if a.Debug {
		fmt.Println("======= ACCOUNT SIGN UP ======")
		fmt.Println(print.MaybePrettyJSON(SignUpForm{Nickname: form.Nickname, Email: form.Email}))
		fmt.Println("==============================")
	}

	var resp *RegisterAccountResponse
	err := NewRegisterAccountHandler(a.Lifecycle).Execute(ctx.Context(), RegisterAccountMessage{
		Nickname:  form.Nickname,
		Email:     form.Email,
		Password:  form.Password,
		UseHashid: a.UseHashid,
		OnResponse: func(r *RegisterAccountResponse) {
			resp = r
		},
	})

	if verrs, ok := AsValidationErrors(err); ok {
		a.Logger.Info("sign-up rejected", "violations", verrs.Error())
		form.Password = ""
		return ctx.Render(a.Views.SignUp, router.ViewContext{
			"signUpForm": form,
			"errors":     verrs.ToMap(),
		})
	}

	if err != nil && !IsNotificationFailed(err) {
		a.Logger.Error("sign-up failed", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if resp == nil || resp.Account == nil {
		return a.ErrorHandler(ctx, ErrUnableToFindSession)
	}

	session, lerr := a.Lifecycle.Login(ctx.Context(), resp.Account)
	if lerr != nil {
		a.Logger.Error("sign-up login failed", "error", lerr)
		return a.ErrorHandler(ctx, lerr)
	}

	if lerr = a.Sessions.SignIn(ctx, session); lerr != nil {
		return a.ErrorHandler(ctx, lerr)
	}

	if resp.NotificationFailed {
		a.Logger.Warn("account created without verification email", "account_id", resp.Account.ID.String())
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  ErrNotificationFailed.Message,
			"system_message": "We could not send the verification email, please request a new one",
		}).Redirect(a.Routes.Home, http.StatusSeeOther)
	}

	return ctx.Redirect(a.Routes.Home, http.StatusSeeOther)
}

func (a *AccountController) CheckEmailToken(ctx router.Context) error {
	token := ctx.Query("token")
	email := ctx.Query("email")

	var resp *CheckEmailTokenResponse
	err := NewCheckEmailTokenHandler(a.Lifecycle, a.Logger).Execute(ctx.Context(), CheckEmailTokenMessage{
		Email: email,
		Token: token,
		OnResponse: func(r *CheckEmailTokenResponse) {
			resp = r
		},
	})

	switch {
	case errors.Is(err, ErrWrongEmail):
		return ctx.Render(a.Views.CheckedEmail, router.ViewContext{
			"error": ViewErrorWrongEmail,
		})
	case errors.Is(err, ErrTokenExpired):
		return ctx.Render(a.Views.CheckedEmail, router.ViewContext{
			"error": ViewErrorExpiredToken,
		})
	case err != nil:
		a.Logger.Error("check email token failed", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	session, err := a.Lifecycle.Login(ctx.Context(), resp.Account)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Sessions.SignIn(ctx, session); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.CheckedEmail, router.ViewContext{
		"nickname":     resp.Nickname,
		"numberOfUser": resp.NumberOfUsers,
	})
}

func (a *AccountController) CheckEmail(ctx router.Context) error {
	claims, err := a.Sessions.CurrentSession(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, ErrSessionInvalid)
	}

	return ctx.Render(a.Views.CheckEmail, router.ViewContext{
		"email":    claims.Email,
		"nickname": claims.Nickname,
	})
}

func (a *AccountController) ResendConfirmEmail(ctx router.Context) error {
	claims, err := a.Sessions.CurrentSession(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, ErrSessionInvalid)
	}

	err = NewResendConfirmEmailHandler(a.Lifecycle).Execute(ctx.Context(), ResendConfirmEmailMessage{
		Email: claims.Email,
	})

	switch {
	case errors.Is(err, ErrResendTooSoon):
		return ctx.Render(a.Views.CheckEmail, router.ViewContext{
			"email": claims.Email,
			"error": ViewErrorResendTooSoon,
		})
	case errors.Is(err, ErrAlreadyVerified):
		return ctx.Redirect(a.Routes.Home, http.StatusSeeOther)
	case err != nil:
		a.Logger.Error("resend confirmation email failed", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Verification email sent",
	}).Redirect(a.Routes.Home, http.StatusSeeOther)
}

func (a *AccountController) LogOut(ctx router.Context) error {
	a.Sessions.SignOut(ctx)
	return ctx.Redirect(a.Routes.Home, http.StatusSeeOther)
}
