package account

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// Violation codes attached to field level errors
const (
	CodeInvalidEmail      = "invalid.email"
	CodeInvalidNickname   = "invalid.nickname"
	CodeInvalidPassword   = "invalid.password"
	CodeDuplicateEmail    = "duplicate.email"
	CodeDuplicateNickname = "duplicate.nickname"
	CodeWrongEmail        = "wrong.email"
)

const (
	textCodeValidation         = "VALIDATION_ERROR"
	textCodeWrongEmail         = "WRONG_EMAIL"
	textCodeTokenExpired       = "EMAIL_TOKEN_EXPIRED"
	textCodeNotificationFailed = "NOTIFICATION_FAILED"
	textCodeResendTooSoon      = "RESEND_TOO_SOON"
	textCodeSessionInvalid     = "SESSION_INVALID"
)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = errors.New("password does not match hash")

// ErrUnsupportedHash is returned for hashes we do not know how to verify
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// ErrWrongEmail is the single user visible error for a failed token check.
// Unknown emails and token mismatches both resolve to it.
var ErrWrongEmail = goerrors.New("wrong email", goerrors.CategoryAuth).
	WithTextCode(textCodeWrongEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned when the verification token is past its TTL
var ErrTokenExpired = goerrors.New("email check token expired", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrNotificationFailed is returned when the verification message could not be handed off
var ErrNotificationFailed = goerrors.New("failed to deliver verification notification", goerrors.CategoryInternal).
	WithTextCode(textCodeNotificationFailed).
	WithCode(goerrors.CodeInternal)

// IsNotificationFailed reports whether err is a failed verification
// hand-off. The transport error stays reachable through errors.Is/As.
func IsNotificationFailed(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCodeNotificationFailed
}

func notificationFailed(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryInternal, ErrNotificationFailed.Message).
		WithTextCode(textCodeNotificationFailed).
		WithCode(goerrors.CodeInternal)
}

// ErrResendTooSoon is returned when a confirmation email is requested within the cooldown
var ErrResendTooSoon = goerrors.New("confirmation email was sent recently", goerrors.CategoryRateLimit).
	WithTextCode(textCodeResendTooSoon)

// ErrUnableToFindSession is the error when our request has no session cookie
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode the session token
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrSessionInvalid is returned for expired or tampered session tokens
var ErrSessionInvalid = goerrors.New("invalid session", goerrors.CategoryAuth).
	WithTextCode(textCodeSessionInvalid).
	WithCode(goerrors.CodeUnauthorized)

// FieldViolation is a single field level validation failure
type FieldViolation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors is the structured list of violations returned
// by sign-up validation. It is never fatal.
type ValidationErrors []FieldViolation

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, f := range v {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// Has reports whether a violation with code exists
func (v ValidationErrors) Has(code string) bool {
	for _, f := range v {
		if f.Code == code {
			return true
		}
	}
	return false
}

// ToMap returns field -> message, first violation per field wins
func (v ValidationErrors) ToMap() map[string]string {
	out := make(map[string]string, len(v))
	for _, f := range v {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Message
		}
	}
	return out
}

// ToError wraps the violations in a rich validation error
func (v ValidationErrors) ToError() *goerrors.Error {
	violations := make([]map[string]string, 0, len(v))
	for _, f := range v {
		violations = append(violations, map[string]string{
			"field":   f.Field,
			"code":    f.Code,
			"message": f.Message,
		})
	}
	return goerrors.Wrap(v, goerrors.CategoryValidation, "invalid sign-up form").
		WithTextCode(textCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"violations": violations})
}

func (v ValidationErrors) merge(other ValidationErrors) ValidationErrors {
	return append(v, other...)
}

// AsValidationErrors extracts violations from err
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}

// FormatValidationErrorToMap turns an ozzo or field violation error
// into a field -> message map suitable for views.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := AsValidationErrors(err); ok {
		return verrs.ToMap()
	}

	var oerrs validation.Errors
	if errors.As(err, &oerrs) {
		for field, ferr := range oerrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// IsTokenExpiredError will check for expired session tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// ErrAlreadyVerified is returned when a verified account asks for a new confirmation email
var ErrAlreadyVerified = goerrors.New("account email is already verified", goerrors.CategoryConflict).
	WithTextCode("ALREADY_VERIFIED").
	WithCode(goerrors.CodeConflict)
