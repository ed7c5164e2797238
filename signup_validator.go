package account

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// SignupValidator checks that a candidate email and nickname are free.
// Both checks always run so the caller gets every violation at once.
type SignupValidator struct {
	store AccountChecker
}

// NewSignupValidator returns a validator backed by store
func NewSignupValidator(store AccountChecker) *SignupValidator {
	return &SignupValidator{store: store}
}

// Validate returns ValidationErrors holding the duplicates found, nil
// when both values are free, or a wrapped store error.
func (v *SignupValidator) Validate(ctx context.Context, email, nickname string) error {
	verrs := ValidationErrors{}

	exists, err := v.store.ExistsByEmail(ctx, email)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
	}
	if exists {
		verrs = append(verrs, DuplicateEmail(email))
	}

	exists, err = v.store.ExistsByNickname(ctx, nickname)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check nickname uniqueness")
	}
	if exists {
		verrs = append(verrs, DuplicateNickname(nickname))
	}

	if len(verrs) == 0 {
		return nil
	}
	return verrs
}

// DuplicateEmail is the violation reported for a taken email
func DuplicateEmail(email string) FieldViolation {
	return FieldViolation{
		Field:   "email",
		Code:    CodeDuplicateEmail,
		Message: "email " + email + " is already in use",
	}
}

// DuplicateNickname is the violation reported for a taken nickname
func DuplicateNickname(nickname string) FieldViolation {
	return FieldViolation{
		Field:   "nickname",
		Code:    CodeDuplicateNickname,
		Message: "nickname " + nickname + " is already in use",
	}
}
