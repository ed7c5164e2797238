package account

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var nicknamePattern = regexp.MustCompile(`^[ㄱ-ㅎ가-힣a-z0-9_-]{3,20}$`)

// SignUpForm is the payload submitted on registration
type SignUpForm struct {
	Nickname string `json:"nickname" form:"nickname"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Normalize trims surrounding whitespace and lowercases the email
func (f SignUpForm) Normalize() SignUpForm {
	return SignUpForm{
		Nickname: strings.TrimSpace(f.Nickname),
		Email:    strings.ToLower(strings.TrimSpace(f.Email)),
		Password: f.Password,
	}
}

// Validate runs the field level rules. It returns ValidationErrors
// or nil, it never touches storage.
func (f SignUpForm) Validate() error {
	err := validation.ValidateStruct(&f,
		validation.Field(
			&f.Nickname,
			validation.Required,
			validation.Length(3, 20),
			validation.Match(nicknamePattern).Error("must be 3 to 20 characters of letters, digits, _ or -"),
		),
		validation.Field(
			&f.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&f.Password,
			validation.Required,
			validation.Length(8, 50),
		),
	)
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := ValidationErrors{}
	for _, field := range []struct{ name, code string }{
		{"nickname", CodeInvalidNickname},
		{"email", CodeInvalidEmail},
		{"password", CodeInvalidPassword},
	} {
		if ferr, ok := fieldErrs[field.name]; ok && ferr != nil {
			out = append(out, FieldViolation{
				Field:   field.name,
				Code:    field.code,
				Message: ferr.Error(),
			})
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
