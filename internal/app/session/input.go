package session

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"chatsync/internal/pkg/errs"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoginInput holds the login form fields.
type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// RegisterInput holds the registration form fields.
type RegisterInput struct {
	Username        string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

// fieldLabels maps struct fields to the words used in messages.
var fieldLabels = map[string]string{
	"Username": "the username",
	"Email":    "the email",
	"Password": "the password",
}

// checkInput validates v and converts the first failure into a *errs.CustomError.
func checkInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return errs.Wrap(errs.ErrInvalidParams, err)
	}

	first := vErrs[0]
	switch first.Tag() {
	case "required":
		label, ok := fieldLabels[first.Field()]
		if !ok {
			label = strings.ToLower(first.Field())
		}
		return errs.NewError(errs.ErrRequiredField, label)
	case "email":
		return errs.NewError(errs.ErrInvalidEmail)
	case "min":
		return errs.NewError(errs.ErrPasswordTooShort, MinPasswordLength)
	case "eqfield":
		return errs.NewError(errs.ErrPasswordMismatch)
	default:
		return errs.Wrap(errs.ErrInvalidParams, err)
	}
}

func (in LoginInput) normalized() LoginInput {
	in.Email = strings.TrimSpace(in.Email)
	return in
}

func (in RegisterInput) normalized() RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	return in
}
