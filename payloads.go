package accounts

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 128
	maxNameLength     = 50
)

// SignupPayload is the signup request body
type SignupPayload struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r SignupPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
	)
}

// LoginPayload is the login request body
type LoginPayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// ForgotPasswordPayload is the forgot password request body
type ForgotPasswordPayload struct {
	Email string `json:"email" form:"email"`
}

// Validate will validate the payload
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResetPasswordPayload is the reset password request body
type ResetPasswordPayload struct {
	Token    string `json:"token" form:"token"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
	)
}

// UpdatePlanPayload is the admin plan update request body
type UpdatePlanPayload struct {
	Plan string `json:"plan" form:"plan"`
}

// Validate will validate the payload
func (r UpdatePlanPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Plan, validation.Required, validation.In(string(PlanFree), string(PlanPremium))),
	)
}

func validatePassword(password string) error {
	err := validation.Validate(password,
		validation.Required,
		validation.Length(minPasswordLength, maxPasswordLength),
	)
	if err != nil {
		return validationError(validation.Errors{"password": err})
	}
	return nil
}

// validationError turns ozzo errors into an ErrInvalidInput carrying the
// failing fields
func validationError(err error) error {
	if err == nil {
		return nil
	}

	fields := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
	}

	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = ErrInvalidInput.Message
	}

	return goerrors.New(msg, goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidInput).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"fields": fields})
}
