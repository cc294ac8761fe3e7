package auth

import (
	"errors"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var ErrWeakPassword = errors.New("password must mix upper, lower, digit and special characters")

// RegisterRequest carries the fields of a new relay account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required,min=2,max=48"`
	Password    string `json:"password" validate:"required,min=12,max=72"`
}

// ValidateRegister checks shape constraints and password complexity.
func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	if !isPasswordComplex(req.Password) {
		return ErrWeakPassword
	}
	return nil
}

func isPasswordComplex(s string) bool {
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
