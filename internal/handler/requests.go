package handler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// messager supplies client-facing text for a failed validation rule
type messager interface {
	message(fe validator.FieldError) string
}

// fieldMessage renders "field: text" the way the mobile app expects
func fieldMessage(fe validator.FieldError, custom map[string]string) string {
	name := fe.Field()
	if text, ok := custom[name+"."+fe.Tag()]; ok {
		return name + ": " + text
	}
	switch fe.Tag() {
	case "required":
		return name + ": Required"
	case "min":
		return fmt.Sprintf("%s: Must be at least %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s: Must be at most %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s: Must be greater than or equal to %s", name, fe.Param())
	}
	return name + ": Invalid value"
}

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Username string `json:"username" validate:"omitempty,min=3,max=20"`
}

func (registerRequest) message(fe validator.FieldError) string {
	return fieldMessage(fe, map[string]string{
		"email.required":    "Invalid email address",
		"email.email":       "Invalid email address",
		"password.required": "Password must be at least 8 characters",
		"password.min":      "Password must be at least 8 characters",
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (loginRequest) message(fe validator.FieldError) string {
	return fieldMessage(fe, map[string]string{
		"email.required":    "Invalid email address",
		"email.email":       "Invalid email address",
		"password.required": "Password is required",
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (forgotPasswordRequest) message(fe validator.FieldError) string {
	return fieldMessage(fe, map[string]string{
		"email.required": "Invalid email address",
		"email.email":    "Invalid email address",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (resetPasswordRequest) message(fe validator.FieldError) string {
	return fieldMessage(fe, map[string]string{
		"token.required":    "Reset token is required",
		"password.required": "Password must be at least 8 characters",
		"password.min":      "Password must be at least 8 characters",
	})
}

type submitRequest struct {
	RiddleID  string `json:"riddleId" validate:"required"`
	Answer    string `json:"answer" validate:"required"`
	TimeSpent int    `json:"timeSpent" validate:"gte=0"`
	HintsUsed int    `json:"hintsUsed" validate:"gte=0"`
}

func (submitRequest) message(fe validator.FieldError) string {
	return fieldMessage(fe, map[string]string{
		"riddleId.required": "Riddle ID is required",
		"answer.required":   "Answer is required",
	})
}

type validateAIRequest struct {
	RiddleID string `json:"riddleId" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

func (validateAIRequest) message(fe validator.FieldError) string {
	return fieldMessage(fe, map[string]string{
		"riddleId.required": "Riddle ID is required",
		"answer.required":   "Answer is required",
	})
}

type saveCustomRequest struct {
	RiddleID string `json:"riddleId" validate:"required"`
}

func (saveCustomRequest) message(fe validator.FieldError) string {
	return fieldMessage(fe, map[string]string{"riddleId.required": "Riddle ID is required"})
}

type checkoutRequest struct {
	PriceID string `json:"priceId" validate:"omitempty,max=255"`
}
