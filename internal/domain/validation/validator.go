package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// MsgImageRequired is reported when an item is created without a photo.
const MsgImageRequired = "Please upload an image for your item."

// Validator runs struct-tag validation on forms. Field names in messages
// come from the `label` struct tag, falling back to the Go field name.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the form rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return &Validator{v: v}
}

var std = New()

// Struct validates s with the package Validator.
func Struct(s any) error {
	return std.Struct(s)
}

// Struct validates s and returns the first failing field, in declaration
// order, as an *Error. Non-validation failures (e.g. s is not a struct)
// are returned unchanged.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	return NewError(fe.Field(), message(fe))
}

// Images checks that at least one image accompanies a new item.
func Images(n int) error {
	if n < 1 {
		return NewError("Image", MsgImageRequired)
	}
	return nil
}

// message renders the user-facing text for one field error.
func message(e validator.FieldError) string {
	field := e.Field()

	switch e.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "contains":
		return fmt.Sprintf("%s must contain %s", field, e.Param())
	case "eqfield":
		if strings.HasSuffix(e.Param(), "Password") {
			return "Passwords do not match"
		}
		return fmt.Sprintf("%s does not match", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(e.Param()), ", "))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
