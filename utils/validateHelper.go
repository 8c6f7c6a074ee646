package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs the validator on a tagged input struct and returns the
// first violation as a plain error.
func ValidateStruct(input interface{}) error {
	if err := validate.Struct(input); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return errs[0]
		}
		return err
	}
	return nil
}
