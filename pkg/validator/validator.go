package validator

import (
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared singleton, safe for concurrent use.
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("changetype", validateChangeType)
}

// validateChangeType restricts the CRUD log operation field.
func validateChangeType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "CREATE", "UPDATE", "DELETE", "DELETE_ALL_FOR_USER":
		return true
	}
	return false
}
