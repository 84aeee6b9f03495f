package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError carries the first failed rule so the error handler can map
// it to a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateRequest checks struct tags on a bound request body.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			first := errs[0]
			return &ValidationError{
				Message: fmt.Sprintf("field '%s' failed on rule '%s'", strings.ToLower(first.Field()), first.Tag()),
			}
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}
