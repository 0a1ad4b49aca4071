package queue

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidCommand is returned when a job command fails validation.
var ErrInvalidCommand = errors.New("invalid job command")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func commandValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateCommand checks that a command carries at least one input and that
// every output template is usable as a file name.
func ValidateCommand(cmd Command) error {
	if err := commandValidator().Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidCommand, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	for i, input := range cmd.Inputs {
		if strings.TrimSpace(input) != input {
			return fmt.Errorf("%w: input %d has surrounding whitespace", ErrInvalidCommand, i)
		}
	}
	return nil
}
