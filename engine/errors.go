package engine

import (
	"errors"
	"fmt"
)

// IncompatibleInputTypeError is returned by an engine handed an event of a
// type it does not process.
var IncompatibleInputTypeError = errors.New("incompatible input type")

// InvalidInputError is returned when an event is of a known type but its
// content is unusable, for instance an object of the wrong kind.
type InvalidInputError struct {
	err error
}

func NewInvalidInputErrorf(msg string, args ...interface{}) error {
	return InvalidInputError{
		err: fmt.Errorf(msg, args...),
	}
}

func (e InvalidInputError) Unwrap() error {
	return e.err
}

func (e InvalidInputError) Error() string {
	return e.err.Error()
}

// IsInvalidInputError returns whether the given error is an InvalidInputError.
func IsInvalidInputError(err error) bool {
	var errInvalidInput InvalidInputError
	return errors.As(err, &errInvalidInput)
}
