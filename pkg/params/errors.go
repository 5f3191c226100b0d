package params

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is matched by every *OutOfRangeError
var ErrOutOfRange = errors.New("value out of range")

// UnknownKeyError is returned for undeclared or uninitialized keys
type UnknownKeyError struct {
	Key Key
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown parameter %q", string(e.Key))
}

// ReadOnlyKeyError is returned when writing a computed key
type ReadOnlyKeyError struct {
	Key Key
}

func (e *ReadOnlyKeyError) Error() string {
	return fmt.Sprintf("parameter %q is read-only", string(e.Key))
}

// TypeError is returned when a value does not match the key's kind
type TypeError struct {
	Key   Key
	Want  Kind
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("parameter %q expects %s, got %T", string(e.Key), e.Want, e.Value)
}

// OutOfRangeError is returned when a strictly bounded key is written outside its range
type OutOfRangeError struct {
	Key   Key
	Value float64
	Low   float64
	High  float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s out of range: %g not in [%g, %g]", string(e.Key), e.Value, e.Low, e.High)
}

// Is makes errors.Is(err, ErrOutOfRange) match
func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}
