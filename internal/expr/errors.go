package expr

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by expression evaluation and vocabulary lookup.
var (
	ErrUndefined         = errors.New("undefined variable")
	ErrStack             = errors.New("unbalanced evaluation stack")
	ErrNotCallable       = errors.New("value is not callable")
	ErrArguments         = errors.New("wrong number of arguments")
	ErrOperand           = errors.New("unsupported operand type")
	ErrZeroDivision      = errors.New("division by zero")
	ErrUnknownVocabulary = errors.New("unknown vocabulary")
)

// ParseError reports malformed expression syntax together with the
// (1-based) column of the offending character.
type ParseError struct {
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [column %d]: %s", e.Column, e.Msg)
}

func parseErrorf(column int, format string, args ...any) *ParseError {
	return &ParseError{Column: column, Msg: fmt.Sprintf(format, args...)}
}

func operandError(op string, args ...any) error {
	switch len(args) {
	case 1:
		return fmt.Errorf("%w for %s: %T", ErrOperand, op, args[0])
	case 2:
		return fmt.Errorf("%w for %s: %T and %T", ErrOperand, op, args[0], args[1])
	}
	return fmt.Errorf("%w for %s", ErrOperand, op)
}

func arityError(name string, want string, got int) error {
	return fmt.Errorf("%w: %s() takes %s, got %d", ErrArguments, name, want, got)
}
