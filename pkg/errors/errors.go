package errors

import (
	"errors"
)

// Representation of errors raised by compose-sync. These are divided
// into a small number of categories, essentially distinguished by
// what the caller should do about them; i.e., is this error:
//  - a problem with something we talk to, which failed the pass?
//  - a thing that simply isn't there, which may be fine to skip?
//  - not going to work until the operator does something, e.g., fixes config?
type Error struct {
	Type Type
	// a message that can be printed out for the operator
	Help string
	// the underlying error that can be e.g., logged for developers to look at
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Type string

const (
	// The operation looked fine on paper, but something went wrong
	Server Type = "server"
	// The thing you mentioned, whatever it is, just doesn't exist
	Missing Type = "missing"
	// The operation was well-formed, but it can't succeed until the
	// operator changes something (config, credentials, the manifest)
	User Type = "user"
)

// IsMissing reports whether err, or anything it wraps, is an *Error
// of type Missing.
func IsMissing(err error) bool {
	return Is(err, Missing)
}

// Is reports whether err, or anything it wraps, is an *Error of the
// given type.
func Is(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// Help returns the help text of the outermost *Error in the chain,
// or the empty string if there isn't one.
func Help(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Help
	}
	return ""
}
