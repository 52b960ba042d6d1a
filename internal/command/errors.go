package command

import (
	"fmt"
	"strings"

	"github.com/jcalabro/growbloom"
	"github.com/jcalabro/growbloom/internal/keyspace"
)

// Error is a command failure as shown to clients. It wraps the growbloom
// sentinel it was derived from, when there is one.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

func replyError(msg string, err error) *Error {
	return &Error{Msg: msg, Err: err}
}

func wrongArity(name string) *Error {
	return replyError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)), nil)
}

func unknownCommand(name string) *Error {
	return replyError(fmt.Sprintf("ERR unknown command '%s'", name), nil)
}

var (
	errErrorRate = replyError("ERR error rate required", growbloom.ErrInvalidErrorRate)
	errFixed     = replyError("ERR cannot add: filter is fixed", growbloom.ErrFixed)
	errExists    = replyError("ERR filter already exists", growbloom.ErrAlreadyExists)
)

// statusError is the reply for a slot that did not resolve as required.
func statusError(status keyspace.Status) *Error {
	switch status {
	case keyspace.Missing:
		return replyError("ERR not found", status.Err())
	case keyspace.WrongType:
		return replyError("ERR mismatched type", status.Err())
	case keyspace.OK:
		return replyError("ERR item exists", status.Err())
	default:
		return replyError("Unknown error", nil)
	}
}
