package session

import (
	"encoding/json"
	"fmt"

	"github.com/getsentry/sentry-go"
)

// Session errors description
const (
	ErrAlreadyEntered = "already_entered"
	ErrNotEntered     = "not_entered"
	ErrAlreadyExited  = "already_exited"
)

type SessionError struct {
	code string
	msg  string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("Session error:  code='%s'  msg = '%s'", e.code, e.msg)
}

func (e *SessionError) Code() string {
	return e.code
}

func (e *SessionError) Json() []byte {
	j, _ := json.Marshal(map[string]string{
		"code": "session:" + e.code,
		"msg":  e.msg,
	})
	return j
}

func NewSessionError(code string, msg string, a ...interface{}) *SessionError {
	return &SessionError{code: code, msg: fmt.Sprintf(msg, a...)}
}

// OutOfOrderError reports that a transaction scope was closed while a
// different savepoint was on top of the stack, i.e. scopes were exited in an
// order inconsistent with how they were entered. Once raised the nesting
// model can no longer be trusted, so this error is never suppressed.
type OutOfOrderError struct {
	Scope    string
	Action   string
	Expected string
	Actual   string
}

func newOutOfOrderError(t *Transaction, action string, actual string) *OutOfOrderError {
	err := &OutOfOrderError{
		Scope:    t.String(),
		Action:   action,
		Expected: t.savepointName,
		Actual:   actual,
	}
	sentry.CaptureMessage(err.Error())
	return err
}

func (e *OutOfOrderError) Error() string {
	other := fmt.Sprintf("the savepoint '%s'", e.Actual)
	if e.Actual == "" {
		other = "the top-level transaction"
	}
	return fmt.Sprintf(
		"transactions not correctly nested: %s would %s in the wrong order compared to %s",
		e.Scope, e.Action, other)
}

// Rollback is the control signal that exits the current transaction block and
// rolls back the changes made within it. Not a failure: a block returning a
// Rollback with no Target, or targeting the scope being exited, is reported
// as handled and nothing propagates further. With Target set to an ancestor
// scope the signal keeps propagating until that ancestor's exit swallows it.
type Rollback struct {
	Target *Transaction
}

func (r *Rollback) Error() string {
	if r.Target != nil {
		return fmt.Sprintf("rollback requested up to %s", r.Target)
	}
	return "rollback requested"
}
