package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"pgsession/logger"
)

// Transaction is a block-scoped handle for one transaction nesting level on a
// connection: the unnamed outer transaction, or a named savepoint inside it.
// Whether a level is outer is decided at entry time from the connection's
// transaction status, and inner levels without an explicit name get one
// synthesized from the current nesting depth.
type Transaction struct {
	conn             *Connection
	savepointName    string
	forceRollback    bool
	outerTransaction bool
	entered          bool
	exited           bool
}

type TransactionOption func(*Transaction)

// WithSavepointName sets an explicit savepoint name for the scope. An outer
// scope with a name gets both a BEGIN and a SAVEPOINT at entry.
func WithSavepointName(name string) TransactionOption {
	return func(t *Transaction) {
		t.savepointName = name
	}
}

// WithForceRollback makes the scope roll back at exit even when the block
// completed without a signal. Useful for tests running against real data.
func WithForceRollback() TransactionOption {
	return func(t *Transaction) {
		t.forceRollback = true
	}
}

// Outcome is how a block ended: completed normally, or a signal (an error,
// a Rollback request, a cancellation) propagated out of it.
type Outcome struct {
	err error
}

func Completed() Outcome {
	return Outcome{}
}

func Signaled(err error) Outcome {
	return Outcome{err: err}
}

func (o Outcome) Err() error {
	return o.err
}

func (o Outcome) IsSignaled() bool {
	return o.err != nil
}

// SavepointName is empty until entry for scopes without an explicit name, and
// empty forever for an unnamed outer transaction.
func (t *Transaction) SavepointName() string {
	return t.savepointName
}

// IsOuter reports whether entry found the connection idle, making this scope
// the top-level transaction. Meaningful only after Begin.
func (t *Transaction) IsOuter() bool {
	return t.outerTransaction
}

func (t *Transaction) String() string {
	status := "inactive"
	switch {
	case t.exited:
		status = "terminated"
	case t.entered:
		status = "active"
	}
	if t.savepointName != "" {
		return fmt.Sprintf("transaction '%s' (%s)", t.savepointName, status)
	}
	return fmt.Sprintf("transaction (%s)", status)
}

// Begin enters the scope: pushes it onto the connection's savepoint stack and
// submits the BEGIN and/or SAVEPOINT commands as one batch, blocking until
// the round trip completes. A scope can be entered only once.
func (t *Transaction) Begin(ctx context.Context) error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()

	if t.entered {
		return NewSessionError(ErrAlreadyEntered, "transaction blocks can be used only once")
	}
	t.entered = true

	t.pushSavepoint()

	commands := make([]string, 0, 2)
	if t.outerTransaction {
		commands = append(commands, "BEGIN")
	}
	if t.savepointName != "" {
		commands = append(commands, "SAVEPOINT "+pq.QuoteIdentifier(t.savepointName))
	}
	return t.conn.exec(ctx, strings.Join(commands, "; "))
}

// End exits the scope with the block's outcome. A completed outcome commits
// (unless the scope forces rollback); anything else rolls back. The returned
// handled flag is true when the signal was a Rollback addressed to this scope
// (or to no scope in particular) and should stop propagating.
//
// An out-of-order-nesting error always surfaces, replacing commit semantics
// and superseding whatever signal triggered a rollback. Any other failure of
// the rollback's own command batch is logged and suppressed so it cannot
// clobber the block's original signal.
func (t *Transaction) End(ctx context.Context, outcome Outcome) (bool, error) {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()

	if !t.entered {
		return false, NewSessionError(ErrNotEntered, "transaction block was never entered")
	}
	if t.exited {
		return false, NewSessionError(ErrAlreadyExited, "transaction block already closed")
	}

	if !outcome.IsSignaled() && !t.forceRollback {
		return false, t.commit(ctx)
	}

	handled, err := t.rollback(ctx, outcome.Err())
	if err != nil {
		var nesting *OutOfOrderError
		if errors.As(err, &nesting) {
			return false, err
		}
		logger.Warn("error ignored in rollback of %s: %s", t, err)
		return false, nil
	}
	return handled, nil
}

// Commit exits the scope with a completed outcome.
func (t *Transaction) Commit(ctx context.Context) error {
	_, err := t.End(ctx, Completed())
	return err
}

// Rollback exits the scope rolling back its changes.
func (t *Transaction) Rollback(ctx context.Context) error {
	_, err := t.End(ctx, Signaled(&Rollback{Target: t}))
	return err
}

// commit requires t.conn.mu to be held.
func (t *Transaction) commit(ctx context.Context) error {
	popErr := t.popSavepoint("commit")
	t.exited = true
	if popErr != nil {
		return popErr
	}

	commands := make([]string, 0, 2)
	if t.savepointName != "" && !t.outerTransaction {
		commands = append(commands, "RELEASE SAVEPOINT "+pq.QuoteIdentifier(t.savepointName))
	}
	if t.outerTransaction {
		if t.conn.savepoints.depth() != 0 {
			panic("savepoint stack must be empty when the outer transaction ends")
		}
		// COMMIT releases every savepoint implicitly, a named outer scope
		// needs no separate RELEASE
		commands = append(commands, "COMMIT")
	}
	return t.conn.exec(ctx, strings.Join(commands, "; "))
}

// rollback requires t.conn.mu to be held.
func (t *Transaction) rollback(ctx context.Context, signal error) (bool, error) {
	var request *Rollback
	if errors.As(signal, &request) {
		logger.Debug("%s: explicit rollback from: %s", t.conn.summary(), signal)
	}

	popErr := t.popSavepoint("roll back")
	t.exited = true
	if popErr != nil {
		return false, popErr
	}

	commands := make([]string, 0, 3)
	if t.savepointName != "" && !t.outerTransaction {
		quoted := pq.QuoteIdentifier(t.savepointName)
		commands = append(commands, "ROLLBACK TO "+quoted+"; RELEASE SAVEPOINT "+quoted)
	}
	if t.outerTransaction {
		if t.conn.savepoints.depth() != 0 {
			panic("savepoint stack must be empty when the outer transaction ends")
		}
		commands = append(commands, "ROLLBACK")
	}

	// the aborted (sub)transaction may have invalidated server-side plans
	if t.conn.prepared.Clear() {
		commands = append(commands, t.conn.prepared.MaintenanceCommands()...)
	}

	if err := t.conn.exec(ctx, strings.Join(commands, "; ")); err != nil {
		return false, err
	}

	if request != nil && (request.Target == nil || request.Target == t) {
		return true, nil
	}
	return false, nil
}

// pushSavepoint records this scope on the connection's stack, deciding
// whether it is the outer transaction and synthesizing a savepoint name for
// anonymous inner scopes. Requires t.conn.mu to be held.
func (t *Transaction) pushSavepoint() {
	t.outerTransaction = t.conn.wire.TxStatus() == TxIdle
	if t.outerTransaction {
		if t.conn.savepoints.depth() != 0 {
			panic("savepoint stack is not empty although no transaction is open")
		}
	} else if t.savepointName == "" {
		t.savepointName = fmt.Sprintf("_tx_%d", t.conn.savepoints.depth()+1)
	}
	t.conn.savepoints.push(t.savepointName)
}

// popSavepoint removes the top of the stack, which happens whether or not it
// belongs to this scope, and reports the mismatch when it does not. Requires
// t.conn.mu to be held.
func (t *Transaction) popSavepoint(action string) error {
	name := t.conn.savepoints.pop()
	if name == t.savepointName {
		return nil
	}
	return newOutOfOrderError(t, action, name)
}
