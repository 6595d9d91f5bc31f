package transactions

import (
	"context"
	"strings"

	"pgsession/session"
)

// SessionTransaction runs statements inside one nested scope of a session
// connection.
type SessionTransaction struct {
	conn  *session.Connection
	scope *session.Transaction
}

func (t *SessionTransaction) Execute(ctx context.Context, statements []string) error {
	if len(statements) == 0 {
		return nil
	}
	if err := t.conn.Exec(ctx, strings.Join(statements, "; ")); err != nil {
		return NewTransactionError(ErrExecuteFailed, err.Error())
	}
	return nil
}

func (t *SessionTransaction) Complete(ctx context.Context) error {
	if err := t.scope.Commit(ctx); err != nil {
		if nesting, ok := err.(*session.OutOfOrderError); ok {
			return NewTransactionError(ErrOutOfOrder, nesting.Error())
		}
		return NewTransactionError(ErrCommitFailed, err.Error())
	}
	return nil
}

func (t *SessionTransaction) Close(ctx context.Context) error {
	if err := t.scope.Rollback(ctx); err != nil {
		if nesting, ok := err.(*session.OutOfOrderError); ok {
			return NewTransactionError(ErrOutOfOrder, nesting.Error())
		}
		return NewTransactionError(ErrRollbackFailed, err.Error())
	}
	return nil
}

func (t *SessionTransaction) Scope() *session.Transaction {
	return t.scope
}

// SessionTransactionManager opens a real nested scope per BeginTransaction,
// so every level gets its own savepoint instead of reference counting.
type SessionTransactionManager struct {
	conn *session.Connection
}

func NewSessionTransactionManager(conn *session.Connection) *SessionTransactionManager {
	return &SessionTransactionManager{conn: conn}
}

func (tm *SessionTransactionManager) BeginTransaction(ctx context.Context) (DbTransaction, error) {
	scope := tm.conn.Transaction()
	if err := scope.Begin(ctx); err != nil {
		return nil, NewTransactionError(ErrBeginFailed, err.Error())
	}
	return &SessionTransaction{conn: tm.conn, scope: scope}, nil
}

func (tm *SessionTransactionManager) CommitTransaction(ctx context.Context, transaction DbTransaction) error {
	return transaction.Complete(ctx)
}

func (tm *SessionTransactionManager) RollbackTransaction(ctx context.Context, transaction DbTransaction) error {
	return transaction.Close(ctx)
}
