// Package stdlib layers nested transaction scopes over a database/sql
// connection driven by the pgx driver: the first BeginTransaction opens a
// real transaction, deeper ones create savepoints inside it.
package stdlib

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib" // registers the pgx database/sql driver
	"github.com/lib/pq"

	"pgsession/transactions"
)

func Open(connectionOptions string) (*sql.DB, error) {
	return sql.Open("pgx", connectionOptions)
}

type SqlTransactionManager struct {
	db         *sql.DB
	tx         *sql.Tx
	savepoints []string
}

func NewSqlTransactionManager(db *sql.DB) *SqlTransactionManager {
	return &SqlTransactionManager{db: db}
}

func (tm *SqlTransactionManager) BeginTransaction(ctx context.Context) (transactions.DbTransaction, error) {
	if tm.tx == nil {
		tx, err := tm.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, transactions.NewTransactionError(transactions.ErrBeginFailed, err.Error())
		}
		tm.tx = tx
		tm.savepoints = append(tm.savepoints, "")
		return &SqlTransaction{manager: tm}, nil
	}

	name := fmt.Sprintf("_tx_%d", len(tm.savepoints)+1)
	if _, err := tm.tx.ExecContext(ctx, "SAVEPOINT "+pq.QuoteIdentifier(name)); err != nil {
		return nil, transactions.NewTransactionError(transactions.ErrBeginFailed, err.Error())
	}
	tm.savepoints = append(tm.savepoints, name)
	return &SqlTransaction{manager: tm, name: name}, nil
}

func (tm *SqlTransactionManager) CommitTransaction(ctx context.Context, transaction transactions.DbTransaction) error {
	return transaction.Complete(ctx)
}

func (tm *SqlTransactionManager) RollbackTransaction(ctx context.Context, transaction transactions.DbTransaction) error {
	return transaction.Close(ctx)
}

// pop removes the top savepoint, then reports a nesting violation when it was
// not the one being closed.
func (tm *SqlTransactionManager) pop(expected string) error {
	if len(tm.savepoints) == 0 {
		return transactions.NewTransactionError(transactions.ErrAlreadyClosed, "no transaction scope is open")
	}
	top := tm.savepoints[len(tm.savepoints)-1]
	tm.savepoints = tm.savepoints[:len(tm.savepoints)-1]
	if top != expected {
		return transactions.NewTransactionError(transactions.ErrOutOfOrder,
			"scope '%s' closed while '%s' was still open", expected, top)
	}
	return nil
}

// SqlTransaction is a one-shot scope: exactly one of Complete or Close may be
// called, once.
type SqlTransaction struct {
	manager *SqlTransactionManager
	name    string
	done    bool
}

func (t *SqlTransaction) Execute(ctx context.Context, statements []string) error {
	if t.done || t.manager.tx == nil {
		return transactions.NewTransactionError(transactions.ErrAlreadyClosed, "transaction scope already closed")
	}
	for _, statement := range statements {
		if _, err := t.manager.tx.ExecContext(ctx, statement); err != nil {
			return transactions.NewTransactionError(transactions.ErrExecuteFailed, err.Error())
		}
	}
	return nil
}

func (t *SqlTransaction) Complete(ctx context.Context) error {
	if t.done {
		return transactions.NewTransactionError(transactions.ErrAlreadyClosed, "transaction scope already closed")
	}
	popErr := t.manager.pop(t.name)
	t.done = true
	if popErr != nil {
		return popErr
	}
	if t.name == "" {
		err := t.manager.tx.Commit()
		t.manager.tx = nil
		if err != nil {
			return transactions.NewTransactionError(transactions.ErrCommitFailed, err.Error())
		}
		return nil
	}
	if _, err := t.manager.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+pq.QuoteIdentifier(t.name)); err != nil {
		return transactions.NewTransactionError(transactions.ErrCommitFailed, err.Error())
	}
	return nil
}

func (t *SqlTransaction) Close(ctx context.Context) error {
	if t.done {
		return transactions.NewTransactionError(transactions.ErrAlreadyClosed, "transaction scope already closed")
	}
	popErr := t.manager.pop(t.name)
	t.done = true
	if popErr != nil {
		return popErr
	}
	if t.name == "" {
		err := t.manager.tx.Rollback()
		t.manager.tx = nil
		if err != nil {
			return transactions.NewTransactionError(transactions.ErrRollbackFailed, err.Error())
		}
		return nil
	}
	quoted := pq.QuoteIdentifier(t.name)
	if _, err := t.manager.tx.ExecContext(ctx, "ROLLBACK TO "+quoted+"; RELEASE SAVEPOINT "+quoted); err != nil {
		return transactions.NewTransactionError(transactions.ErrRollbackFailed, err.Error())
	}
	return nil
}
