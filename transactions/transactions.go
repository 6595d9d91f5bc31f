package transactions

import "context"

// DbTransaction is one open transaction scope. Complete commits it, Close
// rolls it back; exactly one of the two must be called.
type DbTransaction interface {
	Execute(ctx context.Context, statements []string) error
	Complete(ctx context.Context) error
	Close(ctx context.Context) error
}

type DbTransactionManager interface {
	BeginTransaction(ctx context.Context) (DbTransaction, error)
	CommitTransaction(ctx context.Context, transaction DbTransaction) error
	RollbackTransaction(ctx context.Context, transaction DbTransaction) error
}
