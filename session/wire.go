package session

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

// TxStatus is the server-reported transaction status of a connection.
type TxStatus int

const (
	TxUnknown TxStatus = iota
	// TxIdle - no transaction is open on the connection.
	TxIdle
	// TxActive - a transaction is open.
	TxActive
	// TxError - a transaction is open but a statement in it has failed.
	TxError
)

func (s TxStatus) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxActive:
		return "in transaction"
	case TxError:
		return "in failed transaction"
	}
	return "unknown"
}

// Wire is the command execution half of a database session: it submits a
// batch of statements as one round trip and blocks until the server has
// answered. Implementations must be used only while holding the owning
// connection's lock.
type Wire interface {
	Exec(ctx context.Context, batch string) error
	TxStatus() TxStatus
	Close(ctx context.Context) error
}

// PgWire runs batches over a raw PostgreSQL connection.
type PgWire struct {
	conn *pgconn.PgConn
}

func DialWire(ctx context.Context, connectionOptions string) (*PgWire, error) {
	conn, err := pgconn.Connect(ctx, connectionOptions)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	return &PgWire{conn: conn}, nil
}

func (w *PgWire) Exec(ctx context.Context, batch string) error {
	_, err := w.conn.Exec(ctx, batch).ReadAll()
	return err
}

func (w *PgWire) TxStatus() TxStatus {
	switch w.conn.TxStatus() {
	case 'I':
		return TxIdle
	case 'T':
		return TxActive
	case 'E':
		return TxError
	}
	return TxUnknown
}

func (w *PgWire) Close(ctx context.Context) error {
	return w.conn.Close(ctx)
}
