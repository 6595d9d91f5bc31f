package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"

	"pgsession/logger"
	"pgsession/utils"
)

// Connection is one database session. It owns the savepoint stack that is the
// single source of truth for which transaction scopes are currently open, the
// prepared-statement cache, and the lock that serializes every command
// executed on the wire. Scopes hold a reference to their connection; the
// connection never references scopes back.
type Connection struct {
	wire       Wire
	mu         sync.Mutex
	savepoints savepointStack
	prepared   *PreparedCache
}

func NewConnection(wire Wire) *Connection {
	return &Connection{
		wire:     wire,
		prepared: newPreparedCache(DefaultPreparedMax),
	}
}

// Connect dials a PostgreSQL server and wraps the session.
func Connect(ctx context.Context, connectionOptions string) (*Connection, error) {
	wire, err := DialWire(ctx, connectionOptions)
	if err != nil {
		return nil, err
	}
	return NewConnection(wire), nil
}

// ConnectFromEnv builds a connection from the application config (.env file
// or environment), applying the configured log level and sentry DSN first.
func ConnectFromEnv(ctx context.Context) (*Connection, error) {
	appConfig := utils.GetConfig()
	if err := logger.SetLevel(appConfig.LogLevel); err != nil {
		return nil, err
	}
	if len(appConfig.SentryDsn) > 0 {
		if err := sentry.Init(sentry.ClientOptions{Dsn: appConfig.SentryDsn}); err != nil {
			return nil, errors.Wrap(err, "initializing sentry")
		}
	}
	return Connect(ctx, appConfig.DbConnectionOptions)
}

// Transaction returns an unentered scope for this connection. The scope must
// be entered with Begin and exited exactly once.
func (c *Connection) Transaction(opts ...TransactionOption) *Transaction {
	t := &Transaction{conn: c}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithTransaction runs fn inside a transaction scope and guarantees the scope
// is exited on every path out of the block: normal return, error return,
// panic, or context cancellation. A cancelled context still gets its rollback
// submitted, on a fresh context, so the stack and the server never
// desynchronize.
func (c *Connection) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error, opts ...TransactionOption) error {
	tx := c.Transaction(opts...)
	if err := tx.Begin(ctx); err != nil {
		return err
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		// the block panicked; roll back before letting the panic continue.
		// Out-of-order nesting detected by that rollback replaces the panic
		// value, as it would replace any other signal from the block.
		_, endErr := tx.End(exitContext(ctx), Signaled(errors.New("panic during transaction block")))
		var nesting *OutOfOrderError
		if errors.As(endErr, &nesting) {
			panic(nesting)
		}
	}()

	blockErr := fn(ctx, tx)
	if blockErr == nil && ctx.Err() != nil {
		blockErr = ctx.Err()
	}
	completed = true

	outcome := Completed()
	if blockErr != nil {
		outcome = Signaled(blockErr)
	}

	handled, exitErr := tx.End(exitContext(ctx), outcome)
	if exitErr != nil {
		return exitErr
	}
	if handled {
		return nil
	}
	return blockErr
}

// exitContext keeps scope exit runnable after the block's context died.
func exitContext(ctx context.Context) context.Context {
	if ctx.Err() != nil {
		return context.Background()
	}
	return ctx
}

// Exec submits a command batch on the wire under the connection lock.
func (c *Connection) Exec(ctx context.Context, batch string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exec(ctx, batch)
}

// exec requires c.mu to be held.
func (c *Connection) exec(ctx context.Context, batch string) error {
	if err := c.wire.Exec(ctx, batch); err != nil {
		return errors.Wrapf(err, "executing %q", batch)
	}
	return nil
}

// Savepoints returns a copy of the currently open savepoint names, outermost
// first. The empty string marks the unnamed outer transaction.
func (c *Connection) Savepoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.savepoints...)
}

func (c *Connection) Prepared() *PreparedCache {
	return c.prepared
}

func (c *Connection) TxStatus() TxStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wire.TxStatus()
}

func (c *Connection) Close(ctx context.Context) error {
	return c.wire.Close(ctx)
}

func (c *Connection) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary()
}

// summary requires c.mu to be held.
func (c *Connection) summary() string {
	return fmt.Sprintf("connection (%s, %d savepoints)", c.wire.TxStatus(), len(c.savepoints))
}
