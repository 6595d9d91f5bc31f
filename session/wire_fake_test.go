package session_test

import (
	"context"
	"strings"

	"pgsession/session"
)

// fakeWire records every submitted batch and tracks the transaction status
// the way a server would: BEGIN opens a transaction, COMMIT and a bare
// ROLLBACK close it, ROLLBACK TO a savepoint leaves it open.
type fakeWire struct {
	status   session.TxStatus
	batches  []string
	failNext error
}

func newFakeWire() *fakeWire {
	return &fakeWire{status: session.TxIdle}
}

func (w *fakeWire) Exec(ctx context.Context, batch string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.failNext != nil {
		err := w.failNext
		w.failNext = nil
		return err
	}
	w.batches = append(w.batches, batch)
	for _, command := range strings.Split(batch, "; ") {
		switch command {
		case "BEGIN":
			w.status = session.TxActive
		case "COMMIT", "ROLLBACK":
			w.status = session.TxIdle
		}
	}
	return nil
}

func (w *fakeWire) TxStatus() session.TxStatus {
	return w.status
}

func (w *fakeWire) Close(ctx context.Context) error {
	return nil
}

func (w *fakeWire) lastBatch() string {
	return w.batches[len(w.batches)-1]
}
