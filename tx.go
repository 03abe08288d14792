package quill

import (
	"context"
	"sync"

	"github.com/syssam/quill/dialect"
)

// txState is one database transaction.
type txState struct {
	tx dialect.Tx

	mu  sync.Mutex
	err error // first failure of a joined call
}

func (t *txState) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *txState) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// txSlot holds the open transaction of a session. It is shared by the
// session, the sessions derived from it with Clear and every row they
// load, so that all of them run their statements in the transaction
// while it is open.
type txSlot struct {
	mu  sync.Mutex
	cur *txState
}

func (s *txSlot) get() *txState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *txSlot) set(t *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = t
}

// InTx reports whether the session runs inside an open transaction.
func (s *Session) InTx() bool {
	return s.txs.get() != nil
}

// Tx runs fn in a transaction. While fn runs, every statement of the
// session runs in the transaction, including the statements issued by
// rows the session loaded or created before Tx was called. fn receives
// the session itself. The transaction commits if fn returns nil and
// rolls back otherwise, or if fn panics.
//
// Calling Tx on a session already in a transaction joins it: fn runs in
// the outer transaction, and an error of fn makes the outer transaction
// roll back even if the outer function ignores it.
func (s *Session) Tx(ctx context.Context, fn func(tx *Session) error) (err error) {
	if state := s.txs.get(); state != nil {
		if err := fn(s); err != nil {
			state.fail(err)
			return err
		}
		return nil
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return &DriverError{Op: "begin", Err: err}
	}
	state := &txState{tx: tx}
	s.txs.set(state)
	defer func() {
		if v := recover(); v != nil {
			s.txs.set(nil)
			if rerr := tx.Rollback(); rerr != nil {
				s.log.WarnContext(ctx, "rollback after panic failed", "panic", v, "error", rerr)
			}
			panic(v)
		}
	}()
	err = fn(s)
	if err == nil {
		err = state.failure()
	}
	s.txs.set(nil)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return &RollbackError{Err: err, Rollback: rerr}
		}
		s.log.WarnContext(ctx, "transaction rolled back", "error", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		return &DriverError{Op: "commit", Err: err}
	}
	return nil
}
