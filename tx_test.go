package quill

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quill/dialect"
)

func TestTxCommit(t *testing.T) {
	ctx := context.Background()
	s, mock := mockSession(t, dialect.SQLite)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "post" WHERE "id" = ?`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var inner *Session
	err := s.Tx(ctx, func(tx *Session) error {
		inner = tx
		assert.Same(t, s, tx)
		assert.True(t, s.InTx())
		assert.True(t, s.Clear().InTx(), "derived sessions share the transaction")
		_, err := tx.Delete("post").Where("id", 1).Exec(ctx)
		return err
	})
	require.NoError(t, err)
	assert.False(t, inner.InTx(), "the transaction is over")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRollback(t *testing.T) {
	ctx := context.Background()

	t.Run("Error", func(t *testing.T) {
		s, mock := mockSession(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectRollback()
		abort := errors.New("abort")
		err := s.Tx(ctx, func(*Session) error { return abort })
		assert.Equal(t, abort, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Panic", func(t *testing.T) {
		s, mock := mockSession(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectRollback()
		assert.PanicsWithValue(t, "boom", func() {
			_ = s.Tx(ctx, func(*Session) error { panic("boom") })
		})
		assert.False(t, s.InTx())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("PanicRollbackFails", func(t *testing.T) {
		var buf bytes.Buffer
		s, mock := mockSession(t, dialect.SQLite, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(errors.New("conn closed"))
		assert.PanicsWithValue(t, "boom", func() {
			_ = s.Tx(ctx, func(*Session) error { panic("boom") })
		})
		assert.Contains(t, buf.String(), "rollback after panic failed")
		assert.Contains(t, buf.String(), "conn closed")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackFails", func(t *testing.T) {
		s, mock := mockSession(t, dialect.SQLite)
		abort, closed := errors.New("abort"), errors.New("conn closed")
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(closed)
		err := s.Tx(ctx, func(*Session) error { return abort })
		var re *RollbackError
		require.ErrorAs(t, err, &re)
		assert.ErrorIs(t, err, abort)
		assert.ErrorIs(t, err, closed)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTxDriverErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Begin", func(t *testing.T) {
		s, mock := mockSession(t, dialect.SQLite)
		mock.ExpectBegin().WillReturnError(errors.New("no connection"))
		called := false
		err := s.Tx(ctx, func(*Session) error {
			called = true
			return nil
		})
		var de *DriverError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "begin", de.Op)
		assert.False(t, called)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Commit", func(t *testing.T) {
		s, mock := mockSession(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
		err := s.Tx(ctx, func(*Session) error { return nil })
		var de *DriverError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "commit", de.Op)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTxNested(t *testing.T) {
	ctx := context.Background()

	t.Run("Join", func(t *testing.T) {
		s, mock := mockSession(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "comment" WHERE "post_id" = ?`).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`DELETE FROM "post" WHERE "id" = ?`).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.Tx(ctx, func(tx *Session) error {
			err := tx.Tx(ctx, func(inner *Session) error {
				assert.Same(t, tx, inner)
				_, err := inner.Delete("comment").Where("post_id", 1).Exec(ctx)
				return err
			})
			if err != nil {
				return err
			}
			_, err = tx.Delete("post").Where("id", 1).Exec(ctx)
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InnerFailure", func(t *testing.T) {
		s, mock := mockSession(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectRollback()
		inner := errors.New("inner")
		err := s.Tx(ctx, func(tx *Session) error {
			assert.Equal(t, inner, tx.Tx(ctx, func(*Session) error { return inner }))
			return nil
		})
		assert.Equal(t, inner, err, "an ignored inner failure still rolls back")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTxSQLite(t *testing.T) {
	ctx := context.Background()
	s, _ := sqliteSession(t)
	abort := errors.New("abort")

	var saved *Row
	err := s.Tx(ctx, func(tx *Session) error {
		saved = tx.NewRow("person", map[string]any{"name": "Ada"})
		if err := saved.Save(ctx); err != nil {
			return err
		}
		people, err := tx.Query("person").Exec(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, people.Len(), "reads see the transaction")
		return abort
	})
	assert.Equal(t, abort, err)
	people, err := s.Clear().Query("person").Exec(ctx)
	require.NoError(t, err)
	assert.Zero(t, people.Len())

	err = s.Tx(ctx, func(tx *Session) error {
		return tx.NewRow("person", map[string]any{"name": "Bob"}).Save(ctx)
	})
	require.NoError(t, err)
	people, err = s.Clear().Query("person").Exec(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"Bob"}, people.Keys("name"))

	// Sessions of an ended transaction use the driver.
	assert.False(t, saved.Session().InTx())
	people, err = saved.Session().Clear().Query("person").Exec(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, people.Len())
}

func TestTxRowsOfOuterSession(t *testing.T) {
	ctx := context.Background()
	s, _ := sqliteSession(t)
	require.NoError(t, s.NewRow("person", map[string]any{"name": "Ada"}).Save(ctx))
	people, err := s.Query("person").Exec(ctx)
	require.NoError(t, err)
	ada := people.First()
	require.NotNil(t, ada)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	abort := errors.New("abort")
	bob := s.NewRow("person", map[string]any{"name": "Bob"})
	err = s.Tx(ctx, func(*Session) error {
		if err := bob.Save(ctx); err != nil {
			return err
		}
		if err := ada.Update(ctx, map[string]any{"name": "Eve"}); err != nil {
			return err
		}
		return abort
	})
	require.Equal(t, abort, err, "writes of outer rows run in the transaction")

	people, err = s.Clear().Query("person").Exec(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"Ada"}, people.Keys("name"))

	err = s.Tx(ctx, func(*Session) error {
		return people.First().Delete(ctx)
	})
	require.NoError(t, err)
	people, err = s.Clear().Query("person").Exec(ctx)
	require.NoError(t, err)
	assert.Zero(t, people.Len())
}
