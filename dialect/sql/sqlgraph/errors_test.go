package sqlgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Violation
	}{
		{"nil", nil, NoViolation},
		{"plain", errors.New("connection refused"), NoViolation},
		{"pq_unique", &pq.Error{Code: "23505"}, UniqueViolation},
		{"pq_fk_wrapped", fmt.Errorf("exec: %w", &pq.Error{Code: "23503"}), ForeignKeyViolation},
		{"pq_other", &pq.Error{Code: "42P01"}, NoViolation},
		{"pgx_check", &pgconn.PgError{Code: "23514"}, CheckViolation},
		{"pgx_not_null", &pgconn.PgError{Code: "23502"}, NotNullViolation},
		{"mysql_duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, UniqueViolation},
		{"mysql_child_row", &mysql.MySQLError{Number: 1452}, ForeignKeyViolation},
		{"mysql_parent_row", &mysql.MySQLError{Number: 1451}, ForeignKeyViolation},
		{"mysql_check", &mysql.MySQLError{Number: 3819}, CheckViolation},
		{"mysql_bad_null", &mysql.MySQLError{Number: 1048}, NotNullViolation},
		{"mysql_other", &mysql.MySQLError{Number: 1146}, NoViolation},
		{"sqlite_message_unique", errors.New("constraint failed: UNIQUE constraint failed: post.slug (2067)"), UniqueViolation},
		{"sqlite_message_fk", errors.New("FOREIGN KEY constraint failed"), ForeignKeyViolation},
		{"sqlite_message_not_null", errors.New("NOT NULL constraint failed: post.title"), NotNullViolation},
		{"postgres_message", errors.New(`pq: duplicate key value violates unique constraint "post_slug_key"`), UniqueViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.want != NoViolation, IsConstraintError(tt.err))
		})
	}
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsUniqueConstraintError(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueConstraintError(&pq.Error{Code: "23503"}))
	assert.True(t, IsForeignKeyConstraintError(&mysql.MySQLError{Number: 1452}))
	assert.True(t, IsCheckConstraintError(errors.New("CHECK constraint failed: age")))
	assert.False(t, IsCheckConstraintError(nil))
}

func TestViolationString(t *testing.T) {
	assert.Equal(t, "unique", UniqueViolation.String())
	assert.Equal(t, "foreign key", ForeignKeyViolation.String())
	assert.Equal(t, "none", NoViolation.String())
	assert.Equal(t, "unknown", Violation(42).String())
}
