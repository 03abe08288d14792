package quill

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quill/dialect"
	"github.com/syssam/quill/schema"
	"github.com/syssam/quill/template"
)

func TestStatementBuilders(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		conv    *schema.Conventions
		build   func(*Session) *Statement
		sql     string
		args    []any
	}{
		{
			name:  "Query",
			build: func(s *Session) *Statement { return s.Query("post") },
			sql:   `SELECT * FROM "post" WHERE 1=1`,
		},
		{
			name:  "WhereValue",
			build: func(s *Session) *Statement { return s.Query("post").Where("id", 5) },
			sql:   `SELECT * FROM "post" WHERE "id" = ?`,
			args:  []any{5},
		},
		{
			name: "WhereCombined",
			build: func(s *Session) *Statement {
				return s.Query("post").Where("author_id", 1, 2).Where("published", true)
			},
			sql:  `SELECT * FROM "post" WHERE ("author_id" IN (?, ?)) AND ("published" = ?)`,
			args: []any{1, 2, true},
		},
		{
			name:  "WhereNil",
			build: func(s *Session) *Statement { return s.Query("post").Where("author_id", nil) },
			sql:   `SELECT * FROM "post" WHERE "author_id" IS NULL`,
		},
		{
			name:  "WhereListWithNil",
			build: func(s *Session) *Statement { return s.Query("post").Where("author_id", []any{1, nil}) },
			sql:   `SELECT * FROM "post" WHERE "author_id" IN (?) OR "author_id" IS NULL`,
			args:  []any{1},
		},
		{
			name:  "WhereNotListWithNil",
			build: func(s *Session) *Statement { return s.Query("post").WhereNot("author_id", []any{1, 2, nil}) },
			sql:   `SELECT * FROM "post" WHERE "author_id" NOT IN (?, ?) AND "author_id" IS NOT NULL`,
			args:  []any{1, 2},
		},
		{
			name:  "WhereNotValue",
			build: func(s *Session) *Statement { return s.Query("post").WhereNot("id", 3) },
			sql:   `SELECT * FROM "post" WHERE "id" != ?`,
			args:  []any{3},
		},
		{
			name:  "WhereEmptyList",
			build: func(s *Session) *Statement { return s.Query("post").Where("id", []int{}) },
			sql:   `SELECT * FROM "post" WHERE 0=1`,
		},
		{
			name:  "WhereNotEmptyList",
			build: func(s *Session) *Statement { return s.Query("post").WhereNot("id", []int{}) },
			sql:   `SELECT * FROM "post" WHERE 1=1`,
		},
		{
			name:  "WhereRaw",
			build: func(s *Session) *Statement { return s.Query("post").Where("created_at > ?", 3) },
			sql:   `SELECT * FROM "post" WHERE created_at > ?`,
			args:  []any{3},
		},
		{
			name:  "WhereEmptyIgnored",
			build: func(s *Session) *Statement { return s.Query("post").Where("") },
			sql:   `SELECT * FROM "post" WHERE 1=1`,
		},
		{
			name: "WhereMap",
			build: func(s *Session) *Statement {
				return s.Query("post_tag").WhereMap(map[string]any{"tag_id": 2, "post_id": 1})
			},
			sql:  `SELECT * FROM "post_tag" WHERE ("post_id" = ?) AND ("tag_id" = ?)`,
			args: []any{1, 2},
		},
		{
			name: "OrderByLimit",
			build: func(s *Session) *Statement {
				return s.Query("post").OrderBy("title").OrderBy("id", "desc").Limit(10, 20)
			},
			sql: `SELECT * FROM "post" WHERE 1=1 ORDER BY "title" ASC, "id" DESC LIMIT 10 OFFSET 20`,
		},
		{
			name:  "LimitReplaced",
			build: func(s *Session) *Statement { return s.Query("post").Limit(5).Limit(10) },
			sql:   `SELECT * FROM "post" WHERE 1=1 LIMIT 10`,
		},
		{
			name:  "Paged",
			build: func(s *Session) *Statement { return s.Query("post").Paged(10, 3) },
			sql:   `SELECT * FROM "post" WHERE 1=1 LIMIT 10 OFFSET 20`,
		},
		{
			name:  "Select",
			build: func(s *Session) *Statement { return s.Query("post").Select("id").Select("post.title") },
			sql:   `SELECT "id", "post"."title" FROM "post" WHERE 1=1`,
		},
		{
			name:    "Postgres",
			dialect: dialect.Postgres,
			build: func(s *Session) *Statement {
				return s.Query("post").Where("id", 1).Where("title = :title", template.Params{"title": "x"})
			},
			sql:  `SELECT * FROM "post" WHERE ("id" = $1) AND (title = $2)`,
			args: []any{1, "x"},
		},
		{
			name:    "MySQL",
			dialect: dialect.MySQL,
			build:   func(s *Session) *Statement { return s.Query("post").Where("id", 1).OrderBy("title") },
			sql:     "SELECT * FROM `post` WHERE `id` = ? ORDER BY `title` ASC",
			args:    []any{1},
		},
		{
			name:  "Rewrite",
			conv:  schema.New().SetRewrite(schema.PrefixRewrite("app_")),
			build: func(s *Session) *Statement { return s.Query("post") },
			sql:   `SELECT * FROM "app_post" WHERE 1=1`,
		},
		{
			name: "Insert",
			build: func(s *Session) *Statement {
				return s.Insert("post", map[string]any{"title": "A", "author_id": 1}, map[string]any{"title": "B"})
			},
			sql:  `INSERT INTO "post" ("author_id", "title") VALUES (?, ?), (NULL, ?)`,
			args: []any{1, "A", "B"},
		},
		{
			name:    "InsertDefault",
			dialect: dialect.MySQL,
			build: func(s *Session) *Statement {
				return s.Insert("post", map[string]any{"title": "A", "author_id": 1}, map[string]any{"title": "B"})
			},
			sql:  "INSERT INTO `post` (`author_id`, `title`) VALUES (?, ?), (DEFAULT, ?)",
			args: []any{1, "A", "B"},
		},
		{
			name:  "InsertEmptyRow",
			build: func(s *Session) *Statement { return s.Insert("post", map[string]any{}) },
			sql:   `INSERT INTO "post" ("id") VALUES (NULL)`,
		},
		{
			name:  "InsertNothing",
			build: func(s *Session) *Statement { return s.Insert("post") },
			sql:   `SELECT 1 FROM "post" WHERE 1=0`,
		},
		{
			name: "Update",
			build: func(s *Session) *Statement {
				return s.Update("post", map[string]any{"title": "B", "body": "b"}).Where("id", 3)
			},
			sql:  `UPDATE "post" SET "body" = ?, "title" = ? WHERE "id" = ?`,
			args: []any{"b", "B", 3},
		},
		{
			name:  "UpdateNothing",
			build: func(s *Session) *Statement { return s.Update("post", nil).Where("id", 3) },
			sql:   `SELECT 1 FROM "post" WHERE 1=0`,
		},
		{
			name:  "Delete",
			build: func(s *Session) *Statement { return s.Delete("post").Where("id", 3).Limit(1) },
			sql:   `DELETE FROM "post" WHERE "id" = ? LIMIT 1`,
			args:  []any{3},
		},
		{
			name:  "SQL",
			build: func(s *Session) *Statement { return s.SQL("SELECT * FROM &post WHERE ::where", template.Params{"where": s.Is("id", 2)}) },
			sql:   `SELECT * FROM "post" WHERE "id" = ?`,
			args:  []any{2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := tt.dialect
			if name == "" {
				name = dialect.SQLite
			}
			var opts []Option
			if tt.conv != nil {
				opts = append(opts, WithConventions(tt.conv))
			}
			s, _ := mockSession(t, name, opts...)
			res, err := tt.build(s).Resolve()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, res.SQL)
			if len(tt.args) == 0 {
				assert.Empty(t, res.Args)
			} else {
				assert.Equal(t, tt.args, res.Args)
			}
		})
	}
}

func TestStatementImmutable(t *testing.T) {
	s, _ := mockSession(t, dialect.SQLite)
	base := s.Query("post")
	filtered := base.Where("id", 1)
	assert.Equal(t, `SELECT * FROM "post" WHERE 1=1`, base.String())
	assert.Equal(t, `SELECT * FROM "post" WHERE "id" = ?`, filtered.String())
	assert.Equal(t, "post", filtered.Table())
	assert.Same(t, s, filtered.Session())
}

func TestStatementErrors(t *testing.T) {
	ctx := context.Background()
	s, mock := mockSession(t, dialect.SQLite)

	t.Run("Direction", func(t *testing.T) {
		st := s.Query("post").OrderBy("id", "sideways").Where("id", 1)
		var e *InvalidDirectionError
		require.ErrorAs(t, st.Err(), &e)
		assert.Equal(t, "sideways", e.Direction)
		_, err := st.Exec(ctx)
		assert.ErrorAs(t, err, &e)
	})

	t.Run("Limit", func(t *testing.T) {
		_, err := s.Query("post").Limit(0).Exec(ctx)
		assert.True(t, IsInvalidArgument(err))
		_, err = s.Query("post").Paged(10, 0).Exec(ctx)
		var e *InvalidLimitError
		require.ErrorAs(t, err, &e)
		assert.Equal(t, -10, e.Offset)
	})

	t.Run("Table", func(t *testing.T) {
		_, err := s.Query("post; DROP TABLE post").Exec(ctx)
		var e *InvalidTableError
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "post; DROP TABLE post", e.Name)
	})

	t.Run("Registry", func(t *testing.T) {
		rs, _ := mockSession(t, dialect.SQLite, WithConventions(schema.New().Register("post")))
		_, err := rs.Query("post").Resolve()
		require.NoError(t, err)
		_, err = rs.Query("user").Exec(ctx)
		assert.True(t, IsUnknownAssociation(err))
	})

	t.Run("FirstEmpty", func(t *testing.T) {
		mock.ExpectQuery(`SELECT * FROM "post" WHERE "id" = ?`).
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		_, err := s.Query("post").Where("id", 99).First(ctx)
		assert.True(t, IsNotFound(err))
	})

	t.Run("UpdateWithoutWhere", func(t *testing.T) {
		_, err := s.SQL("SELECT * FROM &post").Update(ctx, map[string]any{"title": "x"})
		assert.Error(t, err)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s, mock := mockSession(t, dialect.SQLite)

	mock.ExpectExec(`UPDATE "post" SET "title" = ? WHERE "author_id" = ?`).
		WithArgs("x", 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	res, err := s.Query("post").Where("author_id", 1).Update(ctx, map[string]any{"title": "x"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Affected())

	mock.ExpectExec(`DELETE FROM "post" WHERE ("author_id" = ?) AND ("title" = ?)`).
		WithArgs(1, "x").
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := s.Query("post").Where("author_id", 1).Where("title", "x").Delete(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n.Affected())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementInsertID(t *testing.T) {
	ctx := context.Background()

	t.Run("Driver", func(t *testing.T) {
		s, mock := mockSession(t, dialect.SQLite)
		mock.ExpectExec(`INSERT INTO "post" ("title") VALUES (?)`).
			WithArgs("A").
			WillReturnResult(sqlmock.NewResult(7, 1))
		id, err := s.Insert("post", map[string]any{"title": "A"}).InsertID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Returning", func(t *testing.T) {
		s, mock := mockSession(t, dialect.Postgres)
		mock.ExpectQuery(`INSERT INTO "post" ("title") VALUES ($1) RETURNING "id"`).
			WithArgs("A").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
		id, err := s.insert("post", []map[string]any{{"title": "A"}}, "id").InsertID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Sequence", func(t *testing.T) {
		s, mock := mockSession(t, dialect.Postgres)
		mock.ExpectExec(`INSERT INTO "post" ("title") VALUES ($1)`).
			WithArgs("A").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT currval($1)`).
			WithArgs("post_id_seq").
			WillReturnRows(sqlmock.NewRows([]string{"currval"}).AddRow(int64(12)))
		id, err := s.Insert("post", map[string]any{"title": "A"}).InsertID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(12), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
