package quill

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/quill/dialect"
	"github.com/syssam/quill/schema"
)

func TestNewRowNested(t *testing.T) {
	s, _ := mockSession(t, dialect.SQLite, WithConventions(schema.New().SetAlias("author", "person")))
	post := s.NewRow("post", map[string]any{
		"title":  "Hello",
		"author": map[string]any{"name": "Ada"},
		"commentList": []map[string]any{
			{"body": "first"},
			{"body": "second"},
		},
	})

	assert.Equal(t, []string{"author", "commentList", "title"}, post.Keys())
	assert.False(t, post.Clean())
	assert.False(t, post.Exists())
	assert.Nil(t, post.ID())

	author, ok := post.Get("author").(*Row)
	require.True(t, ok)
	assert.Equal(t, "person", author.Table())
	assert.Equal(t, "Ada", author.Get("name"))

	v, ok := post.Value("commentList")
	require.True(t, ok)
	assert.Equal(t, ListValue, v.Kind())
	require.Len(t, v.List(), 2)
	assert.Equal(t, "comment", v.List()[0].Table())
	assert.Equal(t, "list(2)", v.String())

	assert.Equal(t, map[string]any{"title": "Hello"}, post.Data())
	assert.Equal(t, map[string]any{"title": "Hello"}, post.Modified())
}

func TestRowSet(t *testing.T) {
	s, _ := mockSession(t, dialect.SQLite)
	row := s.load("post", []string{"id", "title", "tags"}, []any{int64(1), "A", nil})
	assert.True(t, row.Clean())
	assert.True(t, row.Exists())
	assert.Equal(t, int64(1), row.OriginalID())

	row.Set("title", "A")
	assert.True(t, row.Clean(), "setting the current value")

	row.Set("id", 1)
	assert.False(t, row.Clean(), "int and int64 are different values")
	row.Set("id", int64(1))

	row.Set("title", "B")
	assert.Equal(t, map[string]any{"id": int64(1), "title": "B"}, row.Modified())

	row.Set("tags", []any{"go", "sql"})
	v, _ := row.Value("tags")
	assert.Equal(t, ScalarValue, v.Kind())
	assert.Equal(t, []any{"go", "sql"}, row.Get("tags"))

	row.Set("tags", []any{"go", "sql"})
	assert.Contains(t, row.Modified(), "tags")

	row.Unset("tags")
	assert.False(t, row.Has("tags"))
	assert.Equal(t, []string{"id", "title"}, row.Keys())
	assert.NotContains(t, row.Modified(), "tags")

	row.SetData(map[string]any{"title": "C", "body": "c"})
	assert.Equal(t, []string{"id", "title", "body"}, row.Keys())
	assert.Equal(t, "C", row.Get("title"))
	assert.Nil(t, row.Get("missing"))
	assert.False(t, row.Has("missing"))
}

func TestRowSetRows(t *testing.T) {
	s, _ := mockSession(t, dialect.SQLite)
	author := s.NewRow("person", map[string]any{"name": "Ada"})
	post := s.NewRow("post")

	post.Set("author", author)
	assert.Same(t, author, post.Get("author"))
	v, _ := post.Value("author")
	assert.Equal(t, RowValue, v.Kind())
	assert.Equal(t, "row(person)", v.String())

	c1, c2 := s.NewRow("comment"), s.NewRow("comment")
	post.Set("comments", []any{c1, map[string]any{"body": "x"}})
	v, _ = post.Value("comments")
	require.Equal(t, ListValue, v.Kind())
	assert.Same(t, c1, v.List()[0])
	assert.Equal(t, "x", v.List()[1].Get("body"))

	post.Set("commentList", []*Row{c1, c2})
	assert.Equal(t, []*Row{c1, c2}, post.Get("commentList"))

	post.Set("empty", []any{})
	v, _ = post.Value("empty")
	assert.Equal(t, ScalarValue, v.Kind())
}

func TestRowID(t *testing.T) {
	conv := schema.New().SetPrimary("post_tag", "post_id", "tag_id").SetPrimary("account", "uuid")
	s, _ := mockSession(t, dialect.SQLite, WithConventions(conv))

	assert.Equal(t, 3, s.NewRow("post", map[string]any{"id": 3}).ID())
	assert.Equal(t, "u1", s.NewRow("account", map[string]any{"uuid": "u1"}).ID())

	tag := s.NewRow("post_tag", map[string]any{"post_id": 1})
	assert.Nil(t, tag.ID())
	assert.Equal(t, []string{"tag_id"}, tag.missing())
	tag.Set("tag_id", 2)
	assert.Equal(t, []any{1, 2}, tag.ID())
	assert.Equal(t, map[string]any{"post_id": 1, "tag_id": 2}, tag.keyWhere(tag.ID()))
	assert.Empty(t, tag.missing())
	tag.Unset("tag_id")
	assert.Equal(t, []string{"tag_id"}, tag.missing())
}

func TestRowEncoding(t *testing.T) {
	s, _ := mockSession(t, dialect.SQLite, WithConventions(schema.New().SetAlias("author", "person")))
	post := s.NewRow("post", map[string]any{
		"title":       "Hello",
		"author":      map[string]any{"name": "Ada"},
		"commentList": []map[string]any{{"body": "first"}},
	})

	t.Run("JSON", func(t *testing.T) {
		b, err := json.Marshal(post)
		require.NoError(t, err)
		assert.Equal(t, `{"author":{"name":"Ada"},"commentList":[{"body":"first"}],"title":"Hello"}`, string(b))
	})

	t.Run("Plain", func(t *testing.T) {
		assert.Equal(t, map[string]any{
			"title":       "Hello",
			"author":      map[string]any{"name": "Ada"},
			"commentList": []any{map[string]any{"body": "first"}},
		}, post.Plain())
	})

	t.Run("Msgpack", func(t *testing.T) {
		b, err := msgpack.Marshal(post)
		require.NoError(t, err)

		dec := msgpack.NewDecoder(bytes.NewReader(b))
		n, err := dec.DecodeMapLen()
		require.NoError(t, err)
		require.Equal(t, 3, n)
		var keys []string
		for range n {
			k, err := dec.DecodeString()
			require.NoError(t, err)
			keys = append(keys, k)
			_, err = dec.DecodeInterface()
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"author", "commentList", "title"}, keys)

		var decoded map[string]any
		require.NoError(t, msgpack.Unmarshal(b, &decoded))
		assert.Equal(t, "Hello", decoded["title"])
		assert.Equal(t, map[string]any{"name": "Ada"}, decoded["author"])
	})

	t.Run("Cycle", func(t *testing.T) {
		a, b := s.NewRow("person"), s.NewRow("post")
		a.Set("post", b)
		b.Set("author", a)

		out, err := json.Marshal(a)
		require.NoError(t, err)
		assert.Equal(t, `{"post":{"author":null}}`, string(out))
		assert.Equal(t, map[string]any{"post": map[string]any{"author": nil}}, a.Plain())

		_, err = msgpack.Marshal(a)
		require.NoError(t, err)
	})
}

func TestResultEncoding(t *testing.T) {
	s, _ := mockSession(t, dialect.SQLite)
	res := &Result{sess: s, table: "post", columns: []string{"id", "title"}}
	for i, title := range []string{"A", "B"} {
		res.rows = append(res.rows, s.load("post", res.columns, []any{int64(i + 1), title}))
	}

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1,"title":"A"},{"id":2,"title":"B"}]`, string(b))

	assert.Equal(t, []map[string]any{
		{"id": int64(1), "title": "A"},
		{"id": int64(2), "title": "B"},
	}, res.Plain())

	var decoded []map[string]any
	b, err = msgpack.Marshal(res)
	require.NoError(t, err)
	require.NoError(t, msgpack.Unmarshal(b, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "B", decoded[1]["title"])

	assert.Equal(t, []any{int64(1), int64(2)}, res.Keys("id"))
	idx := res.Index("title")
	assert.Len(t, idx["A"], 1)

	var titles []any
	for _, row := range res.All() {
		titles = append(titles, row.Get("title"))
	}
	assert.Equal(t, []any{"A", "B"}, titles)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{1, int64(1)},
		{int32(2), int64(2)},
		{uint8(3), int64(3)},
		{"4", int64(4)},
		{"04", "04"},
		{"-5", int64(-5)},
		{[]byte("6"), int64(6)},
		{"abc", "abc"},
		{1.5, 1.5},
		{[]int{1}, "[1]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeKey(tt.in), "normalizeKey(%#v)", tt.in)
	}
}

func TestValueKindString(t *testing.T) {
	assert.Equal(t, "scalar", ScalarValue.String())
	assert.Equal(t, "row", RowValue.String())
	assert.Equal(t, "list", ListValue.String())
	assert.Equal(t, "ValueKind(9)", ValueKind(9).String())
	assert.Equal(t, "7", Scalar(7).String())
}
