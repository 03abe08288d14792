// Package quill is a SQL templating engine with a convention based
// persistence layer on top.
//
// A Session wraps a driver. Statements are SQL templates bound to the
// session; builder methods return new statements:
//
//	drv, err := sql.Open("sqlite", "file:blog.db")
//	if err != nil {
//		return err
//	}
//	s := quill.New(drv)
//	posts, err := s.Query("post").
//		Where("published", true).
//		OrderBy("created_at", "DESC").
//		Limit(10).
//		Exec(ctx)
//
// Associations follow naming conventions (see package schema). Following
// an association is eager: the authors of all fetched posts are loaded by
// the first call, in one query.
//
//	for _, post := range posts.Rows() {
//		author, err := post.Ref("author").First(ctx)
//		...
//		comments, err := post.List("comment").Exec(ctx)
//		...
//	}
//
// Rows can be built as nested graphs and saved in one call; rows are
// inserted once the ids they reference are known:
//
//	post := s.NewRow("post", map[string]any{
//		"title":  "Hello",
//		"author": map[string]any{"name": "Ada"},
//		"commentList": []map[string]any{
//			{"body": "First"},
//		},
//	})
//	err := post.Save(ctx)
//
// Results of reads are cached per session until Session.Clear.
package quill
