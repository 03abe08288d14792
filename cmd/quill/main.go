// Command quill tokenizes, resolves and runs SQL templates against a
// database.
//
//	quill tokens "SELECT * FROM &post WHERE id = :id"
//	quill resolve --driver postgres "SELECT * FROM &post WHERE id IN (?)" 1 2
//	quill query --dsn blog.db "SELECT * FROM &post" -o json
package main

import (
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
