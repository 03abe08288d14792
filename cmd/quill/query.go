package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	var (
		params []string
		refs   []string
	)
	cmd := &cobra.Command{
		Use:   "query SQL [ARG...]",
		Short: "Run a template against the database",
		Long: `Run a template and print the result rows in the configured output
format. Writes print the number of affected rows.

--ref follows a reference or back reference of the result rows, so
"--ref author" prints the authors of the selected posts and
"--ref commentList" their comments.`,
		Example: `  quill query --dsn blog.db "SELECT * FROM &post WHERE author_id = ?" 1
  quill query --dsn blog.db "SELECT * FROM &post" --ref author -o yaml
  quill query --dsn blog.db "UPDATE &post SET title = :title WHERE id = ?" 3 -p title=Draft`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			sess, err := a.session()
			if err != nil {
				return err
			}
			st, err := bindStatement(sess, args[0], args[1:], params)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				st = st.Ref(ref)
			}
			res, err := st.Exec(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(res.Columns()) == 0 && res.Len() == 0 {
				fmt.Fprintf(w, "(%d rows affected)\n", res.Affected())
				if id := res.InsertID(); id != nil {
					fmt.Fprintf(w, "last insert id: %v\n", id)
				}
				return nil
			}
			return renderResult(w, a.cfg.Output, res)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "named parameter as name=value")
	cmd.Flags().StringArrayVar(&refs, "ref", nil, "follow a reference or back reference of the rows")
	return cmd
}
