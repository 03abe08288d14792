package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/quill"
	"github.com/syssam/quill/dialect"
)

type resolved struct {
	SQL   string `json:"sql" yaml:"sql" msgpack:"sql"`
	Args  []any  `json:"args" yaml:"args" msgpack:"args"`
	Table string `json:"table,omitempty" yaml:"table,omitempty" msgpack:"table,omitempty"`
}

func newResolveCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "resolve SQL [ARG...]",
		Short: "Resolve a template to SQL and bound arguments",
		Long: `Resolve a template for the configured driver. Positional arguments
bind ? and ?? markers in order; --param name=value binds :name and ::name.
Values that parse as numbers or booleans are bound as such, null binds NULL.`,
		Example: `  quill resolve --driver postgres "SELECT * FROM &post WHERE author_id IN (?)" 1,2
  quill resolve "SELECT * FROM &post WHERE status = ::status AND id = :id" -p status=draft -p id=3`,
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
			res, err := st.Resolve()
			if err != nil {
				return err
			}
			out := resolved{SQL: res.SQL, Args: res.Args, Table: res.Table}
			if out.Args == nil {
				out.Args = []any{}
			}
			w := cmd.OutOrStdout()
			if a.cfg.Output != "table" {
				return encode(w, a.cfg.Output, out)
			}
			fmt.Fprintln(w, out.SQL)
			for i, v := range out.Args {
				fmt.Fprintf(w, "  %s = %s\n", argLabel(sess.Dialect(), i), formatValue(v))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "named parameter as name=value")
	return cmd
}

// argLabel names the i-th bound argument the way the dialect's
// placeholders refer to it: $n for Postgres, [n] for positional ?.
func argLabel(name string, i int) string {
	if name == dialect.Postgres {
		return "$" + strconv.Itoa(i+1)
	}
	return "[" + strconv.Itoa(i+1) + "]"
}

// bindStatement builds a statement from text with positional args and
// name=value params bound.
func bindStatement(sess *quill.Session, text string, args, params []string) (*quill.Statement, error) {
	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = parseValue(arg)
	}
	st := sess.SQL(text, values...)
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid param %q: want name=value", p)
		}
		st = st.BindNamed(name, parseValue(value))
	}
	return st, nil
}

// parseValue converts a command line value. Comma separated values become
// lists, so "1,2" binds like []any{1, 2}.
func parseValue(s string) any {
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		list := make([]any, len(parts))
		for i, p := range parts {
			list[i] = parseScalar(p)
		}
		return list
	}
	return parseScalar(s)
}

func parseScalar(s string) any {
	if s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	return s
}
