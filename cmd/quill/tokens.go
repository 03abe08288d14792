package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/syssam/quill/template"
)

var kindColors = map[template.Kind]*color.Color{
	template.LineComment:      color.New(color.Faint),
	template.BlockComment:     color.New(color.Faint),
	template.SingleQuoted:     color.New(color.FgMagenta),
	template.DoubleQuoted:     color.New(color.FgBlue),
	template.BacktickQuoted:   color.New(color.FgBlue),
	template.BracketQuoted:    color.New(color.FgBlue),
	template.Positional:       color.New(color.FgGreen, color.Bold),
	template.Named:            color.New(color.FgGreen, color.Bold),
	template.InlinePositional: color.New(color.FgYellow, color.Bold),
	template.InlineNamed:      color.New(color.FgYellow, color.Bold),
	template.Identifier:       color.New(color.FgCyan, color.Bold),
}

func paint(k template.Kind, s string) string {
	if c, ok := kindColors[k]; ok {
		return c.Sprint(s)
	}
	return s
}

func newTokensCmd() *cobra.Command {
	var (
		all       bool
		highlight bool
	)
	cmd := &cobra.Command{
		Use:   "tokens [SQL]",
		Short: "Split a template into tokens",
		Long: `Split a template into tokens and print one per line with its
position and kind. Reads the template from stdin when no argument is given.`,
		Example: `  quill tokens "SELECT * FROM &post WHERE id = :id -- by id"
  quill tokens --highlight < report.sql`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := templateText(cmd, args)
			if err != nil {
				return err
			}
			tokens, err := template.Tokenize(text)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if highlight {
				return highlightTokens(w, tokens)
			}
			for _, tok := range tokens {
				if tok.Kind == template.Whitespace && !all {
					continue
				}
				fmt.Fprintf(w, "%-7s %s %q\n", tok.Pos, paint(tok.Kind, fmt.Sprintf("%-17s", tok.Kind)), tok.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include whitespace tokens")
	cmd.Flags().BoolVar(&highlight, "highlight", false, "print the template with colored tokens")
	return cmd
}

func highlightTokens(w io.Writer, tokens []template.Token) error {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteString(paint(tok.Kind, tok.Text))
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// templateText returns the first argument, or all of stdin.
func templateText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}
