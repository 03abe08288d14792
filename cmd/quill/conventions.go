package main

import (
	"github.com/spf13/cobra"
)

func newConventionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conventions",
		Short: "Print the effective naming conventions",
		Long: `Print the conventions loaded from --conventions as YAML. The output
is a valid conventions file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			conv, err := a.conventions()
			if err != nil {
				return err
			}
			format := a.cfg.Output
			if format == "table" {
				format = "yaml"
			}
			return encode(cmd.OutOrStdout(), format, conv.File())
		},
	}
}
