package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/langchain-ai/langsmith-trace-tools/internal/requirements"
)

func newRequirementsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "requirements <file.go>",
		Short: "Derive an external-dependency manifest from a Go source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mods, err := requirements.Extract(args[0])
			if err != nil {
				return err
			}
			if len(mods) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no external dependencies found")
			}

			if output == "" {
				return requirements.Write(cmd.OutOrStdout(), mods)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := requirements.Write(f, mods); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d module(s) to %s\n", len(mods), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the manifest to a file instead of stdout")
	return cmd
}
