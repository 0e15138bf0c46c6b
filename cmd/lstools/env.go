package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/langchain-ai/langsmith-trace-tools/internal/envinfo"
)

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print runtime and version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(envinfo.Collect())
		},
	}
}
