package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/langchain-ai/langsmith-trace-tools/internal/config"
	"github.com/langchain-ai/langsmith-trace-tools/internal/deployments"
)

func newDeploymentsCmd() *cobra.Command {
	var nameContains string

	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "List LangGraph deployments visible to your API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cfg.APIKey == "" {
				return errors.New("API key required: set LANGSMITH_API_KEY")
			}

			c := deployments.NewClient(cfg.ControlPlaneURL, cfg.APIKey)
			ds, err := c.List(cmd.Context(), nameContains)
			if err != nil {
				return err
			}
			if len(ds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no deployments found")
				return nil
			}
			deployments.Render(cmd.OutOrStdout(), ds)
			return nil
		},
	}

	cmd.Flags().StringVar(&nameContains, "name-contains", "", "only list deployments whose name contains this substring")
	return cmd
}
