package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/langchain-ai/langsmith-trace-tools/internal/config"
	"github.com/langchain-ai/langsmith-trace-tools/internal/copier"
	"github.com/langchain-ai/langsmith-trace-tools/internal/share"
	"github.com/langchain-ai/langsmith-trace-tools/internal/uploader"
)

func newCopyTraceCmd() *cobra.Command {
	var (
		project          string
		apiKey           string
		endpoint         string
		region           string
		updateTimestamps bool
		dryRun           bool
	)

	cmd := &cobra.Command{
		Use:   "copy-trace <share-token>",
		Short: "Copy a publicly shared trace into your own project",
		Long: `Fetches a trace by its public share token and re-ingests it into your own
account: every run gets a fresh ID, parent links and dotted orders are
recomputed, and extra.metadata records the original run IDs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := args[0]
			cfg := config.Load()

			if apiKey == "" {
				apiKey = cfg.APIKey
			}
			switch {
			case endpoint != "":
				// explicit endpoint wins over region
			case region != "":
				endpoint = config.EndpointForRegion(region)
			default:
				endpoint = cfg.Endpoint
			}
			if apiKey == "" && !dryRun {
				return errors.New("API key required: set LANGSMITH_API_KEY or pass --api-key")
			}

			ctx := cmd.Context()
			src := share.NewClient(endpoint, token)

			slog.Info("fetching shared trace", "endpoint", endpoint)
			root, err := src.RootRun(ctx)
			if err != nil {
				return fmt.Errorf("fetch root run: %w", err)
			}
			name := ""
			if root.Name != nil {
				name = *root.Name
			}
			slog.Info("root run fetched", "name", name, "id", deref(root.ID))

			runs, err := src.Runs(ctx)
			if err != nil {
				return fmt.Errorf("fetch runs: %w", err)
			}
			slog.Info("runs fetched", "count", len(runs))

			// Feedback cannot be copied across accounts; report it so the
			// caller knows what the copy leaves behind.
			if feedbacks, err := src.Feedbacks(ctx, nil); err != nil {
				slog.Warn("could not fetch feedback for shared trace", "err", err)
			} else if len(feedbacks) > 0 {
				slog.Info("shared trace has feedback that will not be copied", "count", len(feedbacks))
			}

			transformed, err := copier.Transform(runs, copier.Options{
				Project:            project,
				PreserveTimestamps: !updateTimestamps,
			})
			if err != nil {
				return fmt.Errorf("transform trace: %w", err)
			}
			traceID := deref(transformed[0].TraceID)
			slog.Info("trace transformed", "runs", len(transformed), "new_trace_id", traceID)

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "[dry run] would upload %d runs to project %q (trace %s)\n",
					len(transformed), project, traceID)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(transformed[0])
			}

			up := uploader.New(uploader.Config{
				BaseURL:        endpoint,
				APIKey:         apiKey,
				BatchSize:      cfg.BatchSize,
				MaxBufferBytes: cfg.MaxBufferBytes,
				MaxAttempts:    cfg.MaxRetries,
				BackoffInitial: cfg.BackoffInitial,
				InFlight:       cfg.InFlight,
			})
			for i := range transformed {
				if err := up.Add(ctx, &transformed[i]); err != nil {
					return fmt.Errorf("queue run for upload: %w", err)
				}
			}
			if err := up.Flush(ctx); err != nil {
				return fmt.Errorf("upload runs: %w", err)
			}

			slog.Info("trace copied", "project", project, "runs", len(transformed), "new_trace_id", traceID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "target project name in your account")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "LangSmith API key (defaults to LANGSMITH_API_KEY)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "API endpoint (overrides --region)")
	cmd.Flags().StringVar(&region, "region", "", "API region: us or eu")
	cmd.Flags().BoolVar(&updateTimestamps, "update-timestamps", false, "set run start times to now instead of preserving the originals")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and transform but do not upload")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
