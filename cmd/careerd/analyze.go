package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print the stored profile summary for a user",
		Long: `Retrieve the documents stored for a user and print them as JSON.

Examples:
  careerd analyze --user alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) (any, error) {
				return a.svc.Analyze(cmd.Context(), userID)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRecommendCmd() *cobra.Command {
	var (
		userID    string
		interests []string
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print a career recommendation for a user",
		Long: `Build a recommendation from the stored profile and the given interests.

Examples:
  careerd recommend --user alice --interest data --interest finance`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) (any, error) {
				return a.svc.Recommend(cmd.Context(), userID, interests)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringSliceVar(&interests, "interest", nil, "interest to consider; repeat or comma-separate")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// withApp runs fn against a freshly initialized app and prints its result
// as indented JSON.
func withApp(cmd *cobra.Command, fn func(a *app) (any, error)) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	a, err := newApp(cmd.Context(), cfg, appTelemetryOptions...)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		err = errors.Join(err, a.Close(cmd.Context()))
	}()

	out, err := fn(a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
