package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-prereq/internal/app"
	"github.com/yungbote/neurobridge-prereq/internal/domain/seed"
)

var rootCmd = &cobra.Command{
	Use:           "prereq",
	Short:         "Prerequisite graph engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the trigger worker unless --no-worker)",
	RunE: func(cmd *cobra.Command, args []string) error {
		noWorker, _ := cmd.Flags().GetBool("no-worker")
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx, !noWorker)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume graph-expand and graph-propagate triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			return a.RunWorker(ctx)
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the record store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate(cmd.Context())
	},
}

var gradesCmd = &cobra.Command{
	Use:   "grades",
	Short: "List grade levels with starting knowledge",
	RunE: func(cmd *cobra.Command, args []string) error {
		grades, err := seed.GradeLevels()
		if err != nil {
			return err
		}
		for _, g := range grades {
			bases, err := seed.BaseTopics(g)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", g)
			for _, b := range bases {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-17s %s\n", b.Subject, b.Topic)
			}
		}
		return nil
	},
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func init() {
	serveCmd.Flags().Bool("no-worker", false, "Do not start the trigger worker in this process")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(gradesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
