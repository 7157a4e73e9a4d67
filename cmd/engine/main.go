package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gnosis118/paper-n-print-sub004/pkg/config"
	"github.com/gnosis118/paper-n-print-sub004/pkg/httpserver"
	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/reminder"
	"github.com/gnosis118/paper-n-print-sub004/pkg/requestid"
	"github.com/gnosis118/paper-n-print-sub004/svc/engine"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	envFile    string
	reminderAt string
)

var rootCmd = &cobra.Command{
	Use:           "engine",
	Short:         "Entitlement and reminder engine",
	Long:          `Usage gates, trial lifecycle, in-app notifications and milestone payment reminders`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "engine %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Fprintf(out, "Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Fprintf(out, "Commit: %s\n", GitCommit)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the daily jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, cfg, log, err := setup(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer eng.Close()

		runner, err := eng.Jobs()
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log)).Run(ctx, eng.Handler())
		})
		g.Go(func() error {
			return runner.Run(ctx)
		})
		return g.Wait()
	},
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Milestone payment reminders",
}

var remindersRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch reminders for milestones due in the window once",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		if reminderAt != "" {
			t, err := time.Parse(time.RFC3339, reminderAt)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
			now = t
		}

		ctx := requestid.WithContext(cmd.Context(), requestid.New())
		eng, _, _, err := setup(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer eng.Close()

		return runBatch(ctx, cmd.OutOrStdout(), func(ctx context.Context) (reminder.Summary, error) {
			return eng.Reminders.Run(ctx, now)
		})
	},
}

var trialsCmd = &cobra.Command{
	Use:   "trials",
	Short: "Trial lifecycle maintenance",
}

var trialsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire every trial whose end date has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := requestid.WithContext(cmd.Context(), requestid.New())
		eng, _, _, err := setup(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer eng.Close()

		return runBatch(ctx, cmd.OutOrStdout(), eng.Trials.Sweep)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := setup(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer eng.Close()
		return eng.Migrate(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	remindersRunCmd.Flags().StringVar(&reminderAt, "at", "", "run as of this RFC 3339 time instead of now")

	remindersCmd.AddCommand(remindersRunCmd)
	trialsCmd.AddCommand(trialsSweepCmd)
	rootCmd.AddCommand(versionCmd, serveCmd, remindersCmd, trialsCmd, migrateCmd)
}

func setup(ctx context.Context, logOut io.Writer) (*engine.Engine, engine.Config, *slog.Logger, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, engine.Config{}, nil, err
	}
	cfg, err := engine.LoadConfig()
	if err != nil {
		return nil, cfg, nil, err
	}

	log := logger.New(
		logger.WithOutput(logOut),
		logger.WithEnvironment(cfg.App.Env, cfg.App.ServiceName),
		logger.WithContextExtractors(requestid.Extractor()),
	)
	logger.SetAsDefault(log)

	eng, err := engine.New(ctx, cfg, log)
	if err != nil {
		return nil, cfg, nil, err
	}
	return eng, cfg, log, nil
}

// runBatch runs one batch and prints its summary. Only a failure of the run
// as a whole is returned: failed items are reported in the summary and the
// process still exits 0.
func runBatch[S any](ctx context.Context, w io.Writer, run func(context.Context) (S, error)) error {
	summary, err := run(ctx)
	if err != nil {
		return err
	}
	return printJSON(w, summary)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
