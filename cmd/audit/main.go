package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"squad-reconciler/internal/constants"
	fxmodules "squad-reconciler/internal/fx"
	"squad-reconciler/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var errIssuesRemain = errors.New("issues remain")

var (
	dbPath       string
	failOnIssues bool
)

var rootCmd = &cobra.Command{
	Use:           "audit",
	Short:         "Check and repair squad statistics consistency",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate selections, event stats and aggregates and print the report",
	Long: `Load every player, selection, event stat and aggregate, run the cross-layer
validation and print the report with its issues as JSON. Nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, engine *service.Engine) error {
			return runCheck(ctx, engine, cmd.OutOrStdout())
		})
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Check, repair and re-check, printing the outcome and both reports",
	Long: `Run a check, repair what it found (purge orphaned references, regenerate
event stats, recompute aggregates) and check again. The output holds the report
before repair, the repair outcome with its step log and the report after.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, engine *service.Engine) error {
			return runRepair(ctx, engine, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&failOnIssues, "fail-on-issues", false, "Exit non-zero when the final report has issues")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(repairCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errIssuesRemain) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// withEngine builds the dependency graph without the HTTP server and runs fn.
func withEngine(ctx context.Context, fn func(context.Context, *service.Engine) error) error {
	if dbPath != "" {
		os.Setenv("DB_PATH", dbPath)
	}

	var engine *service.Engine
	var sqlDB *sql.DB
	app := fx.New(
		fxmodules.Core,
		fx.NopLogger,
		fx.Decorate(func(l zerolog.Logger) zerolog.Logger { return l.Output(os.Stderr) }),
		fx.Populate(&engine, &sqlDB),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		app.Stop(stopCtx)
		sqlDB.Close()
	}()

	return fn(ctx, engine)
}

func runCheck(ctx context.Context, engine *service.Engine, w io.Writer) error {
	res, err := engine.Check(ctx)
	if err != nil {
		return err
	}

	if err := writeJSON(w, map[string]any{
		"report": res.Report,
		"issues": res.Issues,
	}); err != nil {
		return err
	}
	if failOnIssues && res.Report.TotalIssues > 0 {
		return errIssuesRemain
	}
	return nil
}

func runRepair(ctx context.Context, engine *service.Engine, w io.Writer) error {
	before, err := engine.Check(ctx)
	if err != nil {
		return err
	}

	outcome, after, err := engine.RunRepair(ctx, before.Report)
	if err != nil {
		return err
	}

	out := map[string]any{
		"before":  before.Report,
		"outcome": outcome,
		"after":   after,
	}
	if last, ok := engine.LastCheck(); ok {
		out["issues"] = last.Issues
	}
	if err := writeJSON(w, out); err != nil {
		return err
	}
	if failOnIssues && after.TotalIssues > 0 {
		return errIssuesRemain
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
