package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/siglalabs/sigla/pkg/config"
	"github.com/siglalabs/sigla/pkg/evidence"
	"github.com/siglalabs/sigla/pkg/notify"
	"github.com/siglalabs/sigla/pkg/store"
	"github.com/siglalabs/sigla/pkg/sweep"
	"github.com/siglalabs/sigla/pkg/workflow"
)

// runSweepCmd implements `sigla sweep`. It runs one cycle of the deadline
// jobs against the configured store.
func runSweepCmd(args []string, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sweep", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		mode       string
		jsonOutput bool
	)
	cmd.StringVar(&mode, "mode", "both", "Which sweep to run: reminders, autosubmit, or both")
	cmd.BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if mode != "reminders" && mode != "autosubmit" && mode != "both" {
		fmt.Fprintf(stderr, "Error: unknown mode %q\n", mode)
		cmd.Usage()
		return 2
	}

	ctx := context.Background()

	st, ledger, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening store: %v\n", err)
		return 1
	}
	defer cleanup()

	machine := workflow.NewMachine(st, nil, ledger, logger)
	dispatcher := notify.NewDispatcher(logger, notify.NewLogNotifier(logger))
	sweeper := sweep.NewSweeper(st, machine, dispatcher, sweep.Config{
		BatchSize:    cfg.SweepBatchSize,
		ReminderLead: time.Duration(cfg.SweepReminderLead) * time.Hour,
		PerSecond:    cfg.SweepPerSecond,
	}, logger)

	var (
		rem  *sweep.ReminderStats
		auto *sweep.AutoSubmitStats
	)
	if mode == "reminders" || mode == "both" {
		stats, err := sweeper.RunReminders(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error running reminder sweep: %v\n", err)
			return 1
		}
		rem = &stats
	}
	if mode == "autosubmit" || mode == "both" {
		stats, err := sweeper.RunAutoSubmit(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error running auto-submit sweep: %v\n", err)
			return 1
		}
		auto = &stats
	}

	if jsonOutput {
		out := map[string]any{}
		if rem != nil {
			out["reminders"] = map[string]int{
				"examined": rem.Examined,
				"reminded": rem.Reminded,
				"failed":   rem.Failed,
			}
		}
		if auto != nil {
			out["auto_submit"] = map[string]int{
				"examined":        auto.Examined,
				"areas_submitted": auto.AreasSubmitted,
				"areas_skipped":   auto.AreasSkipped,
				"failed":          auto.Failed,
			}
		}
		printJSON(stdout, out)
		return 0
	}

	table := tablewriter.NewWriter(stdout)
	table.Header([]string{"Sweep", "Examined", "Applied", "Skipped", "Failed"})
	if rem != nil {
		_ = table.Append([]string{"reminders",
			strconv.Itoa(rem.Examined), strconv.Itoa(rem.Reminded), "-", strconv.Itoa(rem.Failed)})
	}
	if auto != nil {
		_ = table.Append([]string{"auto-submit",
			strconv.Itoa(auto.Examined), strconv.Itoa(auto.AreasSubmitted),
			strconv.Itoa(auto.AreasSkipped), strconv.Itoa(auto.Failed)})
	}
	_ = table.Render()
	return 0
}

// openStore builds the configured store driver. The returned cleanup is
// always safe to call. Only postgres carries a persistent evidence ledger;
// the other drivers run the completeness gate on answered values alone.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, evidence.Ledger, func(), error) {
	noop := func() {}
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), evidence.NewMemoryLedger(), noop, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("opening sqlite at %s: %w", cfg.SQLitePath, err)
		}
		st, err := store.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, noop, err
		}
		return st, nil, func() { _ = db.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, noop, fmt.Errorf("postgres ping failed: %w", err)
		}
		st, err := store.NewPostgresStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, noop, err
		}
		ledger, err := evidence.NewPostgresLedger(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, noop, err
		}
		return st, ledger, func() { _ = db.Close() }, nil
	default:
		return nil, nil, noop, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
