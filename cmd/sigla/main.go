package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/siglalabs/sigla/pkg/checklist"
	"github.com/siglalabs/sigla/pkg/config"
	"github.com/siglalabs/sigla/pkg/observability"
	"github.com/siglalabs/sigla/pkg/rules"
)

const version = "1.0.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, separated for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	_ = godotenv.Load() // a missing .env is fine
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], logger, stdout, stderr)
	case "evaluate":
		return runEvaluateCmd(args[2:], logger, stdout, stderr)
	case "checklist":
		return runChecklistCmd(args[2:], logger, stdout, stderr)
	case "sweep":
		return runSweepCmd(args[2:], cfg, logger, stdout, stderr)
	case "doctor":
		return runDoctorCmd(cfg, stdout)
	case "version", "--version":
		fmt.Fprintf(stdout, "sigla %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

var (
	headColor = color.New(color.FgCyan, color.Bold)
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	condColor = color.New(color.FgYellow)
	dimColor  = color.New(color.FgHiBlack)
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, headColor.Sprintf("sigla %s", version))
	fmt.Fprintln(w, dimColor.Sprint("Barangay governance assessment toolkit."))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, headColor.Sprint("USAGE:"))
	fmt.Fprintln(w, "  sigla <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "CONTENT")
	printCommand(w, "validate", "Run pre-publication checks on authored content")
	printCommand(w, "evaluate", "Evaluate a calculation schema against response data")
	printCommand(w, "checklist", "Score a checklist config against response data")

	printSection(w, "OPERATIONS")
	printCommand(w, "sweep", "Run the deadline sweeps (reminders, auto-submit)")
	printCommand(w, "doctor", "Check configuration and environment")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintln(w, headColor.Sprintf("%s:", title))
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s %s\n", passColor.Sprintf("%-12s", name), desc)
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

func verdictLabel(v rules.Verdict) string {
	switch v {
	case rules.VerdictPass:
		return passColor.Sprint(string(v))
	case rules.VerdictFail:
		return failColor.Sprint(string(v))
	default:
		return condColor.Sprint(string(v))
	}
}

func statusLabel(s checklist.Status) string {
	switch s {
	case checklist.StatusPassed:
		return passColor.Sprint(string(s))
	case checklist.StatusFailed:
		return failColor.Sprint(string(s))
	case checklist.StatusConsidered:
		return condColor.Sprint(string(s))
	case checklist.StatusPending:
		return headColor.Sprint(string(s))
	default:
		return dimColor.Sprint(string(s))
	}
}
