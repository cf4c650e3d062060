package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/siglalabs/sigla/pkg/checklist"
)

// runChecklistCmd implements `sigla checklist`. It scores a checklist config
// against submitted data and prints the per-item breakdown.
//
// Exit codes:
//
//	0 = overall status is passed, considered, or not applicable
//	1 = overall status is failed or pending
//	2 = usage or read error
func runChecklistCmd(args []string, logger *slog.Logger, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("checklist", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		dataPath   string
		jsonOutput bool
	)
	cmd.StringVar(&configPath, "config", "", "Path to the checklist config JSON (REQUIRED)")
	cmd.StringVar(&dataPath, "data", "", "Path to the response data JSON (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if configPath == "" || dataPath == "" {
		fmt.Fprintln(stderr, "Error: --config and --data are required")
		cmd.Usage()
		return 2
	}

	cfgRaw, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading config: %v\n", err)
		return 2
	}
	var cfg checklist.Config
	if err := json.Unmarshal(cfgRaw, &cfg); err != nil {
		fmt.Fprintf(stderr, "Error parsing config: %v\n", err)
		return 2
	}

	dataRaw, err := os.ReadFile(dataPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading data: %v\n", err)
		return 2
	}
	var data map[string]any
	if err := json.Unmarshal(dataRaw, &data); err != nil {
		fmt.Fprintf(stderr, "Error parsing data: %v\n", err)
		return 2
	}

	res := checklist.NewValidator(logger).Validate(cfg, data)

	exit := 0
	if res.Overall == checklist.StatusFailed || res.Overall == checklist.StatusPending {
		exit = 1
	}

	if jsonOutput {
		printJSON(stdout, res)
		return exit
	}

	table := tablewriter.NewWriter(stdout)
	table.Header([]string{"Item", "Kind", "Status", "Reason"})
	appendItemRows(table, res.Items, 0)
	_ = table.Render()

	for _, e := range res.Errors {
		fmt.Fprintf(stdout, "%s %s: %s\n", dimColor.Sprint("data error"), e.ItemID, e.Message)
	}
	fmt.Fprintf(stdout, "Overall: %s\n", statusLabel(res.Overall))
	return exit
}

func appendItemRows(table *tablewriter.Table, items []checklist.ItemResult, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, it := range items {
		_ = table.Append([]string{
			indent + it.ItemID,
			string(it.Kind),
			statusLabel(it.Status),
			it.Reason,
		})
		appendItemRows(table, it.Children, depth+1)
	}
}
