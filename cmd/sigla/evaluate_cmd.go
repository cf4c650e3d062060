package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/siglalabs/sigla/pkg/publish"
	"github.com/siglalabs/sigla/pkg/rules"
)

// runEvaluateCmd implements `sigla evaluate`. It runs one calculation schema
// against a response data document. The schema passes through the full
// publication gate first, so a verdict always comes from content that could
// have been published.
func runEvaluateCmd(args []string, logger *slog.Logger, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		schemaPath   string
		dataPath     string
		statusesPath string
		jsonOutput   bool
	)
	cmd.StringVar(&schemaPath, "schema", "", "Path to the calculation schema document (REQUIRED)")
	cmd.StringVar(&dataPath, "data", "", "Path to the response data JSON (REQUIRED)")
	cmd.StringVar(&statusesPath, "statuses", "", "Path to a BBI functionality status map JSON")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if schemaPath == "" || dataPath == "" {
		fmt.Fprintln(stderr, "Error: --schema and --data are required")
		cmd.Usage()
		return 2
	}

	v, err := publish.NewValidator(logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	raw, err := os.ReadFile(schemaPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading schema: %v\n", err)
		return 2
	}
	schema, err := v.ValidateCalculationDocument(raw)
	if err != nil {
		fmt.Fprintf(stderr, "%s %s: %v\n", failColor.Sprint("INVALID"), schemaPath, err)
		return 1
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

	statuses := rules.FunctionalityStatuses{}
	if statusesPath != "" {
		statusRaw, err := os.ReadFile(statusesPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading statuses: %v\n", err)
			return 2
		}
		if err := json.Unmarshal(statusRaw, &statuses); err != nil {
			fmt.Fprintf(stderr, "Error parsing statuses: %v\n", err)
			return 2
		}
	}

	verdict, err := rules.NewEvaluator(logger).Execute(schema, rules.ResponseData(data), statuses)
	if err != nil {
		fmt.Fprintf(stderr, "Error evaluating: %v\n", err)
		return 1
	}

	if jsonOutput {
		printJSON(stdout, map[string]any{
			"schema":  schemaPath,
			"data":    dataPath,
			"verdict": verdict,
		})
		return 0
	}

	table := tablewriter.NewWriter(stdout)
	table.Header([]string{"Group", "Operator", "Rules"})
	for i, g := range schema.ConditionGroups {
		kinds := make([]string, 0, len(g.Rules))
		for _, r := range g.Rules {
			kinds = append(kinds, r.RuleType())
		}
		_ = table.Append([]string{strconv.Itoa(i + 1), string(g.Operator), strings.Join(kinds, ", ")})
	}
	_ = table.Render()
	fmt.Fprintf(stdout, "Verdict: %s\n", verdictLabel(verdict))
	return 0
}
