package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/siglalabs/sigla/pkg/indicator"
	"github.com/siglalabs/sigla/pkg/publish"
)

// contentSet is the wire shape of an authored content file.
type contentSet struct {
	Indicators []indicator.Indicator      `json:"indicators"`
	Areas      []indicator.GovernanceArea `json:"areas,omitempty"`
}

// runValidateCmd implements `sigla validate`, the pre-publication gate.
//
// Exit codes:
//
//	0 = content is publishable
//	1 = content has blocking issues
//	2 = usage or read error
func runValidateCmd(args []string, logger *slog.Logger, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		schemaPath string
		setPath    string
		jsonOutput bool
	)
	cmd.StringVar(&schemaPath, "schema", "", "Path to a calculation schema document")
	cmd.StringVar(&setPath, "set", "", "Path to an indicator set document")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if schemaPath == "" && setPath == "" {
		fmt.Fprintln(stderr, "Error: --schema or --set is required")
		cmd.Usage()
		return 2
	}

	v, err := publish.NewValidator(logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if schemaPath != "" {
		if code := validateSchemaFile(v, schemaPath, jsonOutput, stdout, stderr); code != 0 {
			return code
		}
	}
	if setPath != "" {
		if code := validateSetFile(v, setPath, jsonOutput, stdout, stderr); code != 0 {
			return code
		}
	}
	return 0
}

func validateSchemaFile(v *publish.Validator, path string, jsonOutput bool, stdout, stderr io.Writer) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading schema: %v\n", err)
		return 2
	}

	schema, err := v.ValidateCalculationDocument(raw)
	if err != nil {
		if jsonOutput {
			printJSON(stdout, map[string]any{"file": path, "valid": false, "error": err.Error()})
		} else {
			fmt.Fprintf(stderr, "%s %s: %v\n", failColor.Sprint("INVALID"), path, err)
		}
		return 1
	}

	if jsonOutput {
		printJSON(stdout, map[string]any{
			"file":   path,
			"valid":  true,
			"groups": len(schema.ConditionGroups),
		})
	} else {
		fmt.Fprintf(stdout, "%s %s (%d condition group(s))\n",
			passColor.Sprint("VALID"), path, len(schema.ConditionGroups))
	}
	return 0
}

func validateSetFile(v *publish.Validator, path string, jsonOutput bool, stdout, stderr io.Writer) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading set: %v\n", err)
		return 2
	}
	var set contentSet
	if err := json.Unmarshal(raw, &set); err != nil {
		fmt.Fprintf(stderr, "Error parsing set: %v\n", err)
		return 2
	}

	res := v.ValidateSet(set.Indicators, set.Areas)
	if jsonOutput {
		printJSON(stdout, map[string]any{
			"file":       path,
			"valid":      res.OK(),
			"indicators": len(set.Indicators),
			"issues":     res.Issues,
		})
		if !res.OK() {
			return 1
		}
		return 0
	}

	if res.OK() {
		fmt.Fprintf(stdout, "%s %d indicator(s) publishable\n",
			passColor.Sprint("VALID"), len(set.Indicators))
		return 0
	}

	table := tablewriter.NewWriter(stdout)
	table.Header([]string{"Indicator", "Issue"})
	for _, issue := range res.Issues {
		code := issue.IndicatorCode
		if code == "" {
			code = "(set)"
		}
		_ = table.Append([]string{code, issue.Message})
	}
	_ = table.Render()
	fmt.Fprintf(stdout, "%s %d issue(s) block publication\n",
		failColor.Sprint("INVALID"), len(res.Issues))
	return 1
}
