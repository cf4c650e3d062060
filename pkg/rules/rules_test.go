package rules

import (
	"encoding/json"
	"testing"

	"github.com/siglalabs/sigla/pkg/fault"
)

const wireSchema = `{
	"condition_groups": [
		{
			"operator": "AND",
			"rules": [
				{"rule_type": "PERCENTAGE_THRESHOLD", "field": "pct_utilized", "operator": ">=", "threshold": 50},
				{"rule_type": "OR_ANY", "conditions": [
					{"rule_type": "MATCH_VALUE", "field": "status", "operator": "==", "value": "active"},
					{"rule_type": "COUNT_THRESHOLD", "field": "sessions", "operator": ">", "threshold": 4}
				]}
			]
		},
		{
			"operator": "OR",
			"rules": [
				{"rule_type": "BBI_FUNCTIONALITY_CHECK", "entity_id": "bdrrmc", "expected_status": "functional"}
			]
		}
	],
	"output_status_on_pass": "PASS",
	"output_status_on_fail": "CONDITIONAL"
}`

func TestParseCalculationSchema(t *testing.T) {
	schema, err := ParseCalculationSchema([]byte(wireSchema))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(schema.ConditionGroups) != 2 {
		t.Fatalf("groups = %d, want 2", len(schema.ConditionGroups))
	}
	if schema.ConditionGroups[0].Operator != GroupAnd {
		t.Fatalf("group 0 operator = %s", schema.ConditionGroups[0].Operator)
	}
	if schema.OutputStatusOnFail != VerdictConditional {
		t.Fatalf("output_status_on_fail = %s", schema.OutputStatusOnFail)
	}

	or, ok := schema.ConditionGroups[0].Rules[1].(*OrAnyRule)
	if !ok {
		t.Fatalf("rule 1 decoded as %T, want *OrAnyRule", schema.ConditionGroups[0].Rules[1])
	}
	if len(or.Conditions) != 2 {
		t.Fatalf("nested conditions = %d, want 2", len(or.Conditions))
	}
	if _, ok := or.Conditions[1].(*CountThresholdRule); !ok {
		t.Fatalf("nested rule 1 decoded as %T", or.Conditions[1])
	}
}

func TestParseUnknownRuleType(t *testing.T) {
	raw := `{"condition_groups":[{"operator":"AND","rules":[{"rule_type":"FUZZY_MATCH","field":"x"}]}]}`
	_, err := ParseCalculationSchema([]byte(raw))
	if err == nil {
		t.Fatal("expected schema error for unknown rule_type")
	}
	if !fault.IsSchema(err) {
		t.Fatalf("error kind = %v, want schema", err)
	}
}

func TestParseMissingRuleType(t *testing.T) {
	raw := `{"condition_groups":[{"operator":"AND","rules":[{"field":"x","operator":">=","threshold":1}]}]}`
	_, err := ParseCalculationSchema([]byte(raw))
	if err == nil || !fault.IsSchema(err) {
		t.Fatalf("expected schema fault, got %v", err)
	}
}

func TestRuleRoundTrip(t *testing.T) {
	schema, err := ParseCalculationSchema([]byte(wireSchema))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	out, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := ParseCalculationSchema(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(again.ConditionGroups) != len(schema.ConditionGroups) {
		t.Fatal("round trip lost groups")
	}

	e := NewEvaluator(nil)
	data := ResponseData{"pct_utilized": 60, "status": "active"}
	statuses := FunctionalityStatuses{"bdrrmc": "functional"}

	v1, err := e.Execute(schema, data, statuses)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := e.Execute(again, data, statuses)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Fatalf("round-tripped schema changed verdict: %s vs %s", v1, v2)
	}
}

func TestFieldRefs(t *testing.T) {
	schema, err := ParseCalculationSchema([]byte(wireSchema))
	if err != nil {
		t.Fatal(err)
	}
	refs := schema.FieldRefs()
	want := map[string]bool{"pct_utilized": true, "status": true, "sessions": true}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v", refs)
	}
	for _, r := range refs {
		if !want[r] {
			t.Fatalf("unexpected field ref %q", r)
		}
	}
}

func TestDecodeRuleEmptyObject(t *testing.T) {
	if _, err := DecodeRule(json.RawMessage(`{}`)); err == nil {
		t.Fatal("empty rule object must be rejected")
	}
}
