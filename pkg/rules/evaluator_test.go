package rules

import (
	"testing"

	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pct(field string, op CompareOp, threshold float64) Rule {
	return &PercentageThresholdRule{Field: field, Operator: op, Threshold: threshold}
}

func count(field string, op CompareOp, threshold float64) Rule {
	return &CountThresholdRule{Field: field, Operator: op, Threshold: threshold}
}

func match(field string, op MatchOp, value any) Rule {
	return &MatchValueRule{Field: field, Operator: op, Value: value}
}

func schemaOf(groups ...ConditionGroup) *CalculationSchema {
	return &CalculationSchema{ConditionGroups: groups}
}

func TestExecuteNilSchemaFails(t *testing.T) {
	e := NewEvaluator(nil)
	verdict, err := e.Execute(nil, ResponseData{"x": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, verdict)
}

func TestExecuteEmptySchemaPasses(t *testing.T) {
	e := NewEvaluator(nil)
	verdict, err := e.Execute(&CalculationSchema{}, ResponseData{}, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, verdict)
}

func TestExecuteThresholds(t *testing.T) {
	e := NewEvaluator(nil)

	cases := []struct {
		name string
		rule Rule
		data ResponseData
		want Verdict
	}{
		{"gte passes at boundary", pct("pct_utilized", CompareGTE, 50), ResponseData{"pct_utilized": 50.0}, VerdictPass},
		{"gte fails below", pct("pct_utilized", CompareGTE, 50), ResponseData{"pct_utilized": 49.9}, VerdictFail},
		{"gt strict", count("sessions", CompareGT, 4), ResponseData{"sessions": 4}, VerdictFail},
		{"lt passes", count("findings", CompareLT, 3), ResponseData{"findings": 2}, VerdictPass},
		{"lte boundary", count("findings", CompareLTE, 3), ResponseData{"findings": 3}, VerdictPass},
		{"eq numeric string", count("meetings", CompareEQ, 12), ResponseData{"meetings": "12"}, VerdictPass},
		{"neq", count("meetings", CompareNEQ, 12), ResponseData{"meetings": 11}, VerdictPass},
		{"missing field is false", pct("pct_utilized", CompareGTE, 50), ResponseData{}, VerdictFail},
		{"non numeric is false", pct("pct_utilized", CompareGTE, 50), ResponseData{"pct_utilized": "n/a"}, VerdictFail},
		{"bool does not coerce", pct("pct_utilized", CompareGTE, 0), ResponseData{"pct_utilized": true}, VerdictFail},
		{"numeric string with spaces", pct("pct_utilized", CompareGTE, 50), ResponseData{"pct_utilized": " 75.5 "}, VerdictPass},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schema := schemaOf(ConditionGroup{Operator: GroupAnd, Rules: []Rule{tc.rule}})
			verdict, err := e.Execute(schema, tc.data, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, verdict)
		})
	}
}

func TestExecuteMatchValue(t *testing.T) {
	e := NewEvaluator(nil)

	cases := []struct {
		name string
		rule Rule
		data ResponseData
		want Verdict
	}{
		{"string equal", match("status", MatchEqual, "organized"), ResponseData{"status": "organized"}, VerdictPass},
		{"string not equal", match("status", MatchNotEqual, "organized"), ResponseData{"status": "dissolved"}, VerdictPass},
		{"numeric equal across types", match("tally", MatchEqual, 5), ResponseData{"tally": 5.0}, VerdictPass},
		{"bool equal", match("posted", MatchEqual, true), ResponseData{"posted": true}, VerdictPass},
		{"substring contains", match("title", MatchContains, "ordinance"), ResponseData{"title": "barangay ordinance 12-b"}, VerdictPass},
		{"list contains", match("docs", MatchContains, "budget"), ResponseData{"docs": []any{"budget", "aip"}}, VerdictPass},
		{"list not contains", match("docs", MatchNotContains, "budget"), ResponseData{"docs": []any{"aip"}}, VerdictPass},
		{"missing field fails equal", match("status", MatchEqual, "organized"), ResponseData{}, VerdictFail},
		{"missing field fails not_equal", match("status", MatchNotEqual, "organized"), ResponseData{}, VerdictFail},
		{"missing field fails not_contains", match("docs", MatchNotContains, "budget"), ResponseData{}, VerdictFail},
		{"type mismatch fails", match("status", MatchEqual, "5"), ResponseData{"status": []any{"5"}}, VerdictFail},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schema := schemaOf(ConditionGroup{Operator: GroupAnd, Rules: []Rule{tc.rule}})
			verdict, err := e.Execute(schema, tc.data, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, verdict)
		})
	}
}

func TestExecuteBBIFunctionality(t *testing.T) {
	e := NewEvaluator(nil)
	schema := schemaOf(ConditionGroup{
		Operator: GroupAnd,
		Rules:    []Rule{&BBIFunctionalityCheckRule{EntityID: "badac", ExpectedStatus: "functional"}},
	})

	verdict, err := e.Execute(schema, nil, FunctionalityStatuses{"badac": "functional"})
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, verdict)

	verdict, err = e.Execute(schema, nil, FunctionalityStatuses{"badac": "non_functional"})
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, verdict)

	verdict, err = e.Execute(schema, nil, FunctionalityStatuses{})
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, verdict, "missing entity id must fail closed")
}

func TestExecuteGroupOperators(t *testing.T) {
	e := NewEvaluator(nil)
	data := ResponseData{"a": 10, "b": 0}

	passing := pct("a", CompareGTE, 5)
	failing := pct("b", CompareGTE, 5)

	orGroup := ConditionGroup{Operator: GroupOr, Rules: []Rule{failing, passing}}
	verdict, err := e.Execute(schemaOf(orGroup), data, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, verdict)

	andGroup := ConditionGroup{Operator: GroupAnd, Rules: []Rule{failing, passing}}
	verdict, err = e.Execute(schemaOf(andGroup), data, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, verdict)

	// groups are implicitly AND-ed: one failing group sinks the schema
	verdict, err = e.Execute(schemaOf(orGroup, andGroup), data, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, verdict)
}

func TestExecuteNestedRules(t *testing.T) {
	e := NewEvaluator(nil)

	schema := schemaOf(ConditionGroup{
		Operator: GroupAnd,
		Rules: []Rule{
			&OrAnyRule{Conditions: []Rule{
				match("plan_status", MatchEqual, "approved"),
				&AndAllRule{Conditions: []Rule{
					pct("pct_allocated", CompareGTE, 50),
					count("trainings", CompareGTE, 2),
				}},
			}},
		},
	})

	// inner AND_ALL satisfied, outer OR passes
	verdict, err := e.Execute(schema, ResponseData{"pct_allocated": 60, "trainings": 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, verdict)

	// neither branch holds
	verdict, err = e.Execute(schema, ResponseData{"pct_allocated": 60, "trainings": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, verdict)
}

func TestExecuteCustomOutputStatuses(t *testing.T) {
	e := NewEvaluator(nil)
	schema := &CalculationSchema{
		ConditionGroups:    []ConditionGroup{{Operator: GroupAnd, Rules: []Rule{pct("pct", CompareGTE, 50)}}},
		OutputStatusOnPass: VerdictPass,
		OutputStatusOnFail: VerdictConditional,
	}

	verdict, err := e.Execute(schema, ResponseData{"pct": 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictConditional, verdict)
}

func TestExecuteUnknownRuleKind(t *testing.T) {
	e := NewEvaluator(nil)
	schema := schemaOf(ConditionGroup{Operator: GroupAnd, Rules: []Rule{nil}})

	_, err := e.Execute(schema, ResponseData{}, nil)
	require.Error(t, err)
	assert.True(t, fault.IsSchema(err))
}

func TestExecuteUnknownGroupOperator(t *testing.T) {
	e := NewEvaluator(nil)
	schema := schemaOf(ConditionGroup{Operator: "XOR", Rules: []Rule{pct("a", CompareGTE, 1)}})

	_, err := e.Execute(schema, ResponseData{"a": 2}, nil)
	require.Error(t, err)
	assert.True(t, fault.IsSchema(err))
}

func TestExecuteDeterministic(t *testing.T) {
	e := NewEvaluator(nil)
	schema := schemaOf(
		ConditionGroup{Operator: GroupOr, Rules: []Rule{
			pct("pct_utilized", CompareGTE, 80),
			count("projects", CompareGTE, 3),
		}},
		ConditionGroup{Operator: GroupAnd, Rules: []Rule{
			match("posted", MatchEqual, true),
		}},
	)
	data := ResponseData{"pct_utilized": 85.5, "projects": 1, "posted": true}

	first, err := e.Execute(schema, data, nil)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		v, err := e.Execute(schema, data, nil)
		require.NoError(t, err)
		require.Equal(t, first, v)
	}
}
