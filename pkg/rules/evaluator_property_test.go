//go:build property
// +build property

// Package rules_test contains property-based tests for rule evaluation
// determinism and fail-closed behavior.
package rules_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/siglalabs/sigla/pkg/rules"
)

// TestEvaluatorDeterminism verifies identical inputs always yield the same
// verdict. Property: Execute(S, D) == Execute(S, D) for any S, D.
func TestEvaluatorDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := rules.NewEvaluator(nil)

	properties.Property("threshold evaluation is deterministic", prop.ForAll(
		func(field string, threshold float64, value float64, useOr bool) bool {
			op := rules.GroupAnd
			if useOr {
				op = rules.GroupOr
			}
			schema := &rules.CalculationSchema{
				ConditionGroups: []rules.ConditionGroup{{
					Operator: op,
					Rules: []rules.Rule{
						&rules.PercentageThresholdRule{Field: field, Operator: rules.CompareGTE, Threshold: threshold},
						&rules.CountThresholdRule{Field: field, Operator: rules.CompareLT, Threshold: threshold},
					},
				}},
			}
			data := rules.ResponseData{field: value}

			v1, err1 := e.Execute(schema, data, nil)
			v2, err2 := e.Execute(schema, data, nil)
			if err1 != nil || err2 != nil {
				return false
			}
			return v1 == v2
		},
		gen.AlphaString(),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestAbsentFieldNeverRaises verifies threshold rules over fields absent from
// the data evaluate false without an error, whatever the operator.
func TestAbsentFieldNeverRaises(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := rules.NewEvaluator(nil)
	ops := []rules.CompareOp{
		rules.CompareGTE, rules.CompareGT, rules.CompareLTE,
		rules.CompareLT, rules.CompareEQ, rules.CompareNEQ,
	}

	properties.Property("absent field evaluates false, never raises", prop.ForAll(
		func(field string, threshold float64, opIdx int, presentField string, presentValue string) bool {
			if field == "" {
				return true
			}
			data := rules.ResponseData{}
			if presentField != field {
				data[presentField] = presentValue
			}
			schema := &rules.CalculationSchema{
				ConditionGroups: []rules.ConditionGroup{{
					Operator: rules.GroupAnd,
					Rules: []rules.Rule{
						&rules.PercentageThresholdRule{Field: field, Operator: ops[opIdx%len(ops)], Threshold: threshold},
					},
				}},
			}

			verdict, err := e.Execute(schema, data, nil)
			return err == nil && verdict == rules.VerdictFail
		},
		gen.AlphaString(),
		gen.Float64Range(-1e6, 1e6),
		gen.IntRange(0, 5),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
