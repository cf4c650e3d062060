package rules

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/siglalabs/sigla/pkg/fault"
)

// Evaluator executes calculation schemas. It is stateless and safe for
// concurrent use.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger.With("component", "rule_evaluator")}
}

// Execute walks the schema against the response data and returns a verdict.
//
// A nil schema yields FAIL, the fail-safe default for indicators published
// without rules. Missing or non-coercible fields make the referencing rule
// false; they never abort evaluation. The only returned error is a schema
// fault for a rule kind the engine does not know, which indicates an
// authoring bug rather than bad submission data.
func (e *Evaluator) Execute(schema *CalculationSchema, data ResponseData, statuses FunctionalityStatuses) (Verdict, error) {
	if schema == nil {
		return VerdictFail, nil
	}

	holds := true
	for _, group := range schema.ConditionGroups {
		ok, err := e.evalGroup(group, data, statuses)
		if err != nil {
			return "", err
		}
		if !ok {
			holds = false
			break
		}
	}

	if holds {
		return verdictOr(schema.OutputStatusOnPass, VerdictPass), nil
	}
	return verdictOr(schema.OutputStatusOnFail, VerdictFail), nil
}

func verdictOr(v, fallback Verdict) Verdict {
	if ValidVerdict(v) {
		return v
	}
	return fallback
}

func (e *Evaluator) evalGroup(group ConditionGroup, data ResponseData, statuses FunctionalityStatuses) (bool, error) {
	results := make([]bool, 0, len(group.Rules))
	for _, rule := range group.Rules {
		ok, err := e.evalRule(rule, data, statuses)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	return combine(group.Operator, results)
}

func combine(op GroupOperator, results []bool) (bool, error) {
	switch op {
	case GroupAnd, "":
		for _, r := range results {
			if !r {
				return false, nil
			}
		}
		return true, nil
	case GroupOr:
		for _, r := range results {
			if r {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fault.Schemaf("unknown group operator %q", op)
}

func (e *Evaluator) evalRule(rule Rule, data ResponseData, statuses FunctionalityStatuses) (bool, error) {
	switch r := rule.(type) {
	case *AndAllRule:
		for _, c := range r.Conditions {
			ok, err := e.evalRule(c, data, statuses)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case *OrAnyRule:
		for _, c := range r.Conditions {
			ok, err := e.evalRule(c, data, statuses)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case *PercentageThresholdRule:
		return e.evalThreshold(r.Field, r.Operator, r.Threshold, data), nil

	case *CountThresholdRule:
		return e.evalThreshold(r.Field, r.Operator, r.Threshold, data), nil

	case *MatchValueRule:
		return e.evalMatch(r, data), nil

	case *BBIFunctionalityCheckRule:
		status, ok := statuses[r.EntityID]
		if !ok {
			return false, nil
		}
		return status == r.ExpectedStatus, nil

	case nil:
		return false, fault.Schemaf("nil rule in condition group")
	}
	return false, fault.Schemaf("unsupported rule kind %q", rule.RuleType())
}

// evalThreshold is fail-closed: a field that is absent or does not coerce to
// a number makes the rule false instead of raising.
func (e *Evaluator) evalThreshold(field string, op CompareOp, threshold float64, data ResponseData) bool {
	raw, ok := data[field]
	if !ok {
		return false
	}
	v, ok := toNumber(raw)
	if !ok {
		e.logger.Debug("threshold field not numeric", "field", field)
		return false
	}
	return compareNumbers(op, v, threshold)
}

func compareNumbers(op CompareOp, v, threshold float64) bool {
	switch op {
	case CompareGTE:
		return v >= threshold
	case CompareGT:
		return v > threshold
	case CompareLTE:
		return v <= threshold
	case CompareLT:
		return v < threshold
	case CompareEQ:
		return v == threshold
	case CompareNEQ:
		return v != threshold
	}
	return false
}

// toNumber coerces the usual JSON numeric shapes plus numeric strings.
// Booleans deliberately do not coerce.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// evalMatch handles ==, !=, contains, not_contains over strings and lists.
// A missing field is false for every operator, including the negated ones.
func (e *Evaluator) evalMatch(r *MatchValueRule, data ResponseData) bool {
	raw, ok := data[r.Field]
	if !ok {
		return false
	}

	switch r.Operator {
	case MatchEqual:
		return looseEqual(raw, r.Value)
	case MatchNotEqual:
		return !looseEqual(raw, r.Value)
	case MatchContains:
		return containsValue(raw, r.Value)
	case MatchNotContains:
		return !containsValue(raw, r.Value)
	}
	e.logger.Debug("unknown match operator", "operator", string(r.Operator), "field", r.Field)
	return false
}

// looseEqual compares scalars with numeric awareness so a submitted "5"
// equals an authored 5.
func looseEqual(a, b any) bool {
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return false
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		if s, ok := needle.(string); ok {
			return strings.Contains(h, s)
		}
		return false
	case []any:
		for _, el := range h {
			if looseEqual(el, needle) {
				return true
			}
		}
		return false
	case []string:
		if s, ok := needle.(string); ok {
			for _, el := range h {
				if el == s {
					return true
				}
			}
		}
		return false
	}
	return false
}
