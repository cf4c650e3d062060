// Package rules implements the calculation-schema rule engine that turns
// submitted response data into a compliance verdict.
//
// A CalculationSchema is an ordered list of condition groups. Groups are
// implicitly AND-ed; inside a group the operator decides whether all rules or
// at least one must hold. The rule vocabulary is a small closed union, not a
// general expression language.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/siglalabs/sigla/pkg/fault"
)

// Verdict is the three-state compliance outcome of the rule engine. It is a
// separate vocabulary from the checklist evidentiary statuses and the two are
// never mapped onto each other.
type Verdict string

const (
	VerdictPass        Verdict = "PASS"
	VerdictFail        Verdict = "FAIL"
	VerdictConditional Verdict = "CONDITIONAL"
)

// ValidVerdict reports whether v is one of the three known verdict labels.
func ValidVerdict(v Verdict) bool {
	switch v {
	case VerdictPass, VerdictFail, VerdictConditional:
		return true
	}
	return false
}

// GroupOperator combines the rules inside one condition group.
type GroupOperator string

const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
)

// CompareOp is the comparison used by threshold rules.
type CompareOp string

const (
	CompareGTE CompareOp = ">="
	CompareGT  CompareOp = ">"
	CompareLTE CompareOp = "<="
	CompareLT  CompareOp = "<"
	CompareEQ  CompareOp = "=="
	CompareNEQ CompareOp = "!="
)

// MatchOp is the comparison used by match-value rules.
type MatchOp string

const (
	MatchEqual       MatchOp = "=="
	MatchNotEqual    MatchOp = "!="
	MatchContains    MatchOp = "contains"
	MatchNotContains MatchOp = "not_contains"
)

// Wire discriminator values for the rule union.
const (
	RuleTypeAndAll        = "AND_ALL"
	RuleTypeOrAny         = "OR_ANY"
	RuleTypePercentage    = "PERCENTAGE_THRESHOLD"
	RuleTypeCount         = "COUNT_THRESHOLD"
	RuleTypeMatchValue    = "MATCH_VALUE"
	RuleTypeBBIFunctional = "BBI_FUNCTIONALITY_CHECK"
)

// ResponseData maps field ids to the dynamically typed values a BLGU submitted.
type ResponseData map[string]any

// FunctionalityStatuses is the externally supplied BBI status map keyed by
// entity id, consulted by BBI_FUNCTIONALITY_CHECK rules.
type FunctionalityStatuses map[string]string

// Rule is the closed union of rule kinds. Only types in this package satisfy
// it; the evaluator dispatches on the concrete type exhaustively.
type Rule interface {
	RuleType() string
	isRule()
}

// AndAllRule holds when every nested condition holds.
type AndAllRule struct {
	Conditions []Rule `json:"conditions"`
}

// OrAnyRule holds when at least one nested condition holds.
type OrAnyRule struct {
	Conditions []Rule `json:"conditions"`
}

// PercentageThresholdRule compares a numeric field against a threshold,
// typically a utilization or allocation percentage.
type PercentageThresholdRule struct {
	Field     string    `json:"field"`
	Operator  CompareOp `json:"operator"`
	Threshold float64   `json:"threshold"`
}

// CountThresholdRule compares a numeric field against a threshold count.
type CountThresholdRule struct {
	Field     string    `json:"field"`
	Operator  CompareOp `json:"operator"`
	Threshold float64   `json:"threshold"`
}

// MatchValueRule compares a field against an expected value. Equality works on
// scalars; contains works on strings (substring) and lists (membership).
type MatchValueRule struct {
	Field    string  `json:"field"`
	Operator MatchOp `json:"operator"`
	Value    any     `json:"value"`
}

// BBIFunctionalityCheckRule consults the auxiliary functionality-status map
// for a barangay-based institution.
type BBIFunctionalityCheckRule struct {
	EntityID       string `json:"entity_id"`
	ExpectedStatus string `json:"expected_status"`
}

func (*AndAllRule) RuleType() string                { return RuleTypeAndAll }
func (*OrAnyRule) RuleType() string                 { return RuleTypeOrAny }
func (*PercentageThresholdRule) RuleType() string   { return RuleTypePercentage }
func (*CountThresholdRule) RuleType() string        { return RuleTypeCount }
func (*MatchValueRule) RuleType() string            { return RuleTypeMatchValue }
func (*BBIFunctionalityCheckRule) RuleType() string { return RuleTypeBBIFunctional }

func (*AndAllRule) isRule()                {}
func (*OrAnyRule) isRule()                 {}
func (*PercentageThresholdRule) isRule()   {}
func (*CountThresholdRule) isRule()        {}
func (*MatchValueRule) isRule()            {}
func (*BBIFunctionalityCheckRule) isRule() {}

// ConditionGroup is one group of rules combined by Operator.
type ConditionGroup struct {
	Operator GroupOperator `json:"operator"`
	Rules    []Rule        `json:"rules"`
}

// CalculationSchema is the authored rule document attached to an indicator.
type CalculationSchema struct {
	ConditionGroups    []ConditionGroup `json:"condition_groups"`
	OutputStatusOnPass Verdict          `json:"output_status_on_pass,omitempty"`
	OutputStatusOnFail Verdict          `json:"output_status_on_fail,omitempty"`
}

// ParseCalculationSchema decodes a wire-format schema document. Any shape
// problem, including an unknown rule_type, is a schema fault.
func ParseCalculationSchema(raw []byte) (*CalculationSchema, error) {
	var schema CalculationSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, fault.Schemaf("malformed calculation schema").WithCause(err)
	}
	return &schema, nil
}

// DecodeRule decodes one wire rule keyed by rule_type.
func DecodeRule(raw json.RawMessage) (Rule, error) {
	var probe struct {
		RuleType string `json:"rule_type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fault.Schemaf("malformed rule").WithCause(err)
	}

	switch probe.RuleType {
	case RuleTypeAndAll, RuleTypeOrAny:
		var head struct {
			Conditions []json.RawMessage `json:"conditions"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fault.Schemaf("malformed %s rule", probe.RuleType).WithCause(err)
		}
		nested := make([]Rule, 0, len(head.Conditions))
		for _, c := range head.Conditions {
			r, err := DecodeRule(c)
			if err != nil {
				return nil, err
			}
			nested = append(nested, r)
		}
		if probe.RuleType == RuleTypeAndAll {
			return &AndAllRule{Conditions: nested}, nil
		}
		return &OrAnyRule{Conditions: nested}, nil

	case RuleTypePercentage:
		var r PercentageThresholdRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fault.Schemaf("malformed %s rule", probe.RuleType).WithCause(err)
		}
		return &r, nil

	case RuleTypeCount:
		var r CountThresholdRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fault.Schemaf("malformed %s rule", probe.RuleType).WithCause(err)
		}
		return &r, nil

	case RuleTypeMatchValue:
		var r MatchValueRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fault.Schemaf("malformed %s rule", probe.RuleType).WithCause(err)
		}
		return &r, nil

	case RuleTypeBBIFunctional:
		var r BBIFunctionalityCheckRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fault.Schemaf("malformed %s rule", probe.RuleType).WithCause(err)
		}
		return &r, nil

	case "":
		return nil, fault.Schemaf("rule missing rule_type")
	default:
		return nil, fault.Schemaf("unknown rule_type %q", probe.RuleType)
	}
}

// UnmarshalJSON decodes the group's rules through the union decoder.
func (g *ConditionGroup) UnmarshalJSON(data []byte) error {
	var head struct {
		Operator GroupOperator     `json:"operator"`
		Rules    []json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fault.Schemaf("malformed condition group").WithCause(err)
	}
	g.Operator = head.Operator
	g.Rules = make([]Rule, 0, len(head.Rules))
	for _, raw := range head.Rules {
		r, err := DecodeRule(raw)
		if err != nil {
			return err
		}
		g.Rules = append(g.Rules, r)
	}
	return nil
}

type taggedRule struct {
	RuleType string `json:"rule_type"`
}

func marshalTagged(ruleType string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(taggedRule{RuleType: ruleType})
	if err != nil {
		return nil, err
	}
	if string(raw) == "{}" {
		return tag, nil
	}
	// splice the discriminator into the object
	return append(append(tag[:len(tag)-1], ','), raw[1:]...), nil
}

func (r *AndAllRule) MarshalJSON() ([]byte, error) {
	type alias AndAllRule
	return marshalTagged(RuleTypeAndAll, (*alias)(r))
}

func (r *OrAnyRule) MarshalJSON() ([]byte, error) {
	type alias OrAnyRule
	return marshalTagged(RuleTypeOrAny, (*alias)(r))
}

func (r *PercentageThresholdRule) MarshalJSON() ([]byte, error) {
	type alias PercentageThresholdRule
	return marshalTagged(RuleTypePercentage, (*alias)(r))
}

func (r *CountThresholdRule) MarshalJSON() ([]byte, error) {
	type alias CountThresholdRule
	return marshalTagged(RuleTypeCount, (*alias)(r))
}

func (r *MatchValueRule) MarshalJSON() ([]byte, error) {
	type alias MatchValueRule
	return marshalTagged(RuleTypeMatchValue, (*alias)(r))
}

func (r *BBIFunctionalityCheckRule) MarshalJSON() ([]byte, error) {
	type alias BBIFunctionalityCheckRule
	return marshalTagged(RuleTypeBBIFunctional, (*alias)(r))
}

// FieldRefs returns every field id the schema references, for dangling-ref
// validation at publish time.
func (s *CalculationSchema) FieldRefs() []string {
	seen := map[string]bool{}
	var out []string
	var walk func(r Rule)
	walk = func(r Rule) {
		switch v := r.(type) {
		case *AndAllRule:
			for _, c := range v.Conditions {
				walk(c)
			}
		case *OrAnyRule:
			for _, c := range v.Conditions {
				walk(c)
			}
		case *PercentageThresholdRule:
			if !seen[v.Field] {
				seen[v.Field] = true
				out = append(out, v.Field)
			}
		case *CountThresholdRule:
			if !seen[v.Field] {
				seen[v.Field] = true
				out = append(out, v.Field)
			}
		case *MatchValueRule:
			if !seen[v.Field] {
				seen[v.Field] = true
				out = append(out, v.Field)
			}
		}
	}
	for _, g := range s.ConditionGroups {
		for _, r := range g.Rules {
			walk(r)
		}
	}
	return out
}

func (s *CalculationSchema) String() string {
	return fmt.Sprintf("calculation_schema{groups: %d}", len(s.ConditionGroups))
}
