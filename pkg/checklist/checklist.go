// Package checklist evaluates Means-of-Verification checklists against
// submitted values.
//
// The checklist layer speaks a five-state evidentiary vocabulary (passed,
// considered, failed, not_applicable, pending). It is deliberately separate
// from the rule engine's three-state compliance verdict; the system never
// maps one onto the other.
package checklist

import (
	"strings"
)

// Status is the evidentiary outcome of one checklist item or of a whole
// checklist. Pending means "not yet answered", which is distinct from Failed
// ("answered wrong").
type Status string

const (
	StatusPassed        Status = "passed"
	StatusConsidered    Status = "considered"
	StatusFailed        Status = "failed"
	StatusNotApplicable Status = "not_applicable"
	StatusPending       Status = "pending"
)

// Mode selects how data-shape problems are scored. Strict fails them;
// lenient downgrades them to Considered. Threshold and deadline algebra is
// identical in both modes.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeLenient Mode = "lenient"
)

// ItemKind discriminates the checklist item union.
type ItemKind string

const (
	KindCheckbox   ItemKind = "checkbox"
	KindGroup      ItemKind = "group"
	KindCurrency   ItemKind = "currency_input"
	KindNumber     ItemKind = "number_input"
	KindText       ItemKind = "text_input"
	KindDate       ItemKind = "date_input"
	KindAssessment ItemKind = "assessment"
	KindRadio      ItemKind = "radio_group"
	KindDropdown   ItemKind = "dropdown"
)

// KnownKind reports whether k is part of the closed item vocabulary.
func KnownKind(k ItemKind) bool {
	switch k {
	case KindCheckbox, KindGroup, KindCurrency, KindNumber, KindText,
		KindDate, KindAssessment, KindRadio, KindDropdown:
		return true
	}
	return false
}

// GroupLogic combines a group's children.
type GroupLogic string

const (
	LogicAnd GroupLogic = "AND"
	LogicOr  GroupLogic = "OR"
)

// ConditionOperator is the comparison vocabulary for display conditions.
type ConditionOperator string

const (
	CondEqual       ConditionOperator = "=="
	CondNotEqual    ConditionOperator = "!="
	CondContains    ConditionOperator = "contains"
	CondNotContains ConditionOperator = "not_contains"
)

// Condition gates an item on another submitted field. A condition whose
// controlling field is absent evaluates false, so the item is hidden rather
// than scored.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

// Item is one checklist entry. Kind decides which constraint fields apply;
// publication-time validation rejects constraints that do not belong to the
// kind.
type Item struct {
	ID               string     `json:"id"`
	Label            string     `json:"label"`
	Kind             ItemKind   `json:"item_type"`
	Required         bool       `json:"required"`
	DisplayCondition *Condition `json:"display_condition,omitempty"`

	// numeric constraints (currency_input, number_input)
	Threshold *float64 `json:"threshold,omitempty"`
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`

	// date constraints (date_input)
	MaxDate         string `json:"max_date,omitempty"`
	GraceEnabled    bool   `json:"grace_period_enabled,omitempty"`
	GracePeriodDays int    `json:"grace_period_days,omitempty"`

	// text constraints (text_input)
	Pattern string `json:"pattern,omitempty"`

	// option constraints (radio_group, dropdown)
	Options        []string `json:"options,omitempty"`
	PassingOptions []string `json:"passing_options,omitempty"`
	MultiSelect    bool     `json:"multi_select,omitempty"`
	MinSelections  int      `json:"min_selections,omitempty"`

	// group constraints
	Logic       GroupLogic `json:"logic,omitempty"`
	MinRequired int        `json:"min_required,omitempty"`
	Children    []Item     `json:"children,omitempty"`
}

// Config is an ordered checklist plus the validation mode.
type Config struct {
	Items          []Item `json:"items"`
	ValidationMode Mode   `json:"validation_mode,omitempty"`
}

// ItemResult carries the scored status of one item, with children for groups.
type ItemResult struct {
	ItemID   string       `json:"item_id"`
	Label    string       `json:"label,omitempty"`
	Kind     ItemKind     `json:"item_type"`
	Status   Status       `json:"status"`
	Reason   string       `json:"reason,omitempty"`
	Children []ItemResult `json:"children,omitempty"`
}

// ItemError records a data-shape problem found while scoring: a non-numeric
// amount, an option outside the configured set, an unparseable date. These
// are resolved fail-closed into the item's status and reported here, never
// raised.
type ItemError struct {
	ItemID  string `json:"item_id"`
	Label   string `json:"label,omitempty"`
	Message string `json:"message"`
}

// Result is the validation outcome for a whole checklist.
type Result struct {
	Overall Status       `json:"overall"`
	Items   []ItemResult `json:"items"`
	Errors  []ItemError  `json:"errors,omitempty"`
}

// Answered reports whether a submitted value counts as an answer. Zero and
// false are answers; nil, empty or whitespace-only strings, and empty
// collections are not. The completeness checker shares this predicate so
// "filled" means the same thing in both layers.
func Answered(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// EvalCondition evaluates a display condition against submitted data.
func EvalCondition(c *Condition, data map[string]any) bool {
	if c == nil {
		return true
	}
	raw, ok := data[c.Field]
	if !ok {
		return false
	}
	switch c.Operator {
	case CondEqual:
		return condEqual(raw, c.Value)
	case CondNotEqual:
		return !condEqual(raw, c.Value)
	case CondContains:
		return condContains(raw, c.Value)
	case CondNotContains:
		return !condContains(raw, c.Value)
	}
	return false
}

func condEqual(a, b any) bool {
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	return aok && bok && as == bs
}

func condContains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []any:
		for _, el := range h {
			if condEqual(el, needle) {
				return true
			}
		}
	case []string:
		if s, ok := needle.(string); ok {
			for _, el := range h {
				if el == s {
					return true
				}
			}
		}
	}
	return false
}
