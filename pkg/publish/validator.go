// Package publish validates authored indicator content before it goes live.
//
// Everything here happens at publication time. A schema that gets past this
// gate must never raise at evaluation time; the evaluator's only remaining
// error path is an unknown rule kind, which this gate is specifically built
// to stop.
package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/siglalabs/sigla/pkg/checklist"
	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/indicator"
	"github.com/siglalabs/sigla/pkg/rules"
)

// WeightTolerance is how far a sibling weight sum may drift from 100 percent.
const WeightTolerance = 0.1

// Issue is one publication-blocking problem, anchored to the indicator it
// was found on (empty for set-level problems such as cycles).
type Issue struct {
	IndicatorID   string       `json:"indicator_id,omitempty"`
	IndicatorCode string       `json:"indicator_code,omitempty"`
	Err           *fault.Error `json:"-"`
	Message       string       `json:"message"`
}

// Result collects every issue found in one validation pass. Publication
// proceeds only when OK.
type Result struct {
	Issues []Issue `json:"issues,omitempty"`
}

func (r *Result) OK() bool { return len(r.Issues) == 0 }

// Err folds the issues into a single schema fault, nil when the set is clean.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, 0, len(r.Issues))
	for _, is := range r.Issues {
		msgs = append(msgs, is.Message)
	}
	return fault.Schemaf("%d publication issue(s): %s", len(r.Issues), strings.Join(msgs, "; "))
}

func (r *Result) add(ind *indicator.Indicator, err *fault.Error) {
	issue := Issue{Err: err, Message: err.Error()}
	if ind != nil {
		issue.IndicatorID = ind.ID
		issue.IndicatorCode = ind.Code
		issue.Message = fmt.Sprintf("indicator %s: %s", ind.Code, err.Error())
	}
	r.Issues = append(r.Issues, issue)
}

// Validator runs the pre-publication checks.
type Validator struct {
	calcSchema *jsonschema.Schema
	logger     *slog.Logger
}

// NewValidator compiles the embedded wire-format schema once.
func NewValidator(logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("calculation_schema.json", strings.NewReader(calculationSchemaJSON)); err != nil {
		return nil, fmt.Errorf("adding calculation schema resource: %w", err)
	}
	compiled, err := compiler.Compile("calculation_schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling calculation schema: %w", err)
	}
	return &Validator{calcSchema: compiled, logger: logger.With("component", "publish_validator")}, nil
}

// ValidateCalculationDocument checks a raw wire-format calculation schema
// against the structural contract and then decodes it through the rule
// union. Both passes must succeed.
func (v *Validator) ValidateCalculationDocument(raw []byte) (*rules.CalculationSchema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fault.Schemaf("calculation schema is not valid JSON").WithCause(err)
	}
	if err := v.calcSchema.Validate(doc); err != nil {
		return nil, fault.Schemaf("calculation schema violates the wire contract").WithCause(err)
	}
	return rules.ParseCalculationSchema(raw)
}

// ValidateSet runs every set-level and per-indicator check over the content
// about to be published. areas may be nil to skip area-reference checks.
func (v *Validator) ValidateSet(indicators []indicator.Indicator, areas []indicator.GovernanceArea) *Result {
	res := &Result{}

	byID := make(map[string]*indicator.Indicator, len(indicators))
	for i := range indicators {
		byID[indicators[i].ID] = &indicators[i]
	}

	v.checkDuplicateCodes(indicators, res)
	v.checkParentRefs(indicators, byID, res)
	v.checkCycles(indicators, byID, res)
	v.checkWeights(indicators, byID, areas, res)

	areaIDs := map[string]bool{}
	for _, a := range areas {
		areaIDs[a.ID] = true
	}

	for i := range indicators {
		ind := &indicators[i]
		if len(areas) > 0 && !areaIDs[ind.AreaID] {
			res.add(ind, fault.Schemaf("references unknown governance area %q", ind.AreaID))
		}
		v.checkIndicator(ind, res)
	}
	return res
}

func (v *Validator) checkDuplicateCodes(indicators []indicator.Indicator, res *Result) {
	seen := map[string]string{}
	for i := range indicators {
		ind := &indicators[i]
		if ind.Code == "" {
			res.add(ind, fault.Schemaf("indicator has no code"))
			continue
		}
		if firstID, dup := seen[ind.Code]; dup {
			res.add(ind, fault.Schemaf("duplicate indicator code %q (also on %s)", ind.Code, firstID))
			continue
		}
		seen[ind.Code] = ind.ID
	}
}

func (v *Validator) checkParentRefs(indicators []indicator.Indicator, byID map[string]*indicator.Indicator, res *Result) {
	for i := range indicators {
		ind := &indicators[i]
		if ind.ParentID == "" {
			continue
		}
		if ind.ParentID == ind.ID {
			res.add(ind, fault.Schemaf("indicator is its own parent"))
			continue
		}
		if _, ok := byID[ind.ParentID]; !ok {
			res.add(ind, fault.Schemaf("parent %q does not exist in the set", ind.ParentID))
		}
	}
}

func (v *Validator) checkCycles(indicators []indicator.Indicator, byID map[string]*indicator.Indicator, res *Result) {
	for i := range indicators {
		start := &indicators[i]
		visited := map[string]bool{start.ID: true}
		cur := start
		for cur.ParentID != "" {
			next, ok := byID[cur.ParentID]
			if !ok {
				break // dangling parent reported separately
			}
			if visited[next.ID] {
				res.add(start, fault.Schemaf("cyclic parent chain through %q", next.Code))
				break
			}
			visited[next.ID] = true
			cur = next
		}
	}
}

// checkWeights enforces that sibling weights under each parent sum to 100
// within tolerance. Root indicators are grouped per governance area, and the
// error names the parent group so the author knows where to look. Groups
// authored without weights (all zero) are exempt.
func (v *Validator) checkWeights(indicators []indicator.Indicator, byID map[string]*indicator.Indicator, areas []indicator.GovernanceArea, res *Result) {
	type group struct {
		name string
		sum  float64
		any  bool
	}
	groups := map[string]*group{}

	areaName := map[string]string{}
	for _, a := range areas {
		areaName[a.ID] = a.Code
	}

	for i := range indicators {
		ind := &indicators[i]
		var key, name string
		if ind.ParentID != "" {
			key = "parent:" + ind.ParentID
			name = ind.ParentID
			if p, ok := byID[ind.ParentID]; ok {
				name = p.Code
			}
		} else {
			key = "area:" + ind.AreaID
			name = ind.AreaID
			if code, ok := areaName[ind.AreaID]; ok {
				name = code
			}
		}
		g, ok := groups[key]
		if !ok {
			g = &group{name: name}
			groups[key] = g
		}
		g.sum += ind.Weight
		if ind.Weight != 0 {
			g.any = true
		}
	}

	for _, g := range groups {
		if !g.any {
			continue
		}
		if math.Abs(g.sum-100) > WeightTolerance {
			res.add(nil, fault.Schemaf("sibling weights under %q sum to %.2f, want 100 ± %.1f", g.name, g.sum, WeightTolerance))
		}
	}
}

func (v *Validator) checkIndicator(ind *indicator.Indicator, res *Result) {
	fieldIDs := map[string]bool{}
	for _, id := range ind.FormSchema.FieldIDs() {
		fieldIDs[id] = true
	}

	if ind.IsAutoCalculable && ind.CalculationSchema == nil {
		res.add(ind, fault.Schemaf("auto-calculable but has no calculation schema"))
	}

	if ind.CalculationSchema != nil {
		raw, err := json.Marshal(ind.CalculationSchema)
		if err == nil {
			if _, err := v.ValidateCalculationDocument(raw); err != nil {
				res.add(ind, fault.Schemaf("calculation schema rejected").WithCause(err))
			}
		}
		for _, ref := range ind.CalculationSchema.FieldRefs() {
			if !fieldIDs[ref] {
				res.add(ind, fault.Schemaf("calculation schema references unknown field %q", ref))
			}
		}
	}

	for verdict, template := range ind.RemarkSchema {
		if !rules.ValidVerdict(verdict) {
			res.add(ind, fault.Schemaf("remark schema keyed by unknown verdict %q", string(verdict)))
		}
		if bad := rules.UnknownTokens(template); len(bad) > 0 {
			res.add(ind, fault.Schemaf("remark template uses unknown token(s) %s", strings.Join(bad, ", ")))
		}
	}

	if ind.MOVChecklist != nil {
		v.checkChecklist(ind, ind.MOVChecklist, fieldIDs, res)
	}

	if ind.FormSchema != nil {
		for _, f := range ind.FormSchema.Fields {
			if f.ConditionalRequirement != nil && !fieldIDs[f.ConditionalRequirement.Field] {
				res.add(ind, fault.Schemaf("field %q conditional requirement references unknown field %q", f.ID, f.ConditionalRequirement.Field))
			}
		}
	}
}

func (v *Validator) checkChecklist(ind *indicator.Indicator, config *checklist.Config, formFields map[string]bool, res *Result) {
	if config.ValidationMode != "" && config.ValidationMode != checklist.ModeStrict && config.ValidationMode != checklist.ModeLenient {
		res.add(ind, fault.Schemaf("unknown checklist validation_mode %q", string(config.ValidationMode)))
	}

	itemIDs := map[string]bool{}
	var collect func(items []checklist.Item)
	collect = func(items []checklist.Item) {
		for _, it := range items {
			if itemIDs[it.ID] {
				res.add(ind, fault.Schemaf("duplicate checklist item id %q", it.ID))
			}
			itemIDs[it.ID] = true
			collect(it.Children)
		}
	}
	collect(config.Items)

	var walk func(items []checklist.Item)
	walk = func(items []checklist.Item) {
		for _, it := range items {
			if !checklist.KnownKind(it.Kind) {
				res.add(ind, fault.Schemaf("checklist item %q has unknown kind %q", it.ID, string(it.Kind)))
			}
			if it.DisplayCondition != nil {
				ref := it.DisplayCondition.Field
				if !formFields[ref] && !itemIDs[ref] {
					res.add(ind, fault.Schemaf("checklist item %q display condition references unknown field %q", it.ID, ref))
				}
			}
			if it.Kind == checklist.KindGroup {
				if it.Logic == checklist.LogicOr && it.MinRequired > len(it.Children) {
					res.add(ind, fault.Schemaf("checklist group %q requires %d of %d children", it.ID, it.MinRequired, len(it.Children)))
				}
				walk(it.Children)
			}
		}
	}
	walk(config.Items)
}
