// Package indicator holds the published assessment content: governance
// areas, the indicator tree, per-indicator form schemas, and the publication
// metadata (version, fingerprint) that makes re-publication auditable.
package indicator

import (
	"github.com/siglalabs/sigla/pkg/checklist"
	"github.com/siglalabs/sigla/pkg/rules"
)

// GovernanceArea is one of the fixed thematic groupings indicators and
// submissions are organized under.
type GovernanceArea struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// DefaultGovernanceAreas returns the standard six-area catalog.
func DefaultGovernanceAreas() []GovernanceArea {
	return []GovernanceArea{
		{ID: "area-fin", Code: "FIN", Name: "Financial Administration and Sustainability"},
		{ID: "area-dis", Code: "DIS", Name: "Disaster Preparedness"},
		{ID: "area-spo", Code: "SPO", Name: "Safety, Peace and Order"},
		{ID: "area-soc", Code: "SOC", Name: "Social Protection and Sensitivity"},
		{ID: "area-bfc", Code: "BFC", Name: "Business-Friendliness and Competitiveness"},
		{ID: "area-env", Code: "ENV", Name: "Environmental Management"},
	}
}

// FieldType discriminates form fields. Only file_upload changes completeness
// semantics; the rest are plain value inputs.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldCurrency FieldType = "currency"
	FieldDate     FieldType = "date"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldDropdown FieldType = "dropdown"
	FieldFile     FieldType = "file_upload"
)

// FormField is one field of an indicator's submission form.
type FormField struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`

	// ConditionalRequirement waives the field when its condition evaluates
	// to "not required" against the submitted data.
	ConditionalRequirement *checklist.Condition `json:"conditional_mov_requirement,omitempty"`
}

// IsFileEvidence reports whether the field is satisfied by uploads rather
// than a typed value.
func (f FormField) IsFileEvidence() bool { return f.Type == FieldFile }

// FormSchema is the field layout of one indicator's form.
type FormSchema struct {
	Fields []FormField `json:"fields"`
}

// Indicator is the atomic scored unit. Indicators may have child
// sub-indicators forming a shallow tree under one governance area.
type Indicator struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AreaID      string `json:"area_id"`
	ParentID    string `json:"parent_id,omitempty"`

	// Weight is this indicator's share among its siblings, in percent.
	// Siblings under one parent must sum to 100 within tolerance.
	Weight float64 `json:"weight"`

	IsAutoCalculable bool `json:"is_auto_calculable"`

	CalculationSchema *rules.CalculationSchema `json:"calculation_schema,omitempty"`
	RemarkSchema      rules.RemarkSchema       `json:"remark_schema,omitempty"`
	MOVChecklist      *checklist.Config        `json:"mov_checklist,omitempty"`
	FormSchema        *FormSchema              `json:"form_schema,omitempty"`

	FormVersion string `json:"form_version,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// FieldIDs returns the ids of every form field, in declaration order.
func (s *FormSchema) FieldIDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.ID)
	}
	return out
}

// Field looks a form field up by id.
func (s *FormSchema) Field(id string) (FormField, bool) {
	if s == nil {
		return FormField{}, false
	}
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FormField{}, false
}

// ChildrenByParent indexes an indicator set by parent id. Root indicators
// appear under the empty key.
func ChildrenByParent(indicators []Indicator) map[string][]Indicator {
	tree := make(map[string][]Indicator)
	for _, ind := range indicators {
		tree[ind.ParentID] = append(tree[ind.ParentID], ind)
	}
	return tree
}
