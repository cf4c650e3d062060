package indicator

import (
	"strings"
	"testing"

	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/rules"
)

func sampleIndicator() *Indicator {
	return &Indicator{
		ID: "ind-1", Code: "1.1", Name: "Approved barangay budget",
		AreaID: "area-fin", Weight: 100, IsAutoCalculable: true,
		FormVersion: "1.2.0",
		CalculationSchema: &rules.CalculationSchema{
			ConditionGroups: []rules.ConditionGroup{{
				Operator: rules.GroupAnd,
				Rules: []rules.Rule{
					&rules.PercentageThresholdRule{Field: "pct", Operator: rules.CompareGTE, Threshold: 50},
				},
			}},
		},
		RemarkSchema: rules.RemarkSchema{rules.VerdictPass: "Budget approved for {{ period }}."},
		FormSchema: &FormSchema{Fields: []FormField{
			{ID: "pct", Type: FieldNumber, Required: true},
			{ID: "budget_doc", Type: FieldFile, Required: true},
		}},
	}
}

func TestComputeFingerprintStable(t *testing.T) {
	ind := sampleIndicator()
	a, err := ComputeFingerprint(ind)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ComputeFingerprint(ind)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("fingerprints differ for identical content: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "sha256:") {
		t.Fatalf("fingerprint missing algorithm prefix: %s", a)
	}
}

func TestComputeFingerprintChangesWithContent(t *testing.T) {
	ind := sampleIndicator()
	a, err := ComputeFingerprint(ind)
	if err != nil {
		t.Fatal(err)
	}

	ind.CalculationSchema.ConditionGroups[0].Rules = append(
		ind.CalculationSchema.ConditionGroups[0].Rules,
		&rules.CountThresholdRule{Field: "n", Operator: rules.CompareGTE, Threshold: 1},
	)
	b, err := ComputeFingerprint(ind)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("fingerprint did not change with schema content")
	}
}

func TestValidateVersionBump(t *testing.T) {
	if err := ValidateVersionBump("", "1.0.0"); err != nil {
		t.Fatalf("first publication: %v", err)
	}
	if err := ValidateVersionBump("1.0.0", "1.1.0"); err != nil {
		t.Fatalf("minor bump: %v", err)
	}
	if err := ValidateVersionBump("1.1.0", "1.1.0"); err == nil {
		t.Fatal("same version must be rejected")
	}
	if err := ValidateVersionBump("2.0.0", "1.9.9"); err == nil {
		t.Fatal("downgrade must be rejected")
	}
	err := ValidateVersionBump("1.0.0", "not-a-version")
	if err == nil || !fault.IsSchema(err) {
		t.Fatalf("expected schema fault, got %v", err)
	}
}

func TestChildrenByParent(t *testing.T) {
	set := []Indicator{
		{ID: "root-a", Code: "1"},
		{ID: "child-1", Code: "1.1", ParentID: "root-a"},
		{ID: "child-2", Code: "1.2", ParentID: "root-a"},
		{ID: "root-b", Code: "2"},
	}
	tree := ChildrenByParent(set)
	if len(tree[""]) != 2 {
		t.Fatalf("roots = %d, want 2", len(tree[""]))
	}
	if len(tree["root-a"]) != 2 {
		t.Fatalf("children of root-a = %d, want 2", len(tree["root-a"]))
	}
}

func TestFormSchemaField(t *testing.T) {
	form := sampleIndicator().FormSchema
	f, ok := form.Field("budget_doc")
	if !ok || !f.IsFileEvidence() {
		t.Fatal("budget_doc should be a file-evidence field")
	}
	if _, ok := form.Field("nope"); ok {
		t.Fatal("unknown field id must not resolve")
	}
	var nilForm *FormSchema
	if ids := nilForm.FieldIDs(); ids != nil {
		t.Fatal("nil form should have no field ids")
	}
}
