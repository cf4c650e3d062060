package indicator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/gowebpki/jcs"

	"github.com/siglalabs/sigla/pkg/fault"
)

// ComputeFingerprint hashes the published content of an indicator over its
// RFC 8785 canonical JSON form. Republishing identical content yields an
// identical fingerprint, which is what makes recalculation after a republish
// provably a no-op.
func ComputeFingerprint(ind *Indicator) (string, error) {
	content := struct {
		Code              string            `json:"code"`
		FormVersion       string            `json:"form_version"`
		IsAutoCalculable  bool              `json:"is_auto_calculable"`
		CalculationSchema json.RawMessage   `json:"calculation_schema,omitempty"`
		RemarkSchema      map[string]string `json:"remark_schema,omitempty"`
		MOVChecklist      json.RawMessage   `json:"mov_checklist,omitempty"`
		FormSchema        json.RawMessage   `json:"form_schema,omitempty"`
	}{
		Code:             ind.Code,
		FormVersion:      ind.FormVersion,
		IsAutoCalculable: ind.IsAutoCalculable,
	}
	if ind.CalculationSchema != nil {
		raw, err := json.Marshal(ind.CalculationSchema)
		if err != nil {
			return "", fmt.Errorf("marshaling calculation schema: %w", err)
		}
		content.CalculationSchema = raw
	}
	if ind.RemarkSchema != nil {
		content.RemarkSchema = make(map[string]string, len(ind.RemarkSchema))
		for k, v := range ind.RemarkSchema {
			content.RemarkSchema[string(k)] = v
		}
	}
	if ind.MOVChecklist != nil {
		raw, err := json.Marshal(ind.MOVChecklist)
		if err != nil {
			return "", fmt.Errorf("marshaling checklist: %w", err)
		}
		content.MOVChecklist = raw
	}
	if ind.FormSchema != nil {
		raw, err := json.Marshal(ind.FormSchema)
		if err != nil {
			return "", fmt.Errorf("marshaling form schema: %w", err)
		}
		content.FormSchema = raw
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshaling indicator content: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing indicator content: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// ValidateVersionBump checks that next is a well-formed semantic version and,
// when the indicator was published before, strictly newer than current.
func ValidateVersionBump(current, next string) error {
	nv, err := semver.NewVersion(next)
	if err != nil {
		return fault.Schemaf("form_version %q is not a semantic version", next).WithCause(err)
	}
	if current == "" {
		return nil
	}
	cv, err := semver.NewVersion(current)
	if err != nil {
		return fault.Schemaf("published form_version %q is not a semantic version", current).WithCause(err)
	}
	if !nv.GreaterThan(cv) {
		return fault.Schemaf("form_version %s does not advance published %s", next, current)
	}
	return nil
}
