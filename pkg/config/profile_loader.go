package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile describes one assessment cycle: the period and its deadline, the
// governance areas in scope, and how the cycle is judged and swept.
type Profile struct {
	Name      string          `yaml:"name" json:"name"`
	Code      string          `yaml:"code" json:"code"`
	Period    PeriodConfig    `yaml:"period" json:"period"`
	Areas     []AreaConfig    `yaml:"areas" json:"areas"`
	Passing   PassingConfig   `yaml:"passing" json:"passing"`
	Checklist ChecklistConfig `yaml:"checklist" json:"checklist"`
	Sweep     SweepConfig     `yaml:"sweep" json:"sweep"`
}

// PeriodConfig bounds the submission window for the cycle.
type PeriodConfig struct {
	ID        string    `yaml:"id" json:"id"`
	Deadline  time.Time `yaml:"deadline" json:"deadline"`
	GraceDays int       `yaml:"grace_days,omitempty" json:"grace_days,omitempty"`
}

// AreaConfig names one governance area. Core areas are mandatory for the
// cycle's passing rule; the rest are essential areas.
type AreaConfig struct {
	ID   string `yaml:"id" json:"id"`
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	Core bool   `yaml:"core,omitempty" json:"core,omitempty"`
}

// PassingConfig is the cycle's passing rule: every core area plus at least
// MinEssential of the essential areas.
type PassingConfig struct {
	MinEssential int `yaml:"min_essential" json:"min_essential"`
}

// ChecklistConfig selects the validation posture for checklist scoring.
type ChecklistConfig struct {
	ValidationMode string `yaml:"validation_mode,omitempty" json:"validation_mode,omitempty"` // strict | lenient
}

// SweepConfig tunes the background jobs for the cycle.
type SweepConfig struct {
	BatchSize         int     `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
	ReminderLeadHours int     `yaml:"reminder_lead_hours,omitempty" json:"reminder_lead_hours,omitempty"`
	PerSecond         float64 `yaml:"per_second,omitempty" json:"per_second,omitempty"`
}

// LoadProfile loads one cycle profile by code from profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*Profile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}
	if p.Code == "" {
		p.Code = code
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", code, err)
	}
	return &p, nil
}

// LoadAllProfiles loads every profile_*.yaml in the directory, keyed by code.
func LoadAllProfiles(profilesDir string) (map[string]*Profile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*Profile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if p.Code == "" {
			base := filepath.Base(path)
			p.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		profiles[p.Code] = &p
	}
	return profiles, nil
}

// Validate rejects profiles that cannot drive a cycle.
func (p *Profile) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("code is required")
	}
	if p.Period.ID == "" {
		return fmt.Errorf("period id is required")
	}
	if len(p.Areas) == 0 {
		return fmt.Errorf("at least one governance area is required")
	}
	seen := make(map[string]bool, len(p.Areas))
	essential := 0
	for _, a := range p.Areas {
		if a.ID == "" {
			return fmt.Errorf("area with empty id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate area id %s", a.ID)
		}
		seen[a.ID] = true
		if !a.Core {
			essential++
		}
	}
	if p.Passing.MinEssential > essential {
		return fmt.Errorf("passing rule needs %d essential areas but the profile has %d",
			p.Passing.MinEssential, essential)
	}
	switch p.Checklist.ValidationMode {
	case "", "strict", "lenient":
	default:
		return fmt.Errorf("unknown validation mode %q", p.Checklist.ValidationMode)
	}
	return nil
}

// AreaIDs returns the ids of every area in profile order.
func (p *Profile) AreaIDs() []string {
	ids := make([]string, 0, len(p.Areas))
	for _, a := range p.Areas {
		ids = append(ids, a.ID)
	}
	return ids
}

// HasArea reports whether the profile includes the area.
func (p *Profile) HasArea(id string) bool {
	for _, a := range p.Areas {
		if a.ID == id {
			return true
		}
	}
	return false
}

// MeetsPassingRule applies the cycle's rule to the set of passed areas:
// every core area must be present, plus at least MinEssential essential ones.
func (p *Profile) MeetsPassingRule(passedAreaIDs []string) bool {
	passed := make(map[string]bool, len(passedAreaIDs))
	for _, id := range passedAreaIDs {
		passed[id] = true
	}

	essentialPassed := 0
	for _, a := range p.Areas {
		if a.Core {
			if !passed[a.ID] {
				return false
			}
			continue
		}
		if passed[a.ID] {
			essentialPassed++
		}
	}
	return essentialPassed >= p.Passing.MinEssential
}
