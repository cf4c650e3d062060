package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleProfile = `name: Test Cycle
code: test
period:
  id: cy-test
  deadline: 2025-10-31T17:00:00+08:00
  grace_days: 3
areas:
  - id: area-fin
    code: FIN
    name: Financial Administration
    core: true
  - id: area-dis
    code: DIS
    name: Disaster Preparedness
    core: true
  - id: area-env
    code: ENV
    name: Environmental Management
passing:
  min_essential: 1
checklist:
  validation_mode: strict
`

func writeProfile(t *testing.T, dir, code, body string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+code+".yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "test", sampleProfile)

	p, err := LoadProfile(dir, "TEST")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "Test Cycle" {
		t.Errorf("expected name 'Test Cycle', got %q", p.Name)
	}
	if p.Period.ID != "cy-test" {
		t.Errorf("expected period cy-test, got %q", p.Period.ID)
	}
	want := time.Date(2025, 10, 31, 17, 0, 0, 0, time.FixedZone("", 8*3600))
	if !p.Period.Deadline.Equal(want) {
		t.Errorf("deadline parsed as %s", p.Period.Deadline)
	}
	if len(p.Areas) != 3 {
		t.Fatalf("expected 3 areas, got %d", len(p.Areas))
	}
	if !p.HasArea("area-fin") || p.HasArea("area-ghost") {
		t.Error("HasArea misreports membership")
	}
	if got := p.AreaIDs(); len(got) != 3 || got[0] != "area-fin" {
		t.Errorf("AreaIDs = %v", got)
	}
}

func TestLoadProfileFillsCodeFromFilename(t *testing.T) {
	dir := t.TempDir()
	body := sampleProfile
	writeProfile(t, dir, "anon", replaceLine(body, "code: test", ""))

	p, err := LoadProfile(dir, "anon")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Code != "anon" {
		t.Errorf("expected code from filename, got %q", p.Code)
	}
}

func TestLoadProfileRejectsBadDocuments(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		body string
	}{
		{"missing period", "name: X\ncode: x\nareas:\n  - id: a\n    code: A\n    name: A\n"},
		{"no areas", "name: X\ncode: x\nperiod:\n  id: p\n"},
		{"duplicate areas", "name: X\ncode: x\nperiod:\n  id: p\nareas:\n  - id: a\n    code: A\n    name: A\n  - id: a\n    code: B\n    name: B\n"},
		{"impossible passing rule", "name: X\ncode: x\nperiod:\n  id: p\nareas:\n  - id: a\n    code: A\n    name: A\n    core: true\npassing:\n  min_essential: 2\n"},
		{"unknown validation mode", "name: X\ncode: x\nperiod:\n  id: p\nareas:\n  - id: a\n    code: A\n    name: A\nchecklist:\n  validation_mode: festive\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writeProfile(t, dir, "bad", tc.body)
			if _, err := LoadProfile(dir, "bad"); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	if _, err := LoadProfile(t.TempDir(), "ghost"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a", replaceLine(sampleProfile, "code: test", "code: a"))
	writeProfile(t, dir, "b", replaceLine(sampleProfile, "code: test", "code: b"))

	profiles, err := LoadAllProfiles(dir)
	if err != nil {
		t.Fatalf("LoadAllProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	for code, p := range profiles {
		if p.Code != code {
			t.Errorf("profile keyed %s carries code %s", code, p.Code)
		}
	}
}

func TestShippedProfileLoads(t *testing.T) {
	p, err := LoadProfile("profiles", "cy2025")
	if err != nil {
		t.Fatalf("shipped profile must load: %v", err)
	}
	if len(p.Areas) != 6 {
		t.Errorf("expected the six-area catalog, got %d", len(p.Areas))
	}
	core := 0
	for _, a := range p.Areas {
		if a.Core {
			core++
		}
	}
	if core != 3 {
		t.Errorf("expected 3 core areas, got %d", core)
	}
}

func TestMeetsPassingRule(t *testing.T) {
	p := &Profile{
		Code:   "x",
		Period: PeriodConfig{ID: "p"},
		Areas: []AreaConfig{
			{ID: "core-1", Code: "C1", Name: "Core 1", Core: true},
			{ID: "core-2", Code: "C2", Name: "Core 2", Core: true},
			{ID: "ess-1", Code: "E1", Name: "Essential 1"},
			{ID: "ess-2", Code: "E2", Name: "Essential 2"},
		},
		Passing: PassingConfig{MinEssential: 1},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("fixture profile invalid: %v", err)
	}

	cases := []struct {
		name   string
		passed []string
		want   bool
	}{
		{"all areas", []string{"core-1", "core-2", "ess-1", "ess-2"}, true},
		{"cores plus one essential", []string{"core-1", "core-2", "ess-2"}, true},
		{"cores only", []string{"core-1", "core-2"}, false},
		{"missing one core", []string{"core-1", "ess-1", "ess-2"}, false},
		{"nothing", nil, false},
	}
	for _, tc := range cases {
		if got := p.MeetsPassingRule(tc.passed); got != tc.want {
			t.Errorf("%s: MeetsPassingRule = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func replaceLine(s, old, new string) string {
	if new == "" {
		return strings.Replace(s, old+"\n", "", 1)
	}
	return strings.Replace(s, old, new, 1)
}
