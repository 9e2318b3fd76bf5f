package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit path")
	}
}

func TestFindConfigExplicitFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("domain_id: 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if got != path {
		t.Fatalf("FindConfig() = %q, want %q", got, path)
	}
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "domain_id: 7\nexecutor:\n  spin_period_us: 5000\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DomainID != 7 {
		t.Errorf("DomainID = %d, want 7", cfg.DomainID)
	}
	if cfg.Executor.SpinPeriodUS != 5000 {
		t.Errorf("SpinPeriodUS = %d, want 5000", cfg.Executor.SpinPeriodUS)
	}
	if cfg.Transport.DefaultKind != "UDP" {
		t.Errorf("Transport.DefaultKind = %q, want default UDP", cfg.Transport.DefaultKind)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "transport:\n  default_kind: CARRIER_PIGEON\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected ConfigInvalid error")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "": true,
		"nonsense": false,
	}
	for s, wantOK := range cases {
		_, err := ParseLogLevel(s)
		if (err == nil) != wantOK {
			t.Errorf("ParseLogLevel(%q) err=%v, want ok=%v", s, err, wantOK)
		}
	}
}

func TestContextRegistryDisambiguatesDuplicates(t *testing.T) {
	r := NewContextRegistry()
	a := r.Register("ucl", "n1")
	b := r.Register("ucl", "n1")
	c := r.Register("mw", "n1")

	if a == b {
		t.Fatalf("expected distinct tokens for duplicate registration, got %q twice", a)
	}
	if a == c {
		t.Fatalf("expected different component namespaces to differ: %q == %q", a, c)
	}
}
