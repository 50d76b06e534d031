package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Matching.MaxCandidatesPerLine != 3 || cfg.Cache.CatalogEntries != 64 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("base path: %q", cfg.Server.BasePath)
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("matching:\n  min_score: 10\nwebhooks:\n  - url: http://localhost:9000/hook\n    events: [order.created]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Matching.MinScore != 10 {
		t.Fatalf("min_score not applied: %v", cfg.Matching.MinScore)
	}
	if cfg.Matching.MaxCandidatesPerLine != 3 {
		t.Fatalf("default max candidates lost: %d", cfg.Matching.MaxCandidatesPerLine)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "order.created" {
		t.Fatalf("webhooks: %+v", cfg.Webhooks)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"negative score": "matching:\n  min_score: -1\n",
		"zero cache":     "cache:\n  catalog_entries: 0\n",
		"currency":       "compiler:\n  currency: dollars\n",
		"unknown code":   "compiler:\n  currency: ZZQ\n",
		"base path":      "server:\n  base_path: v1\n",
		"webhook url":    "webhooks:\n  - url: ftp://example.com\n",
		"empty event":    "webhooks:\n  - url: http://example.com\n    events: [\"\"]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	ws := t.TempDir()
	cfg, err := LoadOptional(ws)
	if err != nil || cfg == nil {
		t.Fatalf("load optional: %v %v", cfg, err)
	}
	if _, err := Load(ws); err == nil || !strings.Contains(err.Error(), "config init") {
		t.Fatalf("expected missing config error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws, "concierge.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(ws); err != nil {
		t.Fatalf("load: %v", err)
	}
}
