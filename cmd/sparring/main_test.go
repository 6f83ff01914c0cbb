package main

import (
	"bytes"
	"strings"
	"testing"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestParseRunConfig_DefaultsAndEnv(t *testing.T) {
	t.Parallel()

	cfg, err := parseRunConfig(nil, envMap(map[string]string{
		"GEMINI_API_KEY": "key-test",
	}))
	if err != nil {
		t.Fatalf("parseRunConfig error: %v", err)
	}
	if cfg.ScenarioID != "salary-negotiation" {
		t.Fatalf("ScenarioID=%q", cfg.ScenarioID)
	}
	if cfg.RecordDir != defaultRecordDir {
		t.Fatalf("RecordDir=%q, want %q", cfg.RecordDir, defaultRecordDir)
	}
	if cfg.APIKey != "key-test" {
		t.Fatalf("APIKey=%q", cfg.APIKey)
	}
}

func TestParseRunConfig_GoogleKeyFallback(t *testing.T) {
	t.Parallel()

	cfg, err := parseRunConfig(nil, envMap(map[string]string{
		"GOOGLE_API_KEY": "google-test",
	}))
	if err != nil {
		t.Fatalf("parseRunConfig error: %v", err)
	}
	if cfg.APIKey != "google-test" {
		t.Fatalf("APIKey=%q, want %q", cfg.APIKey, "google-test")
	}
}

func TestParseRunConfig_MissingKey(t *testing.T) {
	t.Parallel()

	_, err := parseRunConfig(nil, envMap(nil))
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("err=%v, want missing key error", err)
	}
}

func TestParseRunConfig_WSURLNeedsNoKey(t *testing.T) {
	t.Parallel()

	cfg, err := parseRunConfig([]string{"-ws-url", "ws://localhost:9000/live"}, envMap(nil))
	if err != nil {
		t.Fatalf("parseRunConfig error: %v", err)
	}
	if cfg.WSURL != "ws://localhost:9000/live" {
		t.Fatalf("WSURL=%q", cfg.WSURL)
	}
}

func TestParseRunConfig_AnalyzeRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := parseRunConfig([]string{"-ws-url", "ws://localhost:9000", "-analyze"}, envMap(nil))
	if err == nil || !strings.Contains(err.Error(), "-analyze") {
		t.Fatalf("err=%v, want analyze key error", err)
	}
}

func TestParseRunConfig_ThresholdRange(t *testing.T) {
	t.Parallel()

	_, err := parseRunConfig([]string{"-threshold", "1.5"}, envMap(map[string]string{
		"GEMINI_API_KEY": "key-test",
	}))
	if err == nil || !strings.Contains(err.Error(), "threshold") {
		t.Fatalf("err=%v, want threshold error", err)
	}
}

func TestParseRunConfig_ListNeedsNoKey(t *testing.T) {
	t.Parallel()

	cfg, err := parseRunConfig([]string{"-list"}, envMap(nil))
	if err != nil {
		t.Fatalf("parseRunConfig error: %v", err)
	}
	if !cfg.ListOnly {
		t.Fatal("ListOnly should be set")
	}
}

func TestListScenariosOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	listScenarios(&buf)
	out := buf.String()
	for _, want := range []string{"salary-negotiation", "promotion-pitch", "resignation"} {
		if !strings.Contains(out, want) {
			t.Fatalf("listing missing %q:\n%s", want, out)
		}
	}
}
