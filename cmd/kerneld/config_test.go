package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig("./testdata/missing.yaml")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.Harness.TickUs != 1_000 {
		t.Fatalf("unexpected tickUs: %v", cfg.Harness.TickUs)
	}

	if cfg.Harness.HTTPBind != ":9108" {
		t.Fatalf("unexpected http bind address: %q", cfg.Harness.HTTPBind)
	}

	if cfg.OCI.Enabled {
		t.Fatal("expected OCI telemetry to default to disabled")
	}

	if len(cfg.TaskSet) == 0 {
		t.Fatal("expected default task set to be non-empty")
	}
}

func TestLoadConfigAppliesFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join("testdata", "config.yaml")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.Harness.TickUs != 500 {
		t.Fatalf("expected tickUs override, got %v", cfg.Harness.TickUs)
	}

	if cfg.Harness.HTTPBind != "127.0.0.1:0" {
		t.Fatalf("expected http bind override, got %q", cfg.Harness.HTTPBind)
	}

	expectedCompartment := "ocid1.compartment.oc1..exampleuniqueID"
	if cfg.OCI.CompartmentID != expectedCompartment {
		t.Fatalf("expected compartment id %q, got %q", expectedCompartment, cfg.OCI.CompartmentID)
	}

	if len(cfg.TaskSet) != 2 {
		t.Fatalf("expected 2 configured tasks, got %d", len(cfg.TaskSet))
	}

	if cfg.TaskSet[0].Name != "heartbeat" || cfg.TaskSet[0].Priority != "high" {
		t.Fatalf("unexpected first task: %+v", cfg.TaskSet[0])
	}
}

func TestLoadConfigAppliesEnvOverrides(t *testing.T) {
	t.Setenv(envTickUs, "2000")
	t.Setenv(envClockHz, "500000")
	t.Setenv(envHTTPBind, " :9300 ")
	t.Setenv(envCompartmentID, " ocid1.compartment.oc1..override ")
	t.Setenv(envResourceID, "kerneld-env")
	t.Setenv(envOCIEnabled, "true")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.Harness.TickUs != 2_000 {
		t.Fatalf("unexpected tickUs: %v", cfg.Harness.TickUs)
	}

	if cfg.Harness.ClockHz != 500_000 {
		t.Fatalf("unexpected clockHz: %v", cfg.Harness.ClockHz)
	}

	if cfg.Harness.HTTPBind != ":9300" {
		t.Fatalf("unexpected http bind: %q", cfg.Harness.HTTPBind)
	}

	if cfg.OCI.CompartmentID != "ocid1.compartment.oc1..override" {
		t.Fatalf("unexpected compartment id: %q", cfg.OCI.CompartmentID)
	}

	if cfg.OCI.ResourceID != "kerneld-env" {
		t.Fatalf("unexpected resource id: %q", cfg.OCI.ResourceID)
	}

	if !cfg.OCI.Enabled {
		t.Fatal("expected OCI telemetry to be enabled via env override")
	}
}

func TestLoadConfigIgnoresZeroEnvOverrides(t *testing.T) {
	t.Setenv(envTickUs, "0")
	t.Setenv(envClockHz, "0")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.Harness.TickUs != 1_000 {
		t.Fatalf("expected tickUs to fall back to default, got %v", cfg.Harness.TickUs)
	}

	if cfg.Harness.ClockHz != 1_000_000 {
		t.Fatalf("expected clockHz to fall back to default, got %v", cfg.Harness.ClockHz)
	}
}

func TestLoadConfigReturnsDecodeError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")

	writeErr := os.WriteFile(path, []byte("harness: ["), 0o600)
	if writeErr != nil {
		t.Fatalf("write temp file: %v", writeErr)
	}

	_, err := loadConfig(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
