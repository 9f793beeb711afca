package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	envTickUs        = "KERNELD_TICK_US"
	envClockHz       = "KERNELD_CLOCK_HZ"
	envHTTPBind      = "KERNELD_HTTP_ADDR"
	envLockPath      = "KERNELD_LOCK_PATH"
	envCompartmentID = "OCI_COMPARTMENT_ID"
	envResourceID    = "KERNELD_RESOURCE_ID"
	envOCIEnabled    = "KERNELD_OCI_ENABLED"
)

type runtimeConfig struct {
	Harness harnessConfig
	OCI     ociConfig
	TaskSet []taskSpec
}

type harnessConfig struct {
	TickUs   uint64
	ClockHz  uint32
	HTTPBind string
	LockPath string
}

type ociConfig struct {
	Enabled       bool
	CompartmentID string
	ResourceID    string
}

// taskSpec is one periodic task definition from the task-set file: the
// host harness turns each entry into a registered workload.Run task.
type taskSpec struct {
	Name       string
	Priority   string
	PeriodUs   uint32
	WCETUs     uint32
	WorkloadUs uint32
}

type fileConfig struct {
	Harness harnessFileConfig `yaml:"harness"`
	OCI     ociFileConfig     `yaml:"oci"`
	TaskSet []taskFileSpec    `yaml:"taskSet"`
}

type harnessFileConfig struct {
	TickUs   *uint64 `yaml:"tickUs"`
	ClockHz  *uint32 `yaml:"clockHz"`
	HTTPBind *string `yaml:"httpBind"`
	LockPath *string `yaml:"lockPath"`
}

type ociFileConfig struct {
	Enabled       *bool   `yaml:"enabled"`
	CompartmentID *string `yaml:"compartmentId"`
	ResourceID    *string `yaml:"resourceId"`
}

type taskFileSpec struct {
	Name       string `yaml:"name"`
	Priority   string `yaml:"priority"`
	PeriodUs   uint32 `yaml:"periodUs"`
	WCETUs     uint32 `yaml:"wcetUs"`
	WorkloadUs uint32 `yaml:"workloadUs"`
}

func defaultRuntimeConfig() runtimeConfig {
	var cfg runtimeConfig

	cfg.Harness.TickUs = 1_000
	cfg.Harness.ClockHz = 1_000_000
	cfg.Harness.HTTPBind = ":9108"
	cfg.Harness.LockPath = "/var/run/kerneld.lock"

	cfg.TaskSet = []taskSpec{
		{Name: "heartbeat", Priority: "high", PeriodUs: 10_000, WCETUs: 500, WorkloadUs: 200},
		{Name: "telemetry", Priority: "normal", PeriodUs: 50_000, WCETUs: 2_000, WorkloadUs: 1_000},
	}

	return cfg
}

func loadConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		applyEnvOverrides(&cfg)

		return cfg, nil
	}

	data, err := os.ReadFile(trimmed)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return runtimeConfig{}, fmt.Errorf("read config file %q: %w", trimmed, err)
		}
	} else {
		var fileCfg fileConfig

		err := yaml.Unmarshal(data, &fileCfg)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("decode config file %q: %w", trimmed, err)
		}

		mergeHarnessConfig(&cfg.Harness, fileCfg.Harness)
		mergeOCIConfig(&cfg.OCI, fileCfg.OCI)

		if len(fileCfg.TaskSet) > 0 {
			cfg.TaskSet = convertTaskSet(fileCfg.TaskSet)
		}
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func convertTaskSet(specs []taskFileSpec) []taskSpec {
	tasks := make([]taskSpec, len(specs))

	for i, s := range specs {
		tasks[i] = taskSpec{
			Name:       s.Name,
			Priority:   s.Priority,
			PeriodUs:   s.PeriodUs,
			WCETUs:     s.WCETUs,
			WorkloadUs: s.WorkloadUs,
		}
	}

	return tasks
}

func mergeHarnessConfig(dst *harnessConfig, src harnessFileConfig) {
	assignUint64(&dst.TickUs, src.TickUs)
	assignUint32(&dst.ClockHz, src.ClockHz)
	assignString(&dst.HTTPBind, src.HTTPBind)
	assignString(&dst.LockPath, src.LockPath)
}

func mergeOCIConfig(dst *ociConfig, src ociFileConfig) {
	assignBool(&dst.Enabled, src.Enabled)
	assignString(&dst.CompartmentID, src.CompartmentID)
	assignString(&dst.ResourceID, src.ResourceID)
}

func applyEnvOverrides(cfg *runtimeConfig) {
	cfg.Harness.TickUs = envUint64(envTickUs, cfg.Harness.TickUs)
	cfg.Harness.ClockHz = envUint32(envClockHz, cfg.Harness.ClockHz)
	cfg.Harness.HTTPBind = envString(envHTTPBind, cfg.Harness.HTTPBind)
	cfg.Harness.LockPath = envString(envLockPath, cfg.Harness.LockPath)

	cfg.OCI.CompartmentID = envString(envCompartmentID, cfg.OCI.CompartmentID)
	cfg.OCI.ResourceID = envString(envResourceID, cfg.OCI.ResourceID)
	cfg.OCI.Enabled = envBool(envOCIEnabled, cfg.OCI.Enabled)

	if cfg.Harness.TickUs == 0 {
		cfg.Harness.TickUs = 1_000
	}

	if cfg.Harness.ClockHz == 0 {
		cfg.Harness.ClockHz = 1_000_000
	}
}

var lookupEnv = os.LookupEnv //nolint:gochecknoglobals // overridden in tests

func assignUint64(target *uint64, value *uint64) {
	if value != nil {
		*target = *value
	}
}

func assignUint32(target *uint32, value *uint32) {
	if value != nil {
		*target = *value
	}
}

func assignBool(target *bool, value *bool) {
	if value != nil {
		*target = *value
	}
}

func assignString(target *string, value *string) {
	if value != nil {
		*target = strings.TrimSpace(*value)
	}
}

func envUint64(key string, fallback uint64) uint64 {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return fallback
	}

	return parsed
}

func envUint32(key string, fallback uint32) uint32 {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	parsed, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil {
		return fallback
	}

	return uint32(parsed)
}

func envBool(key string, fallback bool) bool {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}

	return parsed
}

func envString(key, fallback string) string {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	return trimmed
}
