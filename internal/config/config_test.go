package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/njoerd114/channelsync/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	f.Close()
	return f.Name()
}

const minimalProperties = `
properties:
  - id: hotel-1
    channels:
      - name: stayshare
        enabled: true
        sync_enabled: true
        credentials:
          token: abc
        inventory_mapping:
          dbl: "9001"
`

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
state_path: /var/lib/channelsync/state.db
poll_interval: 10m
adapter_timeout: 45s
max_concurrent_channels: 2
retry_attempts: 5
properties:
  - id: hotel-1
    channels:
      - name: hotelxml
        enabled: true
        sync_enabled: true
        inventory_buffer: 2
        credentials:
          endpoint: https://xml.example.com
          username: u
          password: p
          hotel_id: "77"
        inventory_mapping:
          dbl: DBL
        markup:
          type: percentage
          value: 10
        maximum_rate: 300
        seasonal_rules:
          - name: summer
            start: 2026-06-01
            end: 2026-08-31
            multiplier: 1.2
      - name: stayshare
        enabled: true
        sync_enabled: false
    inventory_sync:
      enabled: true
      strategy: conflict_resolution
      conflict_resolution: most_restrictive
      auto_close_on_low_inventory: true
      overbooking_protection:
        enabled: true
        percentage: 5
    rate_sync:
      enabled: true
      base_rate_source: local
      currency: EUR
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StatePath != "/var/lib/channelsync/state.db" {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
	if cfg.PollInterval != 10*time.Minute || cfg.AdapterTimeout != 45*time.Second {
		t.Errorf("PollInterval = %v, AdapterTimeout = %v", cfg.PollInterval, cfg.AdapterTimeout)
	}
	if cfg.MaxConcurrentChannels != 2 || cfg.RetryAttempts != 5 {
		t.Errorf("MaxConcurrentChannels = %d, RetryAttempts = %d", cfg.MaxConcurrentChannels, cfg.RetryAttempts)
	}

	p, ok := cfg.Property("hotel-1")
	if !ok {
		t.Fatal("hotel-1 not found")
	}
	if len(p.Channels) != 2 || p.Channels[0].Name != "hotelxml" || p.Channels[1].Name != "stayshare" {
		t.Fatalf("channels = %+v, want hotelxml then stayshare", p.Channels)
	}
	ch := p.Channels[0]
	if ch.InventoryBuffer != 2 || ch.Credentials.HotelID != "77" || ch.MaximumRate == nil || *ch.MaximumRate != 300 {
		t.Errorf("hotelxml = %+v", ch)
	}
	if len(ch.SeasonalRules) != 1 || !ch.SeasonalRules[0].Start.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("seasonal rules = %+v", ch.SeasonalRules)
	}
	if p.InventorySync.Strategy != model.StrategyConflictResolution || p.InventorySync.ConflictResolution != model.PolicyMostRestrictive {
		t.Errorf("inventory_sync = %+v", p.InventorySync)
	}
	if p.InventorySync.MasterInventorySource != model.MasterSourceLocal || p.InventorySync.WindowDays != 30 {
		t.Errorf("defaults not applied: %+v", p.InventorySync)
	}
	if !p.IsActive() {
		t.Error("property with no active key is inactive")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalProperties))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != 15*time.Minute {
		t.Errorf("PollInterval = %v, want default 15m", cfg.PollInterval)
	}
	if cfg.AdapterTimeout != 30*time.Second {
		t.Errorf("AdapterTimeout = %v, want default 30s", cfg.AdapterTimeout)
	}
	if cfg.MaxConcurrentChannels != 4 || cfg.RetryAttempts != 3 {
		t.Errorf("MaxConcurrentChannels = %d, RetryAttempts = %d", cfg.MaxConcurrentChannels, cfg.RetryAttempts)
	}
	if cfg.StatePath != "" {
		t.Errorf("StatePath = %q, want empty (store default)", cfg.StatePath)
	}
	p, _ := cfg.Property("hotel-1")
	if p.InventorySync.Strategy != model.StrategyPushOnly || p.InventorySync.ConflictResolution != model.PolicyManualReview {
		t.Errorf("inventory defaults = %+v", p.InventorySync)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"poll too short":    "poll_interval: 30s\n" + minimalProperties,
		"poll too long":     "poll_interval: 25h\n" + minimalProperties,
		"timeout too long":  "adapter_timeout: 5m\n" + minimalProperties,
		"negative retries":  "retry_attempts: -1\n" + minimalProperties,
		"no properties":     "poll_interval: 5m\n",
		"empty properties":  "properties: []\n",
		"unknown key":       "unknown_field: oops\n" + minimalProperties,
		"unknown nested key": `
properties:
  - id: hotel-1
    channels:
      - name: stayshare
        enabeld: true
`,
		"missing property id": `
properties:
  - channels:
      - name: stayshare
`,
		"duplicate property": minimalProperties + `
  - id: hotel-1
    channels: []
`,
		"duplicate channel": `
properties:
  - id: hotel-1
    channels:
      - name: stayshare
      - name: stayshare
`,
		"unknown strategy": `
properties:
  - id: hotel-1
    channels:
      - name: stayshare
    inventory_sync:
      strategy: yolo
`,
		"unknown master": `
properties:
  - id: hotel-1
    channels:
      - name: stayshare
    inventory_sync:
      master_inventory_source: otarpc
`,
		"min above max": `
properties:
  - id: hotel-1
    channels:
      - name: stayshare
        minimum_rate: 200
        maximum_rate: 100
`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_InactiveProperty(t *testing.T) {
	cfg, err := Load(writeConfig(t, strings.Replace(minimalProperties, "  - id: hotel-1\n", "  - id: hotel-1\n    active: false\n", 1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := cfg.Property("hotel-1")
	if p.IsActive() {
		t.Error("active: false property reported active")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("channelsync", "config.yaml")) {
		t.Errorf("DefaultPath = %q", path)
	}
}

func TestLoad_TelemetryValid(t *testing.T) {
	path := writeConfig(t, minimalProperties+`
telemetry:
  otlp_endpoint: "localhost:4317"
  insecure: true
  service_name: "my-channelsync"
  headers:
    Authorization: "Bearer secret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry == nil {
		t.Fatal("expected Telemetry to be non-nil")
	}
	if cfg.Telemetry.OTLPEndpoint != "localhost:4317" || !cfg.Telemetry.Insecure {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Telemetry.ServiceName != "my-channelsync" {
		t.Errorf("ServiceName = %q, want %q", cfg.Telemetry.ServiceName, "my-channelsync")
	}
	if cfg.Telemetry.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("Authorization header = %q", cfg.Telemetry.Headers["Authorization"])
	}
}

func TestLoad_TelemetryOmitted(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalProperties))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry != nil {
		t.Error("expected Telemetry to be nil when block is omitted")
	}
}

func TestLoad_TelemetryMissingEndpoint(t *testing.T) {
	path := writeConfig(t, minimalProperties+`
telemetry:
  insecure: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for telemetry missing otlp_endpoint, got nil")
	}
}
