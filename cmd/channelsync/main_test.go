package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/njoerd114/channelsync/internal/inventory"
	"github.com/njoerd114/channelsync/internal/model"
)

func TestSplitGlobal(t *testing.T) {
	tests := []struct {
		args     []string
		wantCfg  string
		wantVerb bool
		wantRest []string
	}{
		{[]string{"add", "--config", "/tmp/c.yaml", "--file", "r.yaml"}, "/tmp/c.yaml", false, []string{"add", "--file", "r.yaml"}},
		{[]string{"--verbose", "--property=p1", "-config=/etc/cs.yaml"}, "/etc/cs.yaml", true, []string{"--property=p1"}},
	}
	for _, tt := range tests {
		cfg, verbose, rest := splitGlobal(tt.args)
		if cfg != tt.wantCfg || verbose != tt.wantVerb {
			t.Errorf("splitGlobal(%v) = %q, %v; want %q, %v", tt.args, cfg, verbose, tt.wantCfg, tt.wantVerb)
		}
		if diff := cmp.Diff(tt.wantRest, rest); diff != "" {
			t.Errorf("rest mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestResolution(t *testing.T) {
	six := 6
	tests := map[string]struct {
		value          int
		accept, ignore bool
		want           inventory.Resolution
		wantErr        bool
	}{
		"value":   {value: 6, want: inventory.Resolution{Action: inventory.ActionResolve, Value: &six}},
		"accept":  {value: -1, accept: true, want: inventory.Resolution{Action: inventory.ActionResolve}},
		"ignore":  {value: -1, ignore: true, want: inventory.Resolution{Action: inventory.ActionIgnore}},
		"none":    {value: -1, wantErr: true},
		"two set": {value: 3, ignore: true, wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := resolution(tt.value, tt.accept, tt.ignore)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("resolution mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadRateInputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	content := `
inputs:
  - room_type_id: dbl
    start: 2026-10-20
    end: 2026-10-22
    base_rate: 120.50
    currency: EUR
    availability: 5
  - room_type_id: sgl
    start: 2026-10-21
    base_rate: 80
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := readRateInputs(path)
	if err != nil {
		t.Fatalf("readRateInputs: %v", err)
	}
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }
	want := []model.RateInput{
		{RoomTypeID: "dbl", DateRange: model.DateRange{Start: day(20), End: day(22)}, BaseRate: decimal.RequireFromString("120.50"), Currency: "EUR", Availability: 5},
		{RoomTypeID: "sgl", DateRange: model.DateRange{Start: day(21), End: day(21)}, BaseRate: decimal.NewFromInt(80)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRateInputs_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte("inputs:\n  - room: dbl\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := readRateInputs(path); err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestSplitAction(t *testing.T) {
	if _, _, err := splitAction("rules", nil); err == nil {
		t.Error("missing action accepted")
	}
	if _, _, err := splitAction("rules", []string{"purge"}); err == nil {
		t.Error("unknown action accepted")
	}
	action, rest, err := splitAction("rules", []string{"delete", "--id", "r1"})
	if err != nil || action != "delete" || len(rest) != 2 {
		t.Errorf("splitAction = %q, %v, %v", action, rest, err)
	}
}

func TestReadInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	content := `
rows:
  - room_type_id: dbl
    start: 2026-10-20
    end: 2026-10-21
    total: 12
    available: 7
    base_rate: 99.90
    currency: EUR
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := readInventory(path, "hotel-1")
	if err != nil {
		t.Fatalf("readInventory: %v", err)
	}
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }
	row := model.LocalInventory{PropertyID: "hotel-1", RoomTypeID: "dbl", Total: 12, Available: 7, BaseRate: decimal.RequireFromString("99.90"), Currency: "EUR"}
	first, second := row, row
	first.Date, second.Date = day(20), day(21)
	if diff := cmp.Diff([]model.LocalInventory{first, second}, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadInventory_Rejects(t *testing.T) {
	tests := map[string]string{
		"no room type":      "rows:\n  - start: 2026-10-20\n    total: 2\n",
		"available > total": "rows:\n  - room_type_id: dbl\n    start: 2026-10-20\n    total: 2\n    available: 3\n",
		"end before start":  "rows:\n  - room_type_id: dbl\n    start: 2026-10-20\n    end: 2026-10-19\n    total: 2\n",
		"missing start":     "rows:\n  - room_type_id: dbl\n    total: 2\n",
		"unknown key":       "rows:\n  - room: dbl\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "inventory.yaml")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := readInventory(path, "hotel-1"); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestUTCClock(t *testing.T) {
	local := time.Date(2026, 10, 14, 0, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	got := utcClock{clockwork.NewFakeClockAt(local)}.Now()
	if got.Location() != time.UTC || !got.Equal(local) {
		t.Errorf("Now = %v, want %v in UTC", got, local)
	}
	if d := model.DateKey(got); d != "2026-10-13" {
		t.Errorf("calendar day = %s, want 2026-10-13", d)
	}
}
