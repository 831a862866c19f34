package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	records := []table.Record{
		{"Health": 12.5, "Energy": 8.0, "Rarity": "Rank 0", "Timestamp": "2024-01-02 03:04:05"},
		{"Health": 40.0, "Energy": 31.2, "Rarity": "Rank 3", "Timestamp": "2024-01-02 03:04:06"},
	}
	tbl, err := table.FromRecords(records, "Health", "Energy", "Rarity", "Timestamp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tbl
}

func TestChartSpec(t *testing.T) {
	spec, err := Chart(sampleTable(t), "Health", "Energy", "Rarity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := spec.JSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded["$schema"] != SchemaURL {
		t.Fatalf("unexpected schema %v", decoded["$schema"])
	}
	mark := decoded["mark"].(map[string]any)
	if mark["type"] != "circle" {
		t.Fatalf("expected circle mark, got %v", mark["type"])
	}
	enc := decoded["encoding"].(map[string]any)
	if x := enc["x"].(map[string]any); x["field"] != "Health" || x["type"] != "quantitative" {
		t.Fatalf("unexpected x encoding %v", x)
	}
	if c := enc["color"].(map[string]any); c["field"] != "Rarity" || c["type"] != "nominal" {
		t.Fatalf("unexpected color encoding %v", c)
	}
	values := decoded["data"].(map[string]any)["values"].([]any)
	if len(values) != 2 {
		t.Fatalf("expected 2 points, got %d", len(values))
	}
}

func TestChartTemporalAxis(t *testing.T) {
	spec, err := Chart(sampleTable(t), "Timestamp", "Health", "Rarity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Encoding.X.Type != "temporal" {
		t.Fatalf("expected temporal x, got %s", spec.Encoding.X.Type)
	}
	if got := spec.Data.Values[0]["Timestamp"]; got != "2024-01-02 03:04:05" {
		t.Fatalf("unexpected time value %v", got)
	}
}

func TestChartUnknownColumn(t *testing.T) {
	_, err := Chart(sampleTable(t), "Health", "Sanity", "Rarity")
	if !errors.Is(err, table.ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestChartHTML(t *testing.T) {
	spec, err := Chart(sampleTable(t), "Health", "Energy", "Rarity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := spec.HTML("vis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `<div id="vis">`) || !strings.Contains(out, `"circle"`) {
		t.Fatalf("unexpected embed snippet: %s", out)
	}
}
