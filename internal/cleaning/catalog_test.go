package cleaning

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const smallCatalog = `
base:
  - {id: b1, label: Base one, seconds: 60}
finish:
  - {id: f1, label: Finish one, seconds: 60}
zones:
  - id: Kitchen
    label: Kitchen
    prep:
      - {id: k-prep, label: Soak, seconds: 30}
    tasks:
      - {id: k1, label: Wipe, seconds: 60}
      - {id: k2, label: Scrub, seconds: 60, deep: true}
`

func TestParseCatalogYAML(t *testing.T) {
	c, err := ParseCatalogYAML([]byte(smallCatalog))
	if err != nil {
		t.Fatalf("ParseCatalogYAML: %v", err)
	}

	zone, ok := c.Zone("kitchen")
	if !ok {
		t.Fatalf("zone ids should be case-insensitive")
	}
	if zone.Floors {
		t.Errorf("floors flag should default to false")
	}

	deep, err := c.TasksFor("kitchen", ModeDeep)
	if err != nil {
		t.Fatalf("TasksFor deep: %v", err)
	}
	if got := taskIDs(deep); strings.Join(got, ",") != "k-prep,k1,k2" {
		t.Errorf("deep tasks = %v", got)
	}

	quick, err := c.TasksFor("kitchen", ModeMaintenance)
	if err != nil {
		t.Fatalf("TasksFor maintenance: %v", err)
	}
	if got := taskIDs(quick); strings.Join(got, ",") != "k1" {
		t.Errorf("maintenance tasks = %v", got)
	}
}

func TestTasksForUnknownZone(t *testing.T) {
	c := mustDefaultCatalog(t)
	if _, err := c.TasksFor("attic", ModeDeep); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("expected ErrUnknownZone, got %v", err)
	}
}

func TestParseCatalogYAMLRejectsBrokenDocuments(t *testing.T) {
	tests := map[string]string{
		"empty":          "   ",
		"no base":        "finish: [{id: f, label: F}]\nzones: [{id: z, tasks: [{id: t, label: T}]}]",
		"no zones":       "base: [{id: b, label: B}]\nfinish: [{id: f, label: F}]",
		"duplicate task": "base: [{id: x, label: B}]\nfinish: [{id: x, label: F}]\nzones: [{id: z, tasks: [{id: t, label: T}]}]",
		"empty zone":     "base: [{id: b, label: B}]\nfinish: [{id: f, label: F}]\nzones: [{id: z}]",
		"missing label":  "base: [{id: b}]\nfinish: [{id: f, label: F}]\nzones: [{id: z, tasks: [{id: t, label: T}]}]",
		"not yaml":       "base: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCatalogYAML([]byte(doc)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(smallCatalog), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	if len(c.Zones()) != 1 {
		t.Errorf("expected one zone, got %d", len(c.Zones()))
	}

	if _, err := LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestDefaultCatalogZones(t *testing.T) {
	c := mustDefaultCatalog(t)
	want := []string{"kitchen", "bath", "bedroom", "hallway", "chaos"}
	var got []string
	for _, z := range c.Zones() {
		got = append(got, z.ID)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("zones = %v, want %v", got, want)
	}
}

func taskIDs(tasks []TaskDescriptor) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
