package cleaning

import (
	"errors"
	"reflect"
	"testing"
)

func mustDefaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	return c
}

func TestCompileDeepKitchenBath(t *testing.T) {
	c := mustDefaultCatalog(t)

	flow, err := Compile(c, ModeDeep, []string{"kitchen", "bath"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	wantKinds := []PhaseKind{PhasePrep, PhaseGlobalBase, PhaseZone, PhaseZone, PhaseFloors, PhaseFinish}
	if got := flow.Kinds(); !reflect.DeepEqual(got, wantKinds) {
		t.Fatalf("kinds = %v, want %v", got, wantKinds)
	}

	prep := flow.Phases[0].Tasks
	if len(prep) != 2 || prep[0].ZoneID != "kitchen" || prep[1].ZoneID != "bath" {
		t.Fatalf("prep tasks out of selection order: %+v", prep)
	}
	for _, task := range prep {
		if !task.RequiresDeepMode {
			t.Errorf("prep task %s should require deep mode", task.ID)
		}
	}

	if flow.Phases[2].ZoneID != "kitchen" || flow.Phases[3].ZoneID != "bath" {
		t.Fatalf("zone phases = %q, %q", flow.Phases[2].ZoneID, flow.Phases[3].ZoneID)
	}
	for _, task := range flow.Phases[2].Tasks {
		if task.ID == "kitchen-soak-grates" {
			t.Errorf("prep task repeated inside zone phase")
		}
	}
	if got := flow.TotalTasks(); got != 17 {
		t.Errorf("TotalTasks = %d, want 17", got)
	}
}

func TestCompileMaintenanceSkipsDeepTasks(t *testing.T) {
	c := mustDefaultCatalog(t)

	flow, err := Compile(c, ModeMaintenance, []string{"kitchen"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	wantKinds := []PhaseKind{PhaseGlobalBase, PhaseZone, PhaseFloors, PhaseFinish}
	if got := flow.Kinds(); !reflect.DeepEqual(got, wantKinds) {
		t.Fatalf("kinds = %v, want %v", got, wantKinds)
	}
	for _, p := range flow.Phases {
		for _, task := range p.Tasks {
			if task.RequiresDeepMode {
				t.Errorf("maintenance flow contains deep task %s", task.ID)
			}
		}
	}
}

func TestCompileMaintenanceNeverDeepForAnySelection(t *testing.T) {
	c := mustDefaultCatalog(t)
	zones := c.Zones()

	// Every non-empty prefix and every single zone.
	var selections [][]string
	for i := range zones {
		selections = append(selections, []string{zones[i].ID})
		var prefix []string
		for _, z := range zones[:i+1] {
			prefix = append(prefix, z.ID)
		}
		selections = append(selections, prefix)
	}

	for _, sel := range selections {
		flow, err := Compile(c, ModeMaintenance, sel)
		if err != nil {
			t.Fatalf("Compile(%v): %v", sel, err)
		}
		for _, p := range flow.Phases {
			if p.Kind == PhasePrep {
				t.Errorf("Compile(%v) emitted a prep phase in maintenance mode", sel)
			}
			for _, task := range p.Tasks {
				if task.RequiresDeepMode {
					t.Errorf("Compile(%v) contains deep task %s", sel, task.ID)
				}
			}
		}
	}
}

func TestCompilePhaseOrderFollowsSelection(t *testing.T) {
	c := mustDefaultCatalog(t)

	for _, mode := range []Mode{ModeMaintenance, ModeDeep} {
		sel := []string{"chaos", "bedroom", "kitchen"}
		flow, err := Compile(c, mode, sel)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		var gotZones []string
		seenFloors := false
		for i, p := range flow.Phases {
			if p.Kind == PhaseZone {
				if seenFloors {
					t.Errorf("%s: zone phase after floors", mode)
				}
				gotZones = append(gotZones, p.ZoneID)
			}
			if p.Kind == PhaseFloors {
				seenFloors = true
			}
			if len(p.Tasks) == 0 {
				t.Errorf("%s: phase %d (%s) is empty", mode, i, p.Kind)
			}
		}
		if !reflect.DeepEqual(gotZones, sel) {
			t.Errorf("%s: zone order = %v, want %v", mode, gotZones, sel)
		}
		if flow.Phases[len(flow.Phases)-1].Kind != PhaseFinish {
			t.Errorf("%s: last phase is %s", mode, flow.Phases[len(flow.Phases)-1].Kind)
		}
	}
}

func TestCompileFloorsOnlyWhenAZoneHasFloors(t *testing.T) {
	c := mustDefaultCatalog(t)

	flow, err := Compile(c, ModeDeep, []string{"chaos"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, p := range flow.Phases {
		if p.Kind == PhaseFloors {
			t.Fatalf("chaos corner has no floors but a floors phase was emitted")
		}
	}

	flow, err = Compile(c, ModeDeep, []string{"kitchen", "bedroom", "hallway"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	floors := 0
	for _, p := range flow.Phases {
		if p.Kind == PhaseFloors {
			floors++
		}
	}
	if floors != 1 {
		t.Errorf("expected one shared floors phase, got %d", floors)
	}
}

func TestCompileErrors(t *testing.T) {
	c := mustDefaultCatalog(t)

	tests := []struct {
		name  string
		zones []string
		want  error
	}{
		{"empty", nil, ErrNoZonesSelected},
		{"duplicate", []string{"kitchen", "bath", "kitchen"}, ErrDuplicateZone},
		{"duplicate after normalising", []string{"Kitchen", " kitchen"}, ErrDuplicateZone},
		{"unknown", []string{"garage"}, ErrUnknownZone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(c, ModeDeep, tt.zones)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Compile(%v) error = %v, want %v", tt.zones, err, tt.want)
			}
		})
	}
}

func TestCompiledFlowIsIndependentOfCatalog(t *testing.T) {
	c := mustDefaultCatalog(t)

	first, err := Compile(c, ModeMaintenance, []string{"kitchen"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	first.Phases[0].Tasks[0].Label = "scribbled"

	second, err := Compile(c, ModeMaintenance, []string{"kitchen"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if second.Phases[0].Tasks[0].Label == "scribbled" {
		t.Fatalf("mutating a compiled flow leaked into the catalog")
	}
}
