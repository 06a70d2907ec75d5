package cleaning

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Segment names the part of the catalog a task comes from.
type Segment string

const (
	SegmentPrep   Segment = "prep"
	SegmentBase   Segment = "base"
	SegmentZone   Segment = "zone"
	SegmentFloors Segment = "floors"
	SegmentFinish Segment = "finish"
)

type catalogFile struct {
	Base   []taskEntry `yaml:"base"`
	Floors []taskEntry `yaml:"floors"`
	Finish []taskEntry `yaml:"finish"`
	Zones  []zoneEntry `yaml:"zones"`
}

type zoneEntry struct {
	ID     string      `yaml:"id"`
	Label  string      `yaml:"label"`
	Floors bool        `yaml:"floors"`
	Prep   []taskEntry `yaml:"prep"`
	Tasks  []taskEntry `yaml:"tasks"`
}

type taskEntry struct {
	ID      string `yaml:"id"`
	Label   string `yaml:"label"`
	Seconds int    `yaml:"seconds"`
	Deep    bool   `yaml:"deep"`
}

// registryKey addresses one list in the catalog: a segment, the zone it belongs
// to ("" for global segments) and the mode it was filtered for.
type registryKey struct {
	segment Segment
	zone    string
	mode    Mode
}

// Zone describes a selectable area.
type Zone struct {
	ID     string
	Label  string
	Floors bool
}

// Catalog is the static registry of chores. It is built once and never mutated.
type Catalog struct {
	zones []Zone
	index map[string]int
	lists map[registryKey][]TaskDescriptor
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalogYAML(defaultCatalogYAML)
}

// LoadCatalogFile reads a catalog YAML file from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return ParseCatalogYAML(data)
}

// ParseCatalogYAML decodes and validates a catalog document.
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog: document is empty")
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return file.build(), nil
}

func (f catalogFile) validate() error {
	if len(f.Base) == 0 {
		return fmt.Errorf("catalog: base segment is empty")
	}
	if len(f.Finish) == 0 {
		return fmt.Errorf("catalog: finish segment is empty")
	}
	if len(f.Zones) == 0 {
		return fmt.Errorf("catalog: no zones defined")
	}
	seenTask := make(map[string]bool)
	checkTasks := func(where string, tasks []taskEntry) error {
		for _, t := range tasks {
			id := strings.TrimSpace(t.ID)
			if id == "" {
				return fmt.Errorf("catalog: %s: task without id", where)
			}
			if seenTask[id] {
				return fmt.Errorf("catalog: duplicate task id %q", id)
			}
			seenTask[id] = true
			if strings.TrimSpace(t.Label) == "" {
				return fmt.Errorf("catalog: task %q has no label", id)
			}
			if t.Seconds < 0 {
				return fmt.Errorf("catalog: task %q has negative estimate", id)
			}
		}
		return nil
	}
	for _, seg := range []struct {
		name  string
		tasks []taskEntry
	}{{"base", f.Base}, {"floors", f.Floors}, {"finish", f.Finish}} {
		if err := checkTasks(seg.name, seg.tasks); err != nil {
			return err
		}
	}
	seenZone := make(map[string]bool)
	for _, z := range f.Zones {
		id := trimZone(z.ID)
		if id == "" {
			return fmt.Errorf("catalog: zone without id")
		}
		if seenZone[id] {
			return fmt.Errorf("catalog: duplicate zone %q", id)
		}
		seenZone[id] = true
		if len(z.Tasks) == 0 {
			return fmt.Errorf("catalog: zone %q has no tasks", id)
		}
		if err := checkTasks("zone "+id, z.Prep); err != nil {
			return err
		}
		if err := checkTasks("zone "+id, z.Tasks); err != nil {
			return err
		}
	}
	return nil
}

func (f catalogFile) build() *Catalog {
	c := &Catalog{
		index: make(map[string]int),
		lists: make(map[registryKey][]TaskDescriptor),
	}
	put := func(seg Segment, zone string, entries []taskEntry, forceDeep bool) {
		for _, mode := range []Mode{ModeMaintenance, ModeDeep} {
			key := registryKey{segment: seg, zone: zone, mode: mode}
			list := []TaskDescriptor{}
			for _, e := range entries {
				deep := e.Deep || forceDeep
				if deep && mode != ModeDeep {
					continue
				}
				list = append(list, TaskDescriptor{
					ID:               strings.TrimSpace(e.ID),
					ZoneID:           zone,
					Label:            strings.TrimSpace(e.Label),
					EstimatedSeconds: e.Seconds,
					RequiresDeepMode: deep,
				})
			}
			c.lists[key] = list
		}
	}
	put(SegmentBase, "", f.Base, false)
	put(SegmentFloors, "", f.Floors, false)
	put(SegmentFinish, "", f.Finish, false)
	for i, z := range f.Zones {
		id := trimZone(z.ID)
		label := strings.TrimSpace(z.Label)
		if label == "" {
			label = id
		}
		c.zones = append(c.zones, Zone{ID: id, Label: label, Floors: z.Floors})
		c.index[id] = i
		// Prep tasks only make sense ahead of a deep clean.
		put(SegmentPrep, id, z.Prep, true)
		put(SegmentZone, id, z.Tasks, false)
	}
	return c
}

// Zones lists selectable zones in catalog order.
func (c *Catalog) Zones() []Zone {
	return append([]Zone(nil), c.zones...)
}

// Zone looks up one zone by id.
func (c *Catalog) Zone(id string) (Zone, bool) {
	i, ok := c.index[trimZone(id)]
	if !ok {
		return Zone{}, false
	}
	return c.zones[i], true
}

// TasksFor returns the ordered chores of a zone for the given mode: its prep
// tasks (deep mode only) followed by its own tasks. Deep-only tasks are
// dropped in maintenance mode.
func (c *Catalog) TasksFor(zoneID string, mode Mode) ([]TaskDescriptor, error) {
	zoneID = trimZone(zoneID)
	if _, ok := c.index[zoneID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, zoneID)
	}
	prep := c.segment(SegmentPrep, zoneID, mode)
	own := c.segment(SegmentZone, zoneID, mode)
	out := make([]TaskDescriptor, 0, len(prep)+len(own))
	out = append(out, prep...)
	return append(out, own...), nil
}

// segment returns a copy of one registry list.
func (c *Catalog) segment(seg Segment, zone string, mode Mode) []TaskDescriptor {
	return append([]TaskDescriptor(nil), c.lists[registryKey{segment: seg, zone: zone, mode: mode}]...)
}

// isSegment reports whether the task id is listed under seg for the zone.
func (c *Catalog) isSegment(seg Segment, zone string, mode Mode, id string) bool {
	for _, t := range c.lists[registryKey{segment: seg, zone: zone, mode: mode}] {
		if t.ID == id {
			return true
		}
	}
	return false
}
