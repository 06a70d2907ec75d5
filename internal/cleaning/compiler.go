package cleaning

import (
	"fmt"
	"strings"
)

// Compile builds the ordered flow for a mode and an ordered selection of zones:
// Prep (deep only), GlobalBase, one Zone phase per selected zone, Floors (if any
// selected zone has floors) and Finish. Empty optional phases are omitted.
func Compile(c *Catalog, mode Mode, zones []string) (Flow, error) {
	if mode != ModeMaintenance && mode != ModeDeep {
		return Flow{}, fmt.Errorf("unknown cleaning mode %q", mode)
	}
	selected, err := normalizeZones(c, zones)
	if err != nil {
		return Flow{}, err
	}

	var flow Flow
	if mode == ModeDeep {
		var prep []TaskDescriptor
		for _, z := range selected {
			prep = append(prep, c.segment(SegmentPrep, z, mode)...)
		}
		if len(prep) > 0 {
			flow.Phases = append(flow.Phases, Phase{Kind: PhasePrep, Tasks: prep})
		}
	}

	flow.Phases = append(flow.Phases, Phase{Kind: PhaseGlobalBase, Tasks: c.segment(SegmentBase, "", mode)})

	needFloors := false
	for _, z := range selected {
		tasks, err := c.TasksFor(z, mode)
		if err != nil {
			return Flow{}, err
		}
		own := make([]TaskDescriptor, 0, len(tasks))
		for _, t := range tasks {
			if t.ZoneID != z || c.isSegment(SegmentPrep, z, mode, t.ID) {
				continue
			}
			own = append(own, t)
		}
		if len(own) > 0 {
			flow.Phases = append(flow.Phases, Phase{Kind: PhaseZone, ZoneID: z, Tasks: own})
		}
		if zone, _ := c.Zone(z); zone.Floors {
			needFloors = true
		}
	}

	if needFloors {
		if floors := c.segment(SegmentFloors, "", mode); len(floors) > 0 {
			flow.Phases = append(flow.Phases, Phase{Kind: PhaseFloors, Tasks: floors})
		}
	}

	flow.Phases = append(flow.Phases, Phase{Kind: PhaseFinish, Tasks: c.segment(SegmentFinish, "", mode)})
	return flow, nil
}

func normalizeZones(c *Catalog, zones []string) ([]string, error) {
	if len(zones) == 0 {
		return nil, ErrNoZonesSelected
	}
	seen := make(map[string]bool, len(zones))
	out := make([]string, 0, len(zones))
	for _, raw := range zones {
		z := trimZone(raw)
		if _, ok := c.Zone(z); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownZone, raw)
		}
		if seen[z] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateZone, z)
		}
		seen[z] = true
		out = append(out, z)
	}
	return out, nil
}

func trimZone(z string) string {
	return strings.ToLower(strings.TrimSpace(z))
}
