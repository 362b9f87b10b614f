package schema

import (
	"slices"
	"strings"
)

// findInheritanceCycles walks every extends chain and returns each loop once,
// as a path that starts and ends on the same type name:
// ["A", "B", "A"].
//
// Each type has at most one parent, so a chain walk with an on-path set is
// enough; no general SCC search is needed. Names are visited in sorted order
// so the output is deterministic.
func findInheritanceCycles(byName map[string]*Type) [][]string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	var cycles [][]string
	done := make(map[string]bool)
	reported := make(map[string]bool)

	for _, start := range names {
		if done[start] {
			continue
		}

		var path []string
		onPath := make(map[string]int)
		for cur := start; cur != ""; {
			if done[cur] {
				break
			}
			if idx, ok := onPath[cur]; ok {
				loop := append(slices.Clone(path[idx:]), cur)
				key := cycleKey(loop[:len(loop)-1])
				if !reported[key] {
					reported[key] = true
					cycles = append(cycles, loop)
				}
				break
			}
			onPath[cur] = len(path)
			path = append(path, cur)

			t, ok := byName[cur]
			if !ok {
				break
			}
			cur = t.Extends
		}

		for _, name := range path {
			done[name] = true
		}
	}

	return cycles
}

// cycleKey identifies a loop independent of its starting member.
func cycleKey(members []string) string {
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	return strings.Join(sorted, "\x00")
}
