package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/entref/internal/entity"
)

// AssertionError is returned when a check's expectation fails.
type AssertionError struct {
	Type     string // "deltas" or "equal"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// DeltaLabel renders a delta the way expectations are written.
func DeltaLabel(d entity.Delta) string {
	switch d := d.(type) {
	case entity.AttributeDelta:
		return DeltaAttribute + ":" + d.Name
	case entity.BelongsToDelta:
		return DeltaBelongsTo + ":" + d.Name
	case entity.HasManyDelta:
		return DeltaHasMany + ":" + d.Name
	default:
		return "unknown:" + d.Field()
	}
}

// DeltaLabels renders deltas in diff order.
func DeltaLabels(deltas []entity.Delta) []string {
	labels := make([]string, len(deltas))
	for i, d := range deltas {
		labels[i] = DeltaLabel(d)
	}
	return labels
}

// assertDeltas compares deltas with the expectation as sets.
func assertDeltas(expected, actual []string) error {
	want := slices.Clone(expected)
	got := slices.Clone(actual)
	slices.Sort(want)
	slices.Sort(got)
	want = slices.Compact(want)

	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     "deltas",
		Expected: formatList(want),
		Actual:   formatList(got),
	}
}

// assertEqual compares the identity comparison with the expectation.
func assertEqual(expected *bool, actual bool) error {
	if expected == nil || *expected == actual {
		return nil
	}
	return &AssertionError{
		Type:     "equal",
		Expected: fmt.Sprintf("%t", *expected),
		Actual:   fmt.Sprintf("%t", actual),
	}
}

func formatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}
