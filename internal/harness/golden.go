package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/entref/internal/value"
)

// Report is the golden snapshot of a scenario run.
type Report struct {
	Name        string
	Description string
	Result      *Result
}

// toValue converts the report to a value.Map for canonical serialization.
func (r Report) toValue() value.Map {
	checks := make(value.List, len(r.Result.Checks))
	for i, c := range r.Result.Checks {
		deltas := make(value.List, len(c.Deltas))
		for j, d := range c.Deltas {
			deltas[j] = value.String(d)
		}

		check := value.Map{
			"name":   value.String(c.Name),
			"left":   value.String(c.Left),
			"right":  value.String(c.Right),
			"equal":  value.Bool(c.Equal),
			"deltas": deltas,
			"pass":   value.Bool(c.Pass),
		}
		if len(c.Followed) > 0 {
			followed := make(value.Map, len(c.Followed))
			for slot, target := range c.Followed {
				followed[slot] = value.String(target)
			}
			check["followed"] = followed
		}
		if len(c.Errors) > 0 {
			errs := make(value.List, len(c.Errors))
			for j, e := range c.Errors {
				errs[j] = value.String(e)
			}
			check["errors"] = errs
		}
		checks[i] = check
	}

	return value.Map{
		"name":        value.String(r.Name),
		"description": value.String(r.Description),
		"pass":        value.Bool(r.Result.Pass),
		"checks":      checks,
	}
}

// MarshalReport renders the report as canonical JSON.
func MarshalReport(r Report) ([]byte, error) {
	return value.MarshalCanonical(r.toValue())
}

// RunWithGolden executes a scenario and compares its report against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, Report{
		Name:        scenario.Name,
		Description: scenario.Description,
		Result:      result,
	})
}

// AssertGolden compares an already computed report against its golden file.
func AssertGolden(t *testing.T, report Report) error {
	t.Helper()

	data, err := MarshalReport(report)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, report.Name, data)
	return nil
}
