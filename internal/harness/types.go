package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every check passed.
	Pass bool `json:"pass"`

	// Checks holds one result per scenario check, in order.
	Checks []CheckResult `json:"checks"`

	// Errors collects the failure messages of all checks.
	Errors []string `json:"errors,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name  string `json:"name"`
	Left  string `json:"left"`
	Right string `json:"right"`

	// Equal is left.IsEqual(right).
	Equal bool `json:"equal"`

	// Deltas are left.Diff(right), in diff order.
	Deltas []string `json:"deltas"`

	// Followed maps each followed belongsTo slot to the resolved target.
	Followed map[string]string `json:"followed,omitempty"`

	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Checks: []CheckResult{},
		Errors: []string{},
	}
}

// AddCheck records a check result; a failed check fails the scenario.
func (r *Result) AddCheck(c CheckResult) {
	r.Checks = append(r.Checks, c)
	if !c.Pass {
		r.Pass = false
		for _, e := range c.Errors {
			r.Errors = append(r.Errors, c.Name+": "+e)
		}
	}
}

func (c *CheckResult) addError(err string) {
	c.Errors = append(c.Errors, err)
	c.Pass = false
}
