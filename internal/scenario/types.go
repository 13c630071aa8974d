package scenario

// Expectation is the asserted end state of one bulk run.
type Expectation struct {
	Status  string   `yaml:"status"`
	Entries []string `yaml:"entries,omitempty"`
	Fixed   []string `yaml:"fixed,omitempty"`
}

// Case is one bulk run within a scenario.
type Case struct {
	Targets      []string `yaml:"targets"`
	MasterReason string   `yaml:"master_reason,omitempty"`
	// FailAt overrides the configured failing step. -1 means no step fails.
	FailAt *int `yaml:"fail_at,omitempty"`
	// AbortAfter aborts the run while step AbortAfter (1-based) is in flight.
	AbortAfter int         `yaml:"abort_after,omitempty"`
	Expect     Expectation `yaml:"expect"`
}

// Scenario is a named collection of bulk run cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one case.
type CaseResult struct {
	Index    int      `json:"index"`
	Passed   bool     `json:"passed"`
	Targets  int      `json:"targets"`
	Expected string   `json:"expected"`
	Actual   string   `json:"actual"`
	Entries  []string `json:"entries"`
	Fixed    []string `json:"fixed"`
	Reason   string   `json:"reason,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
