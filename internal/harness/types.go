package harness

// TraceEvent records what happened to one scenario step.
type TraceEvent struct {
	Step     int      `json:"step"`
	TxnType  string   `json:"txn_type"`
	Accounts []string `json:"accounts,omitempty"`
	Verdict  string   `json:"verdict,omitempty"`
	Status   string   `json:"status"`
	Reason   string   `json:"reason,omitempty"`

	// VoteIgnored is set when the first vote was dropped and re-sent.
	VoteIgnored bool `json:"vote_ignored,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Balances maps every stored account to its final balance.
	Balances map[string]string `json:"balances"`

	// Receipts counts receipt hook invocations by verdict.
	Receipts map[string]int `json:"receipts"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Balances: make(map[string]string),
		Receipts: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
