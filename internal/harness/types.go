package harness

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`

	// Case is "ok" or the error kind the step failed with.
	Case string `json:"case"`

	// Result holds the observable outcome of a successful step, such as
	// the created flag of a reconciliation. Nil when the step failed.
	Result map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause, invariant and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the user's final state as seen through the session.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
