package harness

import "github.com/roach88/lobbysync/internal/engine"

// TraceEvent records one executed step and what came of it.
type TraceEvent struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Replica string `json:"replica,omitempty"`
	Outcome string `json:"outcome"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every step behaved as declared and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Replicas lists replica names in declaration order.
	Replicas []string `json:"replicas"`

	// Views holds each replica's final snapshot. Replicas that never
	// started are absent.
	Views map[string]*engine.View `json:"-"`

	// Notifications holds everything each replica surfaced, in order.
	Notifications map[string][]engine.Notification `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Errors:        []string{},
		Views:         make(map[string]*engine.View),
		Notifications: make(map[string][]engine.Notification),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step record.
func (r *Result) AddTrace(step int, action, replica, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:    step,
		Action:  action,
		Replica: replica,
		Outcome: outcome,
	})
}
