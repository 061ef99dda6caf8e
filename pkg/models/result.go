package models

import "time"

// ValidationResult is the outcome of applying one rule to one output.
type ValidationResult struct {
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// StepResult records one executed step. Tokens is nil when the step halted
// the run; Validation is nil when the step had no rule.
type StepResult struct {
	StepID     string            `json:"step_id,omitempty"`
	Output     string            `json:"output"`
	Tokens     *int              `json:"tokens,omitempty"`
	Validation *ValidationResult `json:"validation"`
	Error      string            `json:"error,omitempty"`
}

// OrchestrationResult is the terminal artifact of one run.
type OrchestrationResult struct {
	RunID           string       `json:"run_id,omitempty"`
	FlowName        string       `json:"flow_name"`
	TargetModel     string       `json:"target_model"`
	StepsExecuted   []StepResult `json:"steps_executed"`
	TotalDurationMs int64        `json:"total_duration_ms"`
	Success         bool         `json:"success"`
	FinalOutput     *string      `json:"final_output,omitempty"`
}

// RunRecord is a persisted run together with its bookkeeping fields.
type RunRecord struct {
	Result      OrchestrationResult `json:"result"`
	RequestedBy string              `json:"requested_by,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}
