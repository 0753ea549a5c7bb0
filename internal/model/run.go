package model

import "time"

// RunStatus represents the current state of a job run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one invocation of a job over an input store.
type Run struct {
	ID        string     `json:"id"`
	Job       string     `json:"job"`
	Input     string     `json:"input"`
	Output    string     `json:"output"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Processed   int     `json:"processed"`
	Skipped     int     `json:"skipped"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	Error       string  `json:"error,omitempty"`
}

// PhaseStatus represents the state of a single record/stage step.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// RunPhase is one stage applied to one record within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseResult holds the outcome of a record/stage step.
type PhaseResult struct {
	Name       string      `json:"name"`
	Status     PhaseStatus `json:"status"`
	Model      string      `json:"model"`
	Duration   int64       `json:"duration_ms"`
	TokenUsage TokenUsage  `json:"token_usage"`
	Cost       float64     `json:"cost"`
	Error      string      `json:"error,omitempty"`
}

// TokenUsage tracks token consumption for a single completion.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	Searches         int64 `json:"searches,omitempty"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		Searches:         u.Searches + o.Searches,
	}
}
