package model

import "time"

// RunStatus tracks the lifecycle of a persisted analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one execution of the analysis pipeline.
type Run struct {
	ID        string    `json:"id"`
	Study     string    `json:"study"`
	Input     string    `json:"input"`
	Status    RunStatus `json:"status"`
	Strata    int       `json:"strata"`
	Foods     int       `json:"foods"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
