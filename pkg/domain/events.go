package domain

import (
	"context"
	"time"
)

// RunState is a state of the orchestration state machine.
type RunState string

const (
	StateIdle          RunState = "idle"
	StateConnected     RunState = "connected"
	StateLoaded        RunState = "loaded"
	StateAssetResolved RunState = "asset_resolved"
	StatePatched       RunState = "patched"
	StateSubmitted     RunState = "submitted"
	StatePolling       RunState = "polling"
	StateCompleted     RunState = "completed"
	StateFailed        RunState = "failed"
	StateCancelled     RunState = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// StateEvent describes one transition of a run.
type StateEvent struct {
	Timestamp time.Time `json:"timestamp"`
	From      RunState  `json:"from"`
	To        RunState  `json:"to"`
	JobID     string    `json:"job_id,omitempty"`
	Err       error     `json:"-"`
}

// PollEvent is emitted on every poll tick that found no record yet.
type PollEvent struct {
	Timestamp time.Time  `json:"timestamp"`
	JobID     string     `json:"job_id"`
	Attempt   int        `json:"attempt"`
	Queue     QueueState `json:"queue"`
	QueueErr  error      `json:"-"`
}

// LifecycleHooks defines callbacks for run observability.
type LifecycleHooks struct {
	OnStateChange func(context.Context, *StateEvent)
	OnPoll        func(context.Context, *PollEvent)
	OnDownload    func(context.Context, OutputFile, string)
}
