package operations

import (
	"context"
	"sync"
	"time"
)

// Step is one pass of the cleaning pipeline. Steps communicate through the
// operation context: each reads the dataset left by its predecessor and
// stores the transformed one back.
type Step interface {
	// ID returns the stable identifier used for registration and selection.
	ID() string

	// Name returns the display name.
	Name() string

	// Execute runs the pass against the operation state.
	Execute(ctx context.Context, state *OperationState) error

	// Validate reports whether the step can run with the current state.
	Validate(state *OperationState) error

	// GetDependencies lists step IDs that must complete first.
	GetDependencies() []string
}

// StepStatus is the lifecycle phase of a step within a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState is the runtime record of one step within an operation.
type StepState struct {
	mu        sync.RWMutex           `json:"-"`
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Progress  float64                `json:"progress"`
	Message   string                 `json:"message"`
	Error     error                  `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState returns a pending step record.
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the step active.
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusActive
	s.Progress = 0
}

// Complete marks the step finished successfully.
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(StepStatusCompleted)
	s.Progress = 100
}

// Fail marks the step finished with err.
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(StepStatusFailed)
	s.Error = err
}

// Skip marks the step as not run, recording the reason.
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(StepStatusSkipped)
	s.Message = reason
}

// finish stamps the end time. Caller holds the lock.
func (s *StepState) finish(status StepStatus) {
	now := time.Now()
	s.EndTime = &now
	s.Status = status
}

// SetMetadata attaches a result value, such as cells filled, to the step.
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
}

// Duration returns how long the step has run, or ran.
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// BaseStep carries the identity and dependency list shared by every
// pipeline step, so concrete steps only implement Execute and, where
// needed, Validate.
type BaseStep struct {
	id           string
	name         string
	dependencies []string
}

func NewBaseStep(id, name string, dependencies []string) BaseStep {
	return BaseStep{id: id, name: name, dependencies: dependencies}
}

func (b *BaseStep) ID() string   { return b.id }
func (b *BaseStep) Name() string { return b.name }

func (b *BaseStep) GetDependencies() []string {
	if b.dependencies == nil {
		return []string{}
	}
	return b.dependencies
}

// Validate passes by default; steps with preconditions override it.
func (b *BaseStep) Validate(state *OperationState) error { return nil }
