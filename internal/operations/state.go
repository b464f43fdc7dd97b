package operations

import (
	"sync"
	"time"
)

// OperationStatus is the lifecycle phase of a pipeline run.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

// Context keys used by pipeline steps to hand data to each other.
const (
	ContextKeyDataset   = "dataset"
	ContextKeyReport    = "report"
	ContextKeyInputPath = "input_path"
)

// OperationState is the shared record of one pipeline run: overall status,
// per-step states, and the context map the steps thread the dataset and
// cleaning report through. All access is synchronized so HTTP readers can
// poll while the run is in flight.
type OperationState struct {
	mu sync.RWMutex

	ID        string          `json:"id"`
	Status    OperationStatus `json:"status"`
	StartTime time.Time       `json:"start_time"`
	EndTime   *time.Time      `json:"end_time,omitempty"`

	Steps map[string]*StepState `json:"steps"`

	// Context carries inter-step values (dataset, report, input path).
	Context map[string]interface{} `json:"context"`

	// Config carries per-run overrides (threshold, neighbors).
	Config map[string]interface{} `json:"config"`

	Error error `json:"error,omitempty"`
}

// NewOperationState returns a pending run record with the given ID.
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Context:   make(map[string]interface{}),
		Config:    make(map[string]interface{}),
	}
}

// Start marks the run as executing and resets the start time.
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the run finished successfully.
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish(OperationStatusCompleted)
}

// Fail marks the run finished with err.
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish(OperationStatusFailed)
	p.Error = err
}

// Cancel marks the run as cancelled.
func (p *OperationState) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish(OperationStatusCancelled)
}

// finish stamps the end time. Caller holds the lock.
func (p *OperationState) finish(status OperationStatus) {
	now := time.Now()
	p.EndTime = &now
	p.Status = status
}

// GetStep returns the runtime record for one step, or nil.
func (p *OperationState) GetStep(stepID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stepID]
}

// SetStep installs the runtime record for one step.
func (p *OperationState) SetStep(stepID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stepID] = state
}

// GetContext reads an inter-step value.
func (p *OperationState) GetContext(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Context[key]
	return val, ok
}

// SetContext stores an inter-step value.
func (p *OperationState) SetContext(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Context[key] = value
}

// GetConfig reads a per-run override.
func (p *OperationState) GetConfig(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Config[key]
	return val, ok
}

// SetConfig stores a per-run override.
func (p *OperationState) SetConfig(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Config[key] = value
}

// Duration returns the elapsed run time, final once the run has ended.
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// Snapshot copies the state for readers while the run keeps mutating the
// original. Step records are deep-copied; context and config values are
// shared, so callers must treat them as read-only.
func (p *OperationState) Snapshot() *OperationState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clone := &OperationState{
		ID:        p.ID,
		Status:    p.Status,
		StartTime: p.StartTime,
		Steps:     make(map[string]*StepState, len(p.Steps)),
		Context:   make(map[string]interface{}, len(p.Context)),
		Config:    make(map[string]interface{}, len(p.Config)),
		Error:     p.Error,
	}
	if p.EndTime != nil {
		end := *p.EndTime
		clone.EndTime = &end
	}

	for id, step := range p.Steps {
		step.mu.RLock()
		cp := &StepState{
			ID:        step.ID,
			Name:      step.Name,
			Status:    step.Status,
			StartTime: step.StartTime,
			EndTime:   step.EndTime,
			Progress:  step.Progress,
			Message:   step.Message,
			Error:     step.Error,
			Metadata:  make(map[string]interface{}, len(step.Metadata)),
		}
		for k, v := range step.Metadata {
			cp.Metadata[k] = v
		}
		step.mu.RUnlock()
		clone.Steps[id] = cp
	}

	for k, v := range p.Context {
		clone.Context[k] = v
	}
	for k, v := range p.Config {
		clone.Config[k] = v
	}
	return clone
}
