package operations

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request describes a pipeline run to execute.
type Request struct {
	// ID names the operation. Empty means a UUID is assigned.
	ID string

	// InputPath is the CSV or XLSX file to clean.
	InputPath string

	// Threshold overrides the missingness threshold when non-zero.
	Threshold float64

	// Neighbors overrides the KNN k when non-zero.
	Neighbors int

	// Steps restricts the run to the named step IDs, in dependency order.
	// Empty means the full pipeline.
	Steps []string
}

// ProgressCallback receives progress updates during an operation run.
type ProgressCallback func(operationID, stepID string, progress float64, message string)

// Manager executes registered steps sequentially and tracks operation state.
// Only one operation runs at a time; the cleaned outputs are shared files.
type Manager struct {
	registry *Registry
	tracer   *OperationTracer
	logger   *slog.Logger
	timeout  time.Duration

	mu         sync.RWMutex
	operations map[string]*OperationState
	running    bool
	pending    *pendingRun
	onProgress ProgressCallback
}

// pendingRun holds an accepted operation between Accept and Run.
type pendingRun struct {
	state *OperationState
	steps []Step
}

// NewManager creates an operation manager
func NewManager(registry *Registry, logger *slog.Logger, timeout time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:   registry,
		tracer:     NewOperationTracer(),
		logger:     logger.With(slog.String("component", "operation_manager")),
		timeout:    timeout,
		operations: make(map[string]*OperationState),
	}
}

// SetProgressCallback registers a sink for step progress updates
func (m *Manager) SetProgressCallback(cb ProgressCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProgress = cb
}

// Accept validates the request, reserves the single running slot, and
// registers a pending operation state. The returned state's ID is
// pollable immediately; Run performs the actual execution.
func (m *Manager) Accept(req Request) (*OperationState, error) {
	steps, err := m.selectSteps(req.Steps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, ErrOperationRunning
	}
	m.running = true

	operationID := req.ID
	if operationID == "" {
		operationID = uuid.NewString()
	}
	state := NewOperationState(operationID)
	state.SetContext(ContextKeyInputPath, req.InputPath)
	if req.Threshold != 0 {
		state.SetConfig(ConfigKeyThreshold, req.Threshold)
	}
	if req.Neighbors != 0 {
		state.SetConfig(ConfigKeyNeighbors, req.Neighbors)
	}
	for _, step := range steps {
		state.SetStep(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	m.operations[state.ID] = state
	m.pending = &pendingRun{state: state, steps: steps}
	return state, nil
}

// Execute accepts and runs the request in one call. It blocks until the
// operation finishes, fails, or the context is done.
func (m *Manager) Execute(ctx context.Context, req Request) (*OperationState, error) {
	state, err := m.Accept(req)
	if err != nil {
		return nil, err
	}
	return m.Run(ctx, state.ID)
}

// Run executes a previously accepted operation and returns its final state.
func (m *Manager) Run(ctx context.Context, id string) (*OperationState, error) {
	m.mu.Lock()
	if m.pending == nil || m.pending.state.ID != id {
		m.mu.Unlock()
		return nil, ErrOperationNotFound
	}
	state, steps := m.pending.state, m.pending.steps
	m.pending = nil
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	ctx, opSpan := m.tracer.TraceOperationExecution(ctx, state.ID)
	defer opSpan.End()

	state.Start()
	m.logger.InfoContext(ctx, "operation started",
		slog.String("operation_id", state.ID),
		slog.Int("steps", len(steps)))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			cancelErr := NewCancellationError(step.ID())
			state.GetStep(step.ID()).Skip("operation cancelled")
			state.Cancel()
			m.tracer.RecordOperationCompletion(opSpan, state.Duration(), state.Status)
			return state, cancelErr
		}

		if err := m.executeStep(ctx, state, step); err != nil {
			state.Fail(err)
			m.tracer.RecordOperationCompletion(opSpan, state.Duration(), state.Status)
			m.logger.ErrorContext(ctx, "operation failed",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
			return state, err
		}
	}

	state.Complete()
	m.tracer.RecordOperationCompletion(opSpan, state.Duration(), state.Status)
	m.logger.InfoContext(ctx, "operation completed",
		slog.String("operation_id", state.ID),
		slog.Duration("duration", state.Duration()))

	return state, nil
}

// executeStep runs one step with tracing and state bookkeeping.
func (m *Manager) executeStep(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStep(step.ID())
	stepCtx, span := m.tracer.TraceStepExecution(ctx, state.ID, step.ID())
	defer span.End()

	if err := step.Validate(state); err != nil {
		wrapped := WrapError(err, step.ID(), "validation failed")
		stepState.Fail(wrapped)
		m.tracer.RecordStepCompletion(span, step.ID(), stepState.Duration(), wrapped)
		return wrapped
	}

	stepState.Start()
	m.notifyProgress(state.ID, step.ID(), 0, "started")

	m.logger.InfoContext(stepCtx, "step started",
		slog.String("operation_id", state.ID),
		slog.String("step", step.ID()))

	err := step.Execute(stepCtx, state)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = NewCancellationError(step.ID())
		} else {
			err = WrapError(err, step.ID(), "execution failed")
		}
		stepState.Fail(err)
		m.tracer.RecordStepCompletion(span, step.ID(), stepState.Duration(), err)
		m.notifyProgress(state.ID, step.ID(), stepState.Progress, "failed")
		return err
	}

	stepState.Complete()
	m.tracer.RecordStepCompletion(span, step.ID(), stepState.Duration(), nil)
	m.notifyProgress(state.ID, step.ID(), 100, "completed")

	m.logger.InfoContext(stepCtx, "step completed",
		slog.String("operation_id", state.ID),
		slog.String("step", step.ID()),
		slog.Duration("duration", stepState.Duration()))

	return nil
}

// selectSteps resolves the requested subset in dependency order.
func (m *Manager) selectSteps(ids []string) ([]Step, error) {
	ordered, err := m.registry.GetDependencyOrder()
	if err != nil {
		return nil, WrapError(err, "", "invalid step registry")
	}
	if len(ids) == 0 {
		return ordered, nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !m.registry.Has(id) {
			return nil, NewValidationError(id, "unknown step")
		}
		wanted[id] = true
	}

	steps := make([]Step, 0, len(ids))
	for _, step := range ordered {
		if wanted[step.ID()] {
			steps = append(steps, step)
		}
	}
	return steps, nil
}

func (m *Manager) notifyProgress(operationID, stepID string, progress float64, message string) {
	m.mu.RLock()
	cb := m.onProgress
	m.mu.RUnlock()
	if cb != nil {
		cb(operationID, stepID, progress, message)
	}
}

// GetOperation returns a snapshot of the operation with the given ID
func (m *Manager) GetOperation(id string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.operations[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return state.Snapshot(), nil
}

// ListOperations returns snapshots of all known operations, newest first
func (m *Manager) ListOperations() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*OperationState, 0, len(m.operations))
	for _, state := range m.operations {
		list = append(list, state.Snapshot())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartTime.After(list[j].StartTime)
	})
	return list
}

// IsRunning reports whether an operation is currently executing
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
