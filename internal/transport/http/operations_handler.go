package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"aqcli/internal/cleaning"
	apierrors "aqcli/internal/errors"
	"aqcli/internal/middleware"
	"aqcli/internal/operations"
)

// OperationService is the subset of the operation manager the handler
// depends on.
type OperationService interface {
	Accept(req operations.Request) (*operations.OperationState, error)
	Run(ctx context.Context, id string) (*operations.OperationState, error)
	GetOperation(id string) (*operations.OperationState, error)
	ListOperations() []*operations.OperationState
	IsRunning() bool
}

// OperationsHandler starts pipeline runs and reports their progress.
type OperationsHandler struct {
	service      OperationService
	data         DataService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(service OperationService, data DataService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *OperationsHandler {
	return &OperationsHandler{
		service:      service,
		data:         data,
		logger:       logger.With(slog.String("component", "operations_handler")),
		errorHandler: errorHandler,
	}
}

// OperationRequest is the body for POST /api/operations.
type OperationRequest struct {
	InputPath string   `json:"input_path"`
	Threshold float64  `json:"threshold,omitempty"`
	Neighbors int      `json:"neighbors,omitempty"`
	Steps     []string `json:"steps,omitempty"`
}

// Bind implements the render.Binder interface for request validation
func (req *OperationRequest) Bind(r *http.Request) error {
	if req.InputPath == "" {
		return errors.New("input_path is required")
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return errors.New("threshold must be between 0 and 1")
	}
	if req.Neighbors < 0 {
		return errors.New("neighbors must be positive")
	}
	seen := make(map[string]bool)
	for _, step := range req.Steps {
		if seen[step] {
			return errors.New("duplicate step: " + step)
		}
		seen[step] = true
	}
	return nil
}

// operationView is the wire representation of an operation, without the
// in-memory dataset the steps pass between each other.
type operationView struct {
	ID        string                           `json:"id"`
	Status    operations.OperationStatus       `json:"status"`
	StartTime time.Time                        `json:"start_time"`
	EndTime   *time.Time                       `json:"end_time,omitempty"`
	Duration  string                           `json:"duration,omitempty"`
	Error     string                           `json:"error,omitempty"`
	Steps     map[string]*operations.StepState `json:"steps"`
}

func viewOf(state *operations.OperationState) *operationView {
	view := &operationView{
		ID:        state.ID,
		Status:    state.Status,
		StartTime: state.StartTime,
		EndTime:   state.EndTime,
		Steps:     state.Steps,
	}
	if state.EndTime != nil {
		view.Duration = state.Duration().String()
	}
	if state.Error != nil {
		view.Error = state.Error.Error()
	}
	return view
}

// Routes returns the operations routes
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", h.StartOperation)
	r.Get("/", h.ListOperations)
	r.Get("/{id}", h.GetOperation)

	return r
}

// StartOperation handles POST /api/operations. The pipeline runs in the
// background; the response carries the operation ID to poll.
func (h *OperationsHandler) StartOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)

	data := &OperationRequest{}
	if err := render.Bind(r, data); err != nil {
		h.logger.WarnContext(ctx, "invalid operation request",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
		)
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", err.Error()))
		return
	}

	req := operations.Request{
		ID:        uuid.New().String(),
		InputPath: data.InputPath,
		Threshold: data.Threshold,
		Neighbors: data.Neighbors,
		Steps:     data.Steps,
	}

	// Accept registers the state synchronously, so the returned ID is
	// pollable before the background run starts.
	accepted, err := h.service.Accept(req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "starting operation",
		slog.String("operation_id", accepted.ID),
		slog.String("input_path", data.InputPath),
		slog.String("request_id", reqID),
	)

	go h.run(accepted.ID)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{
		"id":     accepted.ID,
		"status": string(operations.OperationStatusPending),
	})
}

// run executes the accepted operation detached from the request context
// and records its outcome in the metrics. A panic here must not take the
// server down with it.
func (h *OperationsHandler) run(id string) {
	defer func() {
		if rec := recover(); rec != nil {
			operationsTotal.WithLabelValues(string(operations.OperationStatusFailed)).Inc()
			h.logger.Error("operation panicked",
				slog.String("operation_id", id),
				slog.Any("panic", rec),
			)
		}
	}()

	state, err := h.service.Run(context.Background(), id)
	if err != nil {
		operationsTotal.WithLabelValues(string(operations.OperationStatusFailed)).Inc()
		h.logger.Error("operation failed",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	operationsTotal.WithLabelValues(string(state.Status)).Inc()
	if report, ok := state.GetContext(operations.ContextKeyReport); ok {
		if cleaningReport, ok := report.(*cleaning.Report); ok {
			cellsFilledTotal.Add(float64(cleaningReport.CellsFilled()))
		}
	}

	// A finished run changes the files the data service reads.
	h.data.Invalidate()

	h.logger.Info("operation finished",
		slog.String("operation_id", id),
		slog.String("status", string(state.Status)),
	)
}

// GetOperation handles GET /api/operations/{id}
func (h *OperationsHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := h.service.GetOperation(id)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrPipelineNotFound)
		return
	}

	render.JSON(w, r, viewOf(state))
}

// ListOperations handles GET /api/operations
func (h *OperationsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	states := h.service.ListOperations()
	views := make([]*operationView, 0, len(states))
	for _, state := range states {
		views = append(views, viewOf(state))
	}

	render.JSON(w, r, map[string]interface{}{
		"operations": views,
		"running":    h.service.IsRunning(),
	})
}
