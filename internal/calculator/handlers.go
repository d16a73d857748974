package calculator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"calculator-brain/internal/handlers"
	"calculator-brain/internal/observability"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrNothingToUndo is returned by the undo endpoint when the program is empty.
var ErrNothingToUndo = errors.New("nothing to undo")

// Handler serves the calculator endpoints over a session store.
type Handler struct {
	store  *Store
	ops    Operations
	strict bool
	tracer trace.Tracer
}

// NewHandler returns a Handler backed by store. With strict set, unknown
// symbols are rejected with 422 instead of being recorded and ignored.
func NewHandler(store *Store, strict bool) *Handler {
	return &Handler{
		store:  store,
		ops:    store.Operations(),
		strict: strict,
		tracer: otel.Tracer("calculator"),
	}
}

// requestError carries the status and client-facing message of a failed request.
type requestError struct {
	status int
	msg    string
	err    error
}

func (e *requestError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &requestError{status: http.StatusBadRequest, msg: msg, err: err}
}

// ---------------------------------------------------------------------------
// Handlers — sessions
// ---------------------------------------------------------------------------

// CreateSession handles POST /calculator/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := h.tracer.Start(ctx, "calculator.create_session",
		trace.WithAttributes(attribute.String("request.id", requestID)),
	)
	defer span.End()

	sess := h.store.Create()

	span.SetAttributes(attribute.String("calculator.session.id", sess.ID))
	span.SetStatus(codes.Ok, "")

	logger.Info("calculator session created",
		zap.String("session_id", sess.ID),
		zap.Int("sessions", h.store.Len()),
		zap.String("request_id", requestID),
	)

	handlers.WriteJSON(w, http.StatusCreated, newSessionResponse(sess.ID, sess.Snapshot()))
}

// DeleteSession handles DELETE /calculator/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)
	sessionID := chi.URLParam(r, "id")

	ctx, span := h.tracer.Start(ctx, "calculator.delete_session",
		trace.WithAttributes(
			attribute.String("calculator.session.id", sessionID),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	if err := h.store.Delete(sessionID); err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, "delete_session", "session not found", err, http.StatusNotFound, w)
		return
	}

	span.SetStatus(codes.Ok, "")
	logger.Info("calculator session deleted",
		zap.String("session_id", sessionID),
		zap.String("request_id", requestID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// GetSession handles GET /calculator/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.handleSessionOp(w, r, "get_session", false, func(r *http.Request, sess *Session) (Snapshot, error) {
		return sess.Snapshot(), nil
	}, sessionBody)
}

// SetOperand handles POST /calculator/sessions/{id}/operand
func (h *Handler) SetOperand(w http.ResponseWriter, r *http.Request) {
	h.handleSessionOp(w, r, "set_operand", true, func(r *http.Request, sess *Session) (Snapshot, error) {
		var req OperandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return Snapshot{}, badRequest("invalid request body", err)
		}
		if req.Value == nil {
			return Snapshot{}, badRequest("missing operand value", errors.New("value is required"))
		}
		v := *req.Value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Snapshot{}, badRequest("invalid numeric input", fmt.Errorf("value=%g", v))
		}

		trace.SpanFromContext(r.Context()).SetAttributes(attribute.Float64("calculator.operand", v))
		return sess.Do(func(b *Brain) { b.SetOperand(v) }), nil
	}, sessionBody)
}

// PerformOperation handles POST /calculator/sessions/{id}/operation
func (h *Handler) PerformOperation(w http.ResponseWriter, r *http.Request) {
	h.handleSessionOp(w, r, "perform_operation", true, func(r *http.Request, sess *Session) (Snapshot, error) {
		var req OperationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return Snapshot{}, badRequest("invalid request body", err)
		}
		if req.Symbol == "" {
			return Snapshot{}, badRequest("missing symbol", errors.New("symbol is required"))
		}

		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("calculator.symbol", req.Symbol))

		var opErr error
		snap := sess.Do(func(b *Brain) {
			if h.strict {
				opErr = b.CheckedOperation(req.Symbol)
				return
			}
			b.PerformOperation(req.Symbol)
		})
		if opErr != nil {
			return Snapshot{}, &requestError{status: http.StatusUnprocessableEntity, msg: "unknown symbol", err: opErr}
		}
		return snap, nil
	}, sessionBody)
}

// GetProgram handles GET /calculator/sessions/{id}/program. The body is the
// bare program array, which PUT on the same path accepts back.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	h.handleSessionOp(w, r, "get_program", false, func(r *http.Request, sess *Session) (Snapshot, error) {
		return sess.Snapshot(), nil
	}, programBody)
}

// SetProgram handles PUT /calculator/sessions/{id}/program
func (h *Handler) SetProgram(w http.ResponseWriter, r *http.Request) {
	h.handleSessionOp(w, r, "set_program", true, func(r *http.Request, sess *Session) (Snapshot, error) {
		var program Program
		if err := json.NewDecoder(r.Body).Decode(&program); err != nil {
			return Snapshot{}, badRequest("invalid program", err)
		}

		trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("calculator.program.length", len(program)))

		var opErr error
		snap := sess.Do(func(b *Brain) {
			if h.strict {
				for _, sym := range program.Symbols() {
					if !b.Known(sym) {
						opErr = fmt.Errorf("%w %q", ErrUnknownSymbol, sym)
						return
					}
				}
			}
			b.SetProgram(program)
		})
		if opErr != nil {
			return Snapshot{}, &requestError{status: http.StatusUnprocessableEntity, msg: "unknown symbol", err: opErr}
		}
		return snap, nil
	}, sessionBody)
}

// Undo handles POST /calculator/sessions/{id}/undo
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	h.handleSessionOp(w, r, "undo", true, func(r *http.Request, sess *Session) (Snapshot, error) {
		var undone bool
		snap := sess.Do(func(b *Brain) { undone = b.Undo() })
		if !undone {
			return Snapshot{}, &requestError{status: http.StatusConflict, msg: "nothing to undo", err: ErrNothingToUndo}
		}
		return snap, nil
	}, sessionBody)
}

func sessionBody(id string, snap Snapshot) any {
	return newSessionResponse(id, snap)
}

func programBody(_ string, snap Snapshot) any {
	return snap.Program
}

// handleSessionOp is the shared implementation for endpoints acting on one
// session: span, lookup, timing, metrics, logging and the JSON response.
// Only mutating endpoints count as operations and update the result gauge.
func (h *Handler) handleSessionOp(
	w http.ResponseWriter,
	r *http.Request,
	opName string,
	mutating bool,
	apply func(*http.Request, *Session) (Snapshot, error),
	body func(string, Snapshot) any,
) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)
	sessionID := chi.URLParam(r, "id")

	ctx, span := h.tracer.Start(ctx, fmt.Sprintf("calculator.%s", opName),
		trace.WithAttributes(
			attribute.String("calculator.operation", opName),
			attribute.String("calculator.session.id", sessionID),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	sess, err := h.store.Get(sessionID)
	if err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, opName, "session not found", err, http.StatusNotFound, w)
		return
	}

	start := time.Now()
	snap, err := apply(r.WithContext(ctx), sess)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0 // ms

	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			observability.RecordError(ctx, span, logger, errorCounter, opName, reqErr.msg, reqErr.err, reqErr.status, w)
			return
		}
		observability.RecordError(ctx, span, logger, errorCounter, opName, "internal error", err, http.StatusInternalServerError, w)
		return
	}

	attrs := metric.WithAttributes(attribute.String("operation", opName))
	opsHistogram.Record(ctx, elapsed, attrs)
	if mutating {
		opsCounter.Add(ctx, 1, attrs)
		resultGauge.Record(ctx, snap.Result, attrs)
	}

	span.AddEvent("operation.complete", trace.WithAttributes(
		attribute.Float64("result", snap.Result),
		attribute.String("state", snap.State.String()),
		attribute.Float64("duration_ms", elapsed),
	))
	span.SetAttributes(
		attribute.Float64("calculator.result", snap.Result),
		attribute.Int("calculator.program.length", len(snap.Program)),
	)
	span.SetStatus(codes.Ok, "")

	logger.Info("calculator operation completed",
		zap.String("operation", opName),
		zap.String("session_id", sess.ID),
		zap.Float64("result", snap.Result),
		zap.Stringer("state", snap.State),
		zap.Int("program_length", len(snap.Program)),
		zap.String("request_id", requestID),
		zap.Float64("duration_ms", elapsed),
	)

	handlers.WriteJSON(w, http.StatusOK, body(sess.ID, snap))
}

// ---------------------------------------------------------------------------
// Handler — stateless replay (demonstrates nested spans)
// ---------------------------------------------------------------------------

// Evaluate handles POST /calculator/evaluate — replays a program on a fresh
// engine, creating a child span for every entry.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := h.tracer.Start(ctx, "calculator.evaluate",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, "evaluate", "invalid request body", err, http.StatusBadRequest, w)
		return
	}

	span.SetAttributes(attribute.Int("evaluate.program.length", len(req.Program)))

	logger.Info("starting program replay",
		zap.Int("entries", len(req.Program)),
		zap.String("request_id", requestID),
	)

	brain := NewBrain(h.ops)
	steps := make([]StepResult, 0, len(req.Program))

	for i, entry := range req.Program {
		kind := brain.entryKind(entry)

		_, stepSpan := h.tracer.Start(ctx, fmt.Sprintf("calculator.evaluate.step.%d", i),
			trace.WithAttributes(
				attribute.Int("evaluate.step.index", i),
				attribute.String("evaluate.step.entry", entry.String()),
				attribute.String("evaluate.step.kind", kind),
				attribute.Float64("evaluate.step.input", brain.Result()),
			),
		)

		stepStart := time.Now()
		prev := brain.Result()

		var err error
		if s, isSymbol := entry.Symbol(); isSymbol && h.strict {
			err = brain.CheckedOperation(s)
		} else {
			brain.Apply(entry)
		}

		stepElapsed := float64(time.Since(stepStart).Microseconds()) / 1000.0

		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()

			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("failed at entry %d", i))

			errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "evaluate")))

			logger.Error("program replay failed",
				zap.Int("step", i),
				zap.Stringer("entry", entry),
				zap.Error(err),
				zap.String("request_id", requestID),
			)

			handlers.WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("entry %d: %v", i, err))
			return
		}

		attrs := metric.WithAttributes(attribute.String("operation", kind))
		opsCounter.Add(ctx, 1, attrs)
		opsHistogram.Record(ctx, stepElapsed, attrs)

		stepSpan.AddEvent("step.complete", trace.WithAttributes(
			attribute.Float64("input", prev),
			attribute.Float64("result", brain.Result()),
		))
		stepSpan.SetAttributes(attribute.Float64("evaluate.step.result", brain.Result()))
		stepSpan.SetStatus(codes.Ok, "")
		stepSpan.End()

		logger.Debug("program entry applied",
			zap.Int("step", i),
			zap.Stringer("entry", entry),
			zap.Float64("input", prev),
			zap.Float64("result", brain.Result()),
			zap.Float64("duration_ms", stepElapsed),
		)

		steps = append(steps, StepResult{
			Entry:  entry,
			Result: Number(brain.Result()),
			State:  brain.State().String(),
		})
	}

	result := brain.Result()
	resultGauge.Record(ctx, result, metric.WithAttributes(attribute.String("operation", "evaluate")))

	span.AddEvent("evaluate.complete", trace.WithAttributes(
		attribute.Float64("final_result", result),
		attribute.Int("total_steps", len(req.Program)),
	))
	span.SetAttributes(attribute.Float64("evaluate.result", result))
	span.SetStatus(codes.Ok, "")

	logger.Info("program replay completed",
		zap.Float64("result", result),
		zap.Int("steps", len(req.Program)),
		zap.String("request_id", requestID),
	)

	handlers.WriteJSON(w, http.StatusOK, EvaluateResponse{
		Steps:   steps,
		Result:  Number(result),
		State:   brain.State().String(),
		Program: brain.Program(),
	})
}

// ListOperations handles GET /calculator/operations
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, OperationsResponse{
		Operations: Describe(h.ops),
		Strict:     h.strict,
	})
}
