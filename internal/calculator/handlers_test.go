package calculator

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"calculator-brain/internal/observability"
	"calculator-brain/internal/testutil"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, strict bool) (http.Handler, *Store) {
	t.Helper()

	observability.Logger = zap.NewNop()
	if err := InitMetrics(); err != nil {
		t.Fatalf("initializing calculator metrics: %v", err)
	}

	store := NewStore(DefaultOperations(), 8)
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(store, strict))
	return r, store
}

func createSession(t *testing.T, router http.Handler) string {
	t.Helper()

	w := testutil.ExecuteRequest(httptest.NewRequest(http.MethodPost, "/calculator/sessions", nil), router)
	testutil.CheckResponseCode(t, http.StatusCreated, w.Code)

	var resp SessionResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)
	if resp.SessionID == "" {
		t.Fatal("expected session_id in response")
	}
	return resp.SessionID
}

// enter posts each entry to the session: numbers as operands, strings as symbols.
func enter(t *testing.T, router http.Handler, id string, entries ...any) SessionResponse {
	t.Helper()

	var resp SessionResponse
	for _, e := range entries {
		var req *http.Request
		switch v := e.(type) {
		case string:
			req = testutil.NewJSONRequest(t, http.MethodPost, "/calculator/sessions/"+id+"/operation", OperationRequest{Symbol: v})
		case int:
			f := float64(v)
			req = testutil.NewJSONRequest(t, http.MethodPost, "/calculator/sessions/"+id+"/operand", OperandRequest{Value: &f})
		case float64:
			req = testutil.NewJSONRequest(t, http.MethodPost, "/calculator/sessions/"+id+"/operand", OperandRequest{Value: &v})
		}

		w := testutil.ExecuteRequest(req, router)
		testutil.CheckResponseCode(t, http.StatusOK, w.Code)
		testutil.DecodeJSONBody(t, w.Body, &resp)
	}
	return resp
}

func TestCreateSessionStartsIdle(t *testing.T) {
	router, store := newTestRouter(t, false)

	w := testutil.ExecuteRequest(httptest.NewRequest(http.MethodPost, "/calculator/sessions", nil), router)
	testutil.CheckResponseCode(t, http.StatusCreated, w.Code)

	var resp map[string]any
	testutil.DecodeJSONBody(t, w.Body, &resp)

	if resp["result"] != float64(0) {
		t.Fatalf("expected result 0, got %#v", resp["result"])
	}
	if resp["state"] != "idle" {
		t.Fatalf("expected state idle, got %#v", resp["state"])
	}
	if program, ok := resp["program"].([]any); !ok || len(program) != 0 {
		t.Fatalf("expected empty program array, got %#v", resp["program"])
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", store.Len())
	}
}

func TestSessionChainedCalculation(t *testing.T) {
	router, _ := newTestRouter(t, false)
	id := createSession(t, router)

	resp := enter(t, router, id, 5, "+", 3, "×")
	if resp.Result != 8 || resp.State != "awaiting_second_operand" {
		t.Fatalf("expected 8 awaiting operand, got %v %s", resp.Result, resp.State)
	}

	resp = enter(t, router, id, 2, "=")
	if resp.Result != 16 || resp.State != "idle" {
		t.Fatalf("expected 16 idle, got %v %s", resp.Result, resp.State)
	}

	w := testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/calculator/sessions/"+id+"/program", nil), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	if got, want := strings.TrimSpace(w.Body.String()), `[5,"+",3,"×",2,"="]`; got != want {
		t.Fatalf("expected program %s, got %s", want, got)
	}
}

func TestSessionDivisionByZeroReportsInfinity(t *testing.T) {
	router, _ := newTestRouter(t, false)
	id := createSession(t, router)

	resp := enter(t, router, id, 5, "÷", 0, "=")
	if !math.IsInf(float64(resp.Result), 1) {
		t.Fatalf("expected +Inf, got %v", resp.Result)
	}

	w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPost, "/calculator/sessions/"+id+"/operation", `{"symbol":"±"}`), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var raw map[string]any
	testutil.DecodeJSONBody(t, w.Body, &raw)
	if raw["result"] != "-Inf" {
		t.Fatalf("expected result %q, got %#v", "-Inf", raw["result"])
	}
}

func TestUnknownSymbolLenientAndStrict(t *testing.T) {
	t.Run("lenient", func(t *testing.T) {
		router, _ := newTestRouter(t, false)
		id := createSession(t, router)

		resp := enter(t, router, id, 7, "?")
		if resp.Result != 7 {
			t.Fatalf("expected result 7, got %v", resp.Result)
		}
		if len(resp.Program) != 2 {
			t.Fatalf("expected unknown symbol to be recorded, got %v", resp.Program)
		}
	})

	t.Run("strict", func(t *testing.T) {
		router, _ := newTestRouter(t, true)
		id := createSession(t, router)
		enter(t, router, id, 7)

		w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPost, "/calculator/sessions/"+id+"/operation", `{"symbol":"?"}`), router)
		testutil.CheckResponseCode(t, http.StatusUnprocessableEntity, w.Code)

		var body map[string]string
		testutil.DecodeJSONBody(t, w.Body, &body)
		if body["error"] != "unknown symbol" {
			t.Fatalf("expected error %q, got %q", "unknown symbol", body["error"])
		}

		w = testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/calculator/sessions/"+id, nil), router)
		var resp SessionResponse
		testutil.DecodeJSONBody(t, w.Body, &resp)
		if len(resp.Program) != 1 {
			t.Fatalf("expected rejected symbol to stay out of the program, got %v", resp.Program)
		}
	})
}

func TestSetProgramReplays(t *testing.T) {
	router, _ := newTestRouter(t, false)
	id := createSession(t, router)
	enter(t, router, id, 100, "+")

	w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPut, "/calculator/sessions/"+id+"/program", `[5, "+", {"bad":true}, 3, "√", "="]`), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var resp SessionResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)

	if want := 5 + math.Sqrt(3); math.Abs(float64(resp.Result)-want) > epsilon {
		t.Fatalf("expected %v, got %v", want, resp.Result)
	}
	if len(resp.Program) != 5 {
		t.Fatalf("expected malformed entry to be dropped, got %v", resp.Program)
	}
}

func TestSetProgramStrictRejectsUnknownSymbols(t *testing.T) {
	router, _ := newTestRouter(t, true)
	id := createSession(t, router)
	enter(t, router, id, 4)

	w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPut, "/calculator/sessions/"+id+"/program", `[1, "?", 2]`), router)
	testutil.CheckResponseCode(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/calculator/sessions/"+id, nil), router)
	var resp SessionResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)
	if resp.Result != 4 || len(resp.Program) != 1 {
		t.Fatalf("expected session untouched at 4, got %v %v", resp.Result, resp.Program)
	}
}

func TestUndo(t *testing.T) {
	router, _ := newTestRouter(t, false)
	id := createSession(t, router)

	undo := func() *httptest.ResponseRecorder {
		return testutil.ExecuteRequest(httptest.NewRequest(http.MethodPost, "/calculator/sessions/"+id+"/undo", nil), router)
	}

	w := undo()
	testutil.CheckResponseCode(t, http.StatusConflict, w.Code)

	enter(t, router, id, 6, "×", 7)

	w = undo()
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var resp SessionResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)
	if resp.Result != 6 || resp.State != "awaiting_second_operand" {
		t.Fatalf("expected 6 awaiting operand, got %v %s", resp.Result, resp.State)
	}
}

func TestSessionRequestErrors(t *testing.T) {
	router, _ := newTestRouter(t, false)
	id := createSession(t, router)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "unknown session", method: http.MethodGet, path: "/calculator/sessions/nope", status: http.StatusNotFound},
		{name: "delete unknown session", method: http.MethodDelete, path: "/calculator/sessions/nope", status: http.StatusNotFound},
		{name: "operand on unknown session", method: http.MethodPost, path: "/calculator/sessions/nope/operand", body: `{"value":1}`, status: http.StatusNotFound},
		{name: "malformed operand body", method: http.MethodPost, path: "/calculator/sessions/" + id + "/operand", body: `{"value":`, status: http.StatusBadRequest},
		{name: "missing operand value", method: http.MethodPost, path: "/calculator/sessions/" + id + "/operand", body: `{}`, status: http.StatusBadRequest},
		{name: "string operand", method: http.MethodPost, path: "/calculator/sessions/" + id + "/operand", body: `{"value":"5"}`, status: http.StatusBadRequest},
		{name: "missing symbol", method: http.MethodPost, path: "/calculator/sessions/" + id + "/operation", body: `{}`, status: http.StatusBadRequest},
		{name: "program not an array", method: http.MethodPut, path: "/calculator/sessions/" + id + "/program", body: `{"program":[1]}`, status: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var req *http.Request
			if tc.body == "" {
				req = httptest.NewRequest(tc.method, tc.path, nil)
			} else {
				req = testutil.NewJSONRequest(t, tc.method, tc.path, tc.body)
			}

			w := testutil.ExecuteRequest(req, router)
			testutil.CheckResponseCode(t, tc.status, w.Code)

			var body map[string]string
			testutil.DecodeJSONBody(t, w.Body, &body)
			if body["error"] == "" {
				t.Fatal("expected error message in body")
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	router, store := newTestRouter(t, false)

	w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPost, "/calculator/evaluate", `{"program":[5,"+",3,"×",2,"="]}`), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var resp EvaluateResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)

	if resp.Result != 16 {
		t.Fatalf("expected 16, got %v", resp.Result)
	}
	if len(resp.Steps) != 6 {
		t.Fatalf("expected 6 steps, got %d", len(resp.Steps))
	}
	if resp.Steps[3].Result != 8 || resp.Steps[3].State != "awaiting_second_operand" {
		t.Fatalf("expected step 3 to resolve 5+3=8 and await operand, got %+v", resp.Steps[3])
	}
	if store.Len() != 0 {
		t.Fatalf("expected evaluate not to create sessions, got %d", store.Len())
	}
}

func TestEvaluateEmptyProgramActsLikeClear(t *testing.T) {
	router, _ := newTestRouter(t, false)

	for _, body := range []string{`{"program":[]}`, `{"program":[null,true]}`} {
		w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPost, "/calculator/evaluate", body), router)
		testutil.CheckResponseCode(t, http.StatusOK, w.Code)

		var resp EvaluateResponse
		testutil.DecodeJSONBody(t, w.Body, &resp)
		if resp.Result != 0 || resp.State != "idle" {
			t.Fatalf("%s: expected 0 idle, got %v %s", body, resp.Result, resp.State)
		}
		if len(resp.Steps) != 0 || len(resp.Program) != 0 {
			t.Fatalf("%s: expected no steps and an empty program, got %v %v", body, resp.Steps, resp.Program)
		}
	}
}

func TestEvaluateKeepsOverflowingOperand(t *testing.T) {
	router, _ := newTestRouter(t, false)

	w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPost, "/calculator/evaluate", `{"program":[2,"×",1e400,"="]}`), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var raw map[string]any
	testutil.DecodeJSONBody(t, w.Body, &raw)
	if raw["result"] != "+Inf" {
		t.Fatalf("expected result %q, got %#v", "+Inf", raw["result"])
	}
	if steps, ok := raw["steps"].([]any); !ok || len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %#v", raw["steps"])
	}
}

func TestSetProgramKeepsOverflowingOperand(t *testing.T) {
	router, _ := newTestRouter(t, false)
	id := createSession(t, router)

	w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPut, "/calculator/sessions/"+id+"/program", `[2,"×",1e400,"="]`), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var resp SessionResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)
	if !math.IsInf(float64(resp.Result), 1) || len(resp.Program) != 4 {
		t.Fatalf("expected +Inf over 4 entries, got %v %v", resp.Result, resp.Program)
	}

	w = testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/calculator/sessions/"+id+"/program", nil), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)
	if got, want := strings.TrimSpace(w.Body.String()), `[2,"×",1e999,"="]`; got != want {
		t.Fatalf("expected program %s, got %s", want, got)
	}
}

func TestEvaluateErrors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		router, _ := newTestRouter(t, false)
		w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPost, "/calculator/evaluate", `{"program":`), router)
		testutil.CheckResponseCode(t, http.StatusBadRequest, w.Code)
	})

	t.Run("strict unknown symbol", func(t *testing.T) {
		router, _ := newTestRouter(t, true)
		w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPost, "/calculator/evaluate", `{"program":[1,"+","?"]}`), router)
		testutil.CheckResponseCode(t, http.StatusUnprocessableEntity, w.Code)

		var body map[string]string
		testutil.DecodeJSONBody(t, w.Body, &body)
		if !strings.HasPrefix(body["error"], "entry 2:") {
			t.Fatalf("expected error to name entry 2, got %q", body["error"])
		}
	})
}

func TestListOperations(t *testing.T) {
	router, _ := newTestRouter(t, true)

	w := testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/calculator/operations", nil), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var resp OperationsResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)

	if !resp.Strict {
		t.Fatal("expected strict flag to be reported")
	}
	if len(resp.Operations) != len(DefaultOperations()) {
		t.Fatalf("expected %d operations, got %d", len(DefaultOperations()), len(resp.Operations))
	}
	for _, op := range resp.Operations {
		if op.Symbol == SymbolPi && (op.Value == nil || *op.Value != math.Pi) {
			t.Fatalf("expected π to carry its value, got %+v", op)
		}
	}
}

func TestEvaluateCreatesSpanPerEntry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		_ = provider.Shutdown(context.Background())
	})

	router, _ := newTestRouter(t, false)

	w := testutil.ExecuteRequest(testutil.NewJSONRequest(t, http.MethodPost, "/calculator/evaluate", `{"program":[5,"÷",0,"="]}`), router)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	if len(spans) != 5 {
		t.Fatalf("expected 1 parent and 4 step spans, got %d", len(spans))
	}

	var parent sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == "calculator.evaluate" {
			parent = s
		}
	}
	if parent == nil {
		t.Fatal("expected calculator.evaluate span")
	}
	if parent.Status().Code != codes.Ok {
		t.Fatalf("expected ok status, got %+v", parent.Status())
	}

	for _, s := range spans {
		if s == parent {
			continue
		}
		if s.Parent().SpanID() != parent.SpanContext().SpanID() {
			t.Fatalf("expected %s to be a child of calculator.evaluate", s.Name())
		}
	}
}

func TestSessionOperationsRecordMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		_ = InitMetrics()
		_ = provider.Shutdown(context.Background())
	})

	router, _ := newTestRouter(t, false)
	id := createSession(t, router)
	enter(t, router, id, 1, "+", 2, "=")

	// Reads must not count as operations.
	for _, path := range []string{"/calculator/sessions/" + id, "/calculator/sessions/" + id + "/program"} {
		w := testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, path, nil), router)
		testutil.CheckResponseCode(t, http.StatusOK, w.Code)
	}

	w := testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/calculator/sessions/nope", nil), router)
	testutil.CheckResponseCode(t, http.StatusNotFound, w.Code)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}

	if got := totals["calculator.operations.total"]; got != 4 {
		t.Fatalf("expected 4 operations, got %d", got)
	}
	if got := totals["calculator.errors.total"]; got != 1 {
		t.Fatalf("expected 1 error, got %d", got)
	}
}
