package calculator

// OperandRequest is the JSON body for POST /calculator/sessions/{id}/operand.
type OperandRequest struct {
	Value *float64 `json:"value"`
}

// OperationRequest is the JSON body for POST /calculator/sessions/{id}/operation.
type OperationRequest struct {
	Symbol string `json:"symbol"`
}

// EvaluateRequest is the JSON body for POST /calculator/evaluate.
type EvaluateRequest struct {
	Program Program `json:"program"`
}

// SessionResponse is the JSON response for every session endpoint.
type SessionResponse struct {
	SessionID string  `json:"session_id"`
	Result    Number  `json:"result"`
	State     string  `json:"state"`
	Program   Program `json:"program"`
}

// EvaluateResponse is the JSON response for POST /calculator/evaluate.
type EvaluateResponse struct {
	Steps   []StepResult `json:"steps"`
	Result  Number       `json:"result"`
	State   string       `json:"state"`
	Program Program      `json:"program"`
}

// StepResult records the engine after one replayed entry.
type StepResult struct {
	Entry  Entry  `json:"entry"`
	Result Number `json:"result"`
	State  string `json:"state"`
}

// OperationsResponse is the JSON response for GET /calculator/operations.
type OperationsResponse struct {
	Operations []OperationInfo `json:"operations"`
	Strict     bool            `json:"strict"`
}

func newSessionResponse(id string, snap Snapshot) SessionResponse {
	return SessionResponse{
		SessionID: id,
		Result:    Number(snap.Result),
		State:     snap.State.String(),
		Program:   snap.Program,
	}
}
