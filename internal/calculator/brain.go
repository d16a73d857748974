package calculator

import (
	"errors"
	"fmt"
)

// ErrUnknownSymbol is returned by CheckedOperation for symbols with no binding.
var ErrUnknownSymbol = errors.New("unknown symbol")

// State is the engine's position in the entry state machine.
type State int

const (
	// Idle means no binary operation is pending.
	Idle State = iota
	// AwaitingSecondOperand means a binary operation waits for its right operand.
	AwaitingSecondOperand
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingSecondOperand:
		return "awaiting_second_operand"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// pendingBinary is a binary operation waiting for its second operand.
type pendingBinary struct {
	fn           func(a, b float64) float64
	firstOperand float64
}

// Brain is a four-function calculator engine. It evaluates strictly left to
// right: a binary operator resolves whatever was pending before it starts its
// own pending operation.
//
// A Brain is not safe for concurrent use; callers sharing one must serialize
// access.
type Brain struct {
	ops         Operations
	accumulator float64
	pending     *pendingBinary
	program     Program
}

// NewBrain returns an idle engine bound to a copy of ops. A nil table means
// DefaultOperations.
func NewBrain(ops Operations) *Brain {
	if ops == nil {
		ops = DefaultOperations()
	} else {
		ops = ops.Clone()
	}
	return &Brain{ops: ops}
}

// SetOperand replaces the accumulator with v and records it.
func (b *Brain) SetOperand(v float64) {
	b.accumulator = v
	b.program = append(b.program, Operand(v))
}

// PerformOperation records symbol and applies its binding. Unknown symbols are
// recorded and otherwise ignored.
func (b *Brain) PerformOperation(symbol string) {
	b.program = append(b.program, Symbol(symbol))

	op, ok := b.ops[symbol]
	if !ok {
		return
	}

	switch op := op.(type) {
	case Constant:
		b.accumulator = op.Value
	case Unary:
		b.accumulator = op.Fn(b.accumulator)
	case Binary:
		b.resolvePending()
		b.pending = &pendingBinary{fn: op.Fn, firstOperand: b.accumulator}
	case Equals:
		b.resolvePending()
	case Clear:
		b.Clear()
	}
}

// CheckedOperation is PerformOperation for callers that want unknown symbols
// rejected. On ErrUnknownSymbol neither the state nor the program changes.
func (b *Brain) CheckedOperation(symbol string) error {
	if !b.Known(symbol) {
		return fmt.Errorf("%w %q", ErrUnknownSymbol, symbol)
	}
	b.PerformOperation(symbol)
	return nil
}

// Known reports whether symbol has a binding in this engine's table.
func (b *Brain) Known(symbol string) bool {
	_, ok := b.ops[symbol]
	return ok
}

func (b *Brain) resolvePending() {
	if b.pending == nil {
		return
	}
	b.accumulator = b.pending.fn(b.pending.firstOperand, b.accumulator)
	b.pending = nil
}

// Clear resets the engine to its initial state.
func (b *Brain) Clear() {
	b.pending = nil
	b.accumulator = 0
	b.program = nil
}

// Result returns the accumulator.
func (b *Brain) Result() float64 {
	return b.accumulator
}

// State reports whether a binary operation is pending.
func (b *Brain) State() State {
	if b.pending != nil {
		return AwaitingSecondOperand
	}
	return Idle
}

// Program returns a copy of the entries applied since the last clear.
func (b *Brain) Program() Program {
	out := make(Program, len(b.program))
	copy(out, b.program)
	return out
}

// Apply feeds a single entry to the engine.
func (b *Brain) Apply(e Entry) {
	if s, ok := e.Symbol(); ok {
		b.PerformOperation(s)
		return
	}
	v, _ := e.Operand()
	b.SetOperand(v)
}

// entryKind names what e does on this engine: "operand", the kind of the
// bound operation, or "unknown".
func (b *Brain) entryKind(e Entry) string {
	s, ok := e.Symbol()
	if !ok {
		return "operand"
	}
	if op, ok := b.ops[s]; ok {
		return op.kind()
	}
	return "unknown"
}

// SetProgram clears the engine and replays p from the start.
func (b *Brain) SetProgram(p Program) {
	b.Clear()
	for _, e := range p {
		b.Apply(e)
	}
}

// Undo drops the last recorded entry and replays the rest. It reports false
// when there is nothing to drop.
func (b *Brain) Undo() bool {
	if len(b.program) == 0 {
		return false
	}
	b.SetProgram(b.Program()[:len(b.program)-1])
	return true
}
