package calculator

import (
	"math"
	"sort"
)

// Operation is the behaviour bound to a calculator symbol. It is a closed set:
// Constant, Unary, Binary, Equals and Clear are the only implementations.
type Operation interface {
	kind() string
}

// Constant replaces the accumulator with a fixed value.
type Constant struct {
	Value float64
}

// Unary replaces the accumulator with Fn(accumulator).
type Unary struct {
	Fn func(float64) float64
}

// Binary defers Fn until a second operand is supplied.
type Binary struct {
	Fn func(a, b float64) float64
}

// Equals resolves the pending binary operation, if any.
type Equals struct{}

// Clear resets accumulator, pending operation and program.
type Clear struct{}

func (Constant) kind() string { return "constant" }
func (Unary) kind() string    { return "unary" }
func (Binary) kind() string   { return "binary" }
func (Equals) kind() string   { return "equals" }
func (Clear) kind() string    { return "clear" }

// Symbols of the default table.
const (
	SymbolPi       = "π"
	SymbolE        = "e"
	SymbolMultiply = "×"
	SymbolDivide   = "÷"
	SymbolAdd      = "+"
	SymbolSubtract = "−"
	SymbolSqrt     = "√"
	SymbolNegate   = "±"
	SymbolClear    = "C"
	SymbolEquals   = "="
)

// Operations maps a symbol to its behaviour. Build one before constructing a
// Brain; NewBrain takes its own copy so later edits do not leak into running
// engines.
type Operations map[string]Operation

// DefaultOperations returns a fresh copy of the four-function table.
func DefaultOperations() Operations {
	return Operations{
		SymbolPi:       Constant{Value: math.Pi},
		SymbolE:        Constant{Value: math.E},
		SymbolMultiply: Binary{Fn: func(a, b float64) float64 { return a * b }},
		SymbolDivide:   Binary{Fn: func(a, b float64) float64 { return a / b }},
		SymbolAdd:      Binary{Fn: func(a, b float64) float64 { return a + b }},
		SymbolSubtract: Binary{Fn: func(a, b float64) float64 { return a - b }},
		SymbolSqrt:     Unary{Fn: math.Sqrt},
		SymbolNegate:   Unary{Fn: func(x float64) float64 { return -x }},
		SymbolClear:    Clear{},
		SymbolEquals:   Equals{},
	}
}

// ScientificOperations extends the default table with common scientific keys.
func ScientificOperations() Operations {
	ops := DefaultOperations()
	ops.Register("x²", Unary{Fn: func(x float64) float64 { return x * x }})
	ops.Register("1/x", Unary{Fn: func(x float64) float64 { return 1 / x }})
	ops.Register("%", Unary{Fn: func(x float64) float64 { return x / 100 }})
	ops.Register("sin", Unary{Fn: math.Sin})
	ops.Register("cos", Unary{Fn: math.Cos})
	ops.Register("tan", Unary{Fn: math.Tan})
	ops.Register("ln", Unary{Fn: math.Log})
	ops.Register("log", Unary{Fn: math.Log10})
	ops.Register("xʸ", Binary{Fn: math.Pow})
	return ops
}

// Register binds symbol to op, replacing any previous binding.
func (o Operations) Register(symbol string, op Operation) {
	o[symbol] = op
}

// Clone returns a shallow copy of the table.
func (o Operations) Clone() Operations {
	out := make(Operations, len(o))
	for sym, op := range o {
		out[sym] = op
	}
	return out
}

// OperationInfo describes one entry of an operation table.
type OperationInfo struct {
	Symbol string   `json:"symbol"`
	Kind   string   `json:"kind"`
	Value  *float64 `json:"value,omitempty"` // constants only
}

// Describe lists the table sorted by symbol.
func Describe(ops Operations) []OperationInfo {
	out := make([]OperationInfo, 0, len(ops))
	for sym, op := range ops {
		info := OperationInfo{Symbol: sym, Kind: op.kind()}
		if c, ok := op.(Constant); ok {
			v := c.Value
			info.Value = &v
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
