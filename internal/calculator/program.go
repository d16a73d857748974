package calculator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Entry is one element of a program: either an operand or a symbol.
type Entry struct {
	symbol   string
	operand  float64
	isSymbol bool
}

// Operand returns an operand entry.
func Operand(v float64) Entry {
	return Entry{operand: v}
}

// Symbol returns a symbol entry.
func Symbol(s string) Entry {
	return Entry{symbol: s, isSymbol: true}
}

// Operand reports the entry's operand and whether it is one.
func (e Entry) Operand() (float64, bool) {
	return e.operand, !e.isSymbol
}

// Symbol reports the entry's symbol and whether it is one.
func (e Entry) Symbol() (string, bool) {
	return e.symbol, e.isSymbol
}

func (e Entry) String() string {
	if e.isSymbol {
		return e.symbol
	}
	return strconv.FormatFloat(e.operand, 'g', -1, 64)
}

// overflowLiteral is a JSON number outside float64 range; it decodes back to
// +Inf, so infinite operands survive a program round trip.
const overflowLiteral = "1e999"

// MarshalJSON encodes operands as JSON numbers and symbols as JSON strings.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.isSymbol {
		return json.Marshal(e.symbol)
	}
	switch {
	case math.IsNaN(e.operand):
		return nil, fmt.Errorf("operand %v has no JSON number form", e.operand)
	case math.IsInf(e.operand, 1):
		return []byte(overflowLiteral), nil
	case math.IsInf(e.operand, -1):
		return []byte("-" + overflowLiteral), nil
	}
	return json.Marshal(e.operand)
}

// UnmarshalJSON accepts a JSON number or a JSON string. Numbers beyond
// float64 range become ±Inf rather than being rejected.
func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty program entry")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding symbol entry: %w", err)
		}
		*e = Symbol(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		// Out-of-range numbers parse to ±Inf with ErrRange; keep the infinity.
		v, err := strconv.ParseFloat(string(data), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return fmt.Errorf("decoding operand entry: %w", err)
		}
		*e = Operand(v)
		return nil
	}

	return fmt.Errorf("program entry %s is neither a number nor a string", data)
}

// Program is the ordered log of entries applied to a Brain.
type Program []Entry

// UnmarshalJSON decodes a JSON array. Elements that are neither numbers nor
// strings are dropped; anything other than an array is an error.
func (p *Program) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding program: %w", err)
	}

	out := make(Program, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := e.UnmarshalJSON(item); err != nil {
			continue
		}
		out = append(out, e)
	}

	*p = out
	return nil
}

// Symbols returns the symbol entries in order.
func (p Program) Symbols() []string {
	var out []string
	for _, e := range p {
		if s, ok := e.Symbol(); ok {
			out = append(out, s)
		}
	}
	return out
}

// Number is a float64 whose JSON form survives IEEE-754 special values:
// finite values are JSON numbers, the rest are "NaN", "+Inf" and "-Inf".
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(f)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "NaN":
			*n = Number(math.NaN())
		case "+Inf":
			*n = Number(math.Inf(1))
		case "-Inf":
			*n = Number(math.Inf(-1))
		default:
			return fmt.Errorf("invalid number %q", s)
		}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decoding number: %w", err)
	}
	*n = Number(f)
	return nil
}
