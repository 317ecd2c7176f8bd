package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAction indicates an action outside the calculator's input set.
var ErrInvalidAction = errors.New("invalid calculator action")

// ActionKind names one class of user input.
type ActionKind string

const (
	KindDigit      ActionKind = "digit"
	KindDot        ActionKind = "dot"
	KindSign       ActionKind = "sign"
	KindBackspace  ActionKind = "backspace"
	KindClearEntry ActionKind = "clear_entry"
	KindClearAll   ActionKind = "clear_all"
	KindOperator   ActionKind = "operator"
	KindEquals     ActionKind = "equals"
	KindUnary      ActionKind = "unary"
	KindMemory     ActionKind = "memory"
)

// Operator is a binary arithmetic operator awaiting its right operand.
type Operator string

const (
	OperatorNone     Operator = ""
	OperatorAdd      Operator = "+"
	OperatorSubtract Operator = "-"
	OperatorMultiply Operator = "*"
	OperatorDivide   Operator = "/"
)

// UnaryKind is a single-operand function applied to the display value.
type UnaryKind string

const (
	UnarySqrt       UnaryKind = "sqrt"
	UnaryReciprocal UnaryKind = "reciprocal"
	UnaryPercent    UnaryKind = "percent"
)

// MemoryOp is an operation on the memory register.
type MemoryOp string

const (
	MemoryClear    MemoryOp = "clear"
	MemoryRecall   MemoryOp = "recall"
	MemoryStore    MemoryOp = "store"
	MemoryAdd      MemoryOp = "add"
	MemorySubtract MemoryOp = "subtract"
)

// Action is one discrete user input. Value carries the digit, operator,
// unary kind or memory operation for kinds that need one.
type Action struct {
	Kind  ActionKind `json:"type"`
	Value string     `json:"value,omitempty"`
}

// Digit returns a digit entry action.
func Digit(d byte) Action { return Action{Kind: KindDigit, Value: string(rune(d))} }

// Dot returns a decimal point action.
func Dot() Action { return Action{Kind: KindDot} }

// Sign returns a sign toggle action.
func Sign() Action { return Action{Kind: KindSign} }

// Backspace returns a backspace action.
func Backspace() Action { return Action{Kind: KindBackspace} }

// ClearEntry returns a clear-entry action.
func ClearEntry() Action { return Action{Kind: KindClearEntry} }

// ClearAll returns a clear-all action.
func ClearAll() Action { return Action{Kind: KindClearAll} }

// Equals returns an equals action.
func Equals() Action { return Action{Kind: KindEquals} }

// ChooseOperator returns an operator selection action.
func ChooseOperator(op Operator) Action { return Action{Kind: KindOperator, Value: string(op)} }

// Unary returns a unary function action.
func Unary(kind UnaryKind) Action { return Action{Kind: KindUnary, Value: string(kind)} }

// Memory returns a memory register action.
func Memory(op MemoryOp) Action { return Action{Kind: KindMemory, Value: string(op)} }

func (a Action) String() string {
	if a.Value == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.Value
}

// Validate reports whether the action belongs to the calculator's input set.
func (a Action) Validate() error {
	_, err := a.Normalize()
	return err
}

// Normalize validates the action and rewrites aliased values (for example
// "inv" or "M+") to their canonical form.
func (a Action) Normalize() (Action, error) {
	value := strings.TrimSpace(a.Value)
	switch a.Kind {
	case KindDigit:
		if len(value) != 1 || value[0] < '0' || value[0] > '9' {
			return Action{}, fmt.Errorf("%w: digit %q", ErrInvalidAction, a.Value)
		}
		return Action{Kind: KindDigit, Value: value}, nil
	case KindDot, KindSign, KindBackspace, KindClearEntry, KindClearAll, KindEquals:
		return Action{Kind: a.Kind}, nil
	case KindOperator:
		op, ok := ParseOperator(value)
		if !ok {
			return Action{}, fmt.Errorf("%w: operator %q", ErrInvalidAction, a.Value)
		}
		return ChooseOperator(op), nil
	case KindUnary:
		kind, ok := ParseUnary(value)
		if !ok {
			return Action{}, fmt.Errorf("%w: unary %q", ErrInvalidAction, a.Value)
		}
		return Unary(kind), nil
	case KindMemory:
		op, ok := ParseMemoryOp(value)
		if !ok {
			return Action{}, fmt.Errorf("%w: memory %q", ErrInvalidAction, a.Value)
		}
		return Memory(op), nil
	default:
		return Action{}, fmt.Errorf("%w: kind %q", ErrInvalidAction, a.Kind)
	}
}

// ParseOperator decodes an operator symbol or name.
func ParseOperator(value string) (Operator, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "+", "add", "plus":
		return OperatorAdd, true
	case "-", "subtract", "minus":
		return OperatorSubtract, true
	case "*", "x", "×", "multiply", "times":
		return OperatorMultiply, true
	case "/", "÷", "divide":
		return OperatorDivide, true
	default:
		return OperatorNone, false
	}
}

// ParseUnary decodes a unary function name or button label.
func ParseUnary(value string) (UnaryKind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sqrt", "√":
		return UnarySqrt, true
	case "reciprocal", "inv", "1/x":
		return UnaryReciprocal, true
	case "percent", "%":
		return UnaryPercent, true
	default:
		return "", false
	}
}

// ParseMemoryOp decodes a memory operation name or button label.
func ParseMemoryOp(value string) (MemoryOp, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "clear", "mc":
		return MemoryClear, true
	case "recall", "mr":
		return MemoryRecall, true
	case "store", "ms":
		return MemoryStore, true
	case "add", "m+":
		return MemoryAdd, true
	case "subtract", "m-":
		return MemorySubtract, true
	default:
		return "", false
	}
}
