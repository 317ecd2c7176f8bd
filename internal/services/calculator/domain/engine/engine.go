// Package engine implements the calculator input state machine.
//
// An Engine owns one calculator's state: the display string, the pending
// left operand and operator, the overwrite flag and the memory register.
// Every action is total; malformed arithmetic surfaces as the "Error"
// display rather than as a Go error. Dispatch only rejects actions outside
// the input set.
package engine

import (
	"fmt"
	"math"
	"strings"
)

const initialDisplay = "0"

// View is what a presentation layer renders after each action.
type View struct {
	Display   string `json:"display"`
	HasMemory bool   `json:"has_memory"`
}

// State is a read-only snapshot of the full engine state.
type State struct {
	Display        string   `json:"display"`
	Accumulator    float64  `json:"accumulator"`
	HasAccumulator bool     `json:"has_accumulator"`
	Operator       Operator `json:"operator,omitempty"`
	Overwrite      bool     `json:"overwrite"`
	Memory         float64  `json:"memory"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers an observer at construction.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// Engine is a calculator state machine. It is not safe for concurrent use.
type Engine struct {
	display     string
	accumulator float64
	operator    Operator
	overwrite   bool
	memory      float64

	sequence  int64
	observers []Observer
	pending   []Action
	notifying bool
}

// New returns an engine in the idle state.
func New(opts ...Option) *Engine {
	e := &Engine{}
	e.reset()
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers an observer for subsequent transitions.
func (e *Engine) Subscribe(o Observer) {
	if o == nil {
		return
	}
	e.observers = append(e.observers, o)
}

// View returns the current display and memory indicator.
func (e *Engine) View() View {
	return View{Display: e.display, HasMemory: e.memory != 0}
}

// State returns a snapshot of the full engine state.
func (e *Engine) State() State {
	return State{
		Display:        e.display,
		Accumulator:    e.accumulator,
		HasAccumulator: e.operator != OperatorNone,
		Operator:       e.operator,
		Overwrite:      e.overwrite,
		Memory:         e.memory,
	}
}

// Sequence returns the number of actions processed so far.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// Dispatch applies one action and notifies observers.
//
// When called from inside an observer notification, the action is queued and
// the current view is returned; it is applied after the running round ends.
func (e *Engine) Dispatch(a Action) (View, error) {
	action, err := a.Normalize()
	if err != nil {
		return e.View(), err
	}
	e.pending = append(e.pending, action)
	if e.notifying {
		return e.View(), nil
	}

	e.notifying = true
	defer func() { e.notifying = false }()
	for len(e.pending) > 0 {
		next := e.pending[0]
		e.pending = e.pending[1:]
		e.apply(next)
		e.sequence++
		t := Transition{Sequence: e.sequence, Action: next, View: e.View(), State: e.State()}
		for _, o := range e.observers {
			o.ObserveTransition(t)
		}
	}
	e.pending = nil
	return e.View(), nil
}

// InputDigit enters one digit. Anything other than '0'..'9' is ignored.
func (e *Engine) InputDigit(d byte) View { return e.must(Digit(d)) }

// InputDot enters a decimal point.
func (e *Engine) InputDot() View { return e.must(Dot()) }

// ChangeSign toggles the sign of the display.
func (e *Engine) ChangeSign() View { return e.must(Sign()) }

// Backspace removes the last display character.
func (e *Engine) Backspace() View { return e.must(Backspace()) }

// ClearEntry resets the display only.
func (e *Engine) ClearEntry() View { return e.must(ClearEntry()) }

// ClearAll resets everything except memory.
func (e *Engine) ClearAll() View { return e.must(ClearAll()) }

// ChooseOperator selects the pending binary operator.
func (e *Engine) ChooseOperator(op Operator) View { return e.must(ChooseOperator(op)) }

// Equals evaluates the pending operation.
func (e *Engine) Equals() View { return e.must(Equals()) }

// DoUnary applies a unary function to the display value.
func (e *Engine) DoUnary(kind UnaryKind) View { return e.must(Unary(kind)) }

// MemoryClear zeroes memory.
func (e *Engine) MemoryClear() View { return e.must(Memory(MemoryClear)) }

// MemoryRecall shows memory on the display.
func (e *Engine) MemoryRecall() View { return e.must(Memory(MemoryRecall)) }

// MemoryStore replaces memory with the display value.
func (e *Engine) MemoryStore() View { return e.must(Memory(MemoryStore)) }

// MemoryAdd adds the display value to memory.
func (e *Engine) MemoryAdd() View { return e.must(Memory(MemoryAdd)) }

// MemorySubtract subtracts the display value from memory.
func (e *Engine) MemorySubtract() View { return e.must(Memory(MemorySubtract)) }

// must keeps the per-operation methods total: invalid input is a no-op.
func (e *Engine) must(a Action) View {
	view, err := e.Dispatch(a)
	if err != nil {
		return e.View()
	}
	return view
}

func (e *Engine) reset() {
	e.display = initialDisplay
	e.accumulator = 0
	e.operator = OperatorNone
	e.overwrite = true
}

func (e *Engine) apply(a Action) {
	switch a.Kind {
	case KindDigit:
		e.inputDigit(a.Value)
	case KindDot:
		e.inputDot()
	case KindSign:
		e.changeSign()
	case KindBackspace:
		e.backspace()
	case KindClearEntry:
		e.display = initialDisplay
		e.overwrite = true
	case KindClearAll:
		e.reset()
	case KindOperator:
		e.chooseOperator(Operator(a.Value))
	case KindEquals:
		e.equals()
	case KindUnary:
		e.unary(UnaryKind(a.Value))
	case KindMemory:
		e.memoryOp(MemoryOp(a.Value))
	default:
		panic(fmt.Sprintf("engine: unnormalized action %s", a))
	}
}

func (e *Engine) inputDigit(d string) {
	switch {
	case e.overwrite || e.display == ErrorDisplay:
		e.display = d
		e.overwrite = false
	case e.display == "0":
		e.display = d
	case e.display == "-0":
		e.display = "-" + d
	default:
		e.display += d
	}
}

func (e *Engine) inputDot() {
	switch {
	case e.overwrite || e.display == ErrorDisplay:
		e.display = "0."
		e.overwrite = false
	case !strings.Contains(e.display, "."):
		e.display += "."
	}
}

func (e *Engine) changeSign() {
	switch {
	case e.display == ErrorDisplay:
	case strings.HasPrefix(e.display, "-"):
		e.display = e.display[1:]
	case e.display != "0":
		e.display = "-" + e.display
	}
}

func (e *Engine) backspace() {
	if e.display == ErrorDisplay || len(e.display) <= 1 {
		e.display = initialDisplay
		e.overwrite = true
		return
	}
	trimmed := e.display[:len(e.display)-1]
	if trimmed == "" || trimmed == "-" {
		e.display = initialDisplay
		e.overwrite = true
		return
	}
	e.display = trimmed
}

func (e *Engine) chooseOperator(op Operator) {
	x := ParseNumber(e.display)
	switch {
	case e.operator == OperatorNone:
		e.accumulator = x
	case !e.overwrite:
		result := evaluate(e.operator, e.accumulator, x)
		e.display = FormatNumber(result)
		e.accumulator = result
	}
	e.operator = op
	e.overwrite = true
}

func (e *Engine) equals() {
	if e.operator == OperatorNone {
		return
	}
	result := evaluate(e.operator, e.accumulator, ParseNumber(e.display))
	e.display = FormatNumber(result)
	e.accumulator = 0
	e.operator = OperatorNone
	e.overwrite = true
}

func (e *Engine) unary(kind UnaryKind) {
	x := ParseNumber(e.display)
	e.overwrite = true
	switch kind {
	case UnarySqrt:
		if x < 0 {
			e.display = ErrorDisplay
			return
		}
		e.display = FormatNumber(math.Sqrt(x))
	case UnaryReciprocal:
		if x == 0 {
			e.display = ErrorDisplay
			return
		}
		e.display = FormatNumber(1 / x)
	case UnaryPercent:
		if e.operator != OperatorNone {
			e.display = FormatNumber(e.accumulator * (x / 100))
			return
		}
		e.display = FormatNumber(x / 100)
	}
}

func (e *Engine) memoryOp(op MemoryOp) {
	switch op {
	case MemoryClear:
		e.memory = 0
	case MemoryRecall:
		e.display = FormatNumber(e.memory)
		e.overwrite = true
	case MemoryStore:
		e.setMemory(ParseNumber(e.display))
	case MemoryAdd:
		e.setMemory(e.memory + ParseNumber(e.display))
	case MemorySubtract:
		e.setMemory(e.memory - ParseNumber(e.display))
	}
}

// setMemory keeps memory finite; overflowing results are discarded.
func (e *Engine) setMemory(v float64) {
	if !isFinite(v) {
		return
	}
	e.memory = v
}

func evaluate(op Operator, a, b float64) float64 {
	switch op {
	case OperatorAdd:
		return a + b
	case OperatorSubtract:
		return a - b
	case OperatorMultiply:
		return a * b
	case OperatorDivide:
		if b == 0 {
			return math.Inf(1)
		}
		return a / b
	default:
		return b
	}
}
