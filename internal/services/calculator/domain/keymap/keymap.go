// Package keymap maps keyboard keys and widget buttons to engine actions.
package keymap

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
)

// ErrUnknownKey indicates a key or button label with no calculator binding.
var ErrUnknownKey = errors.New("unknown calculator key")

// Style classifies a button for rendering.
type Style string

const (
	StyleDigit   Style = "digit"
	StyleControl Style = "control"
	StyleMemory  Style = "memory"
	StyleDefault Style = "default"
	StyleEquals  Style = "equals"
)

// Button is one cell of the widget grid. An empty Label marks a spacer.
type Button struct {
	Label  string
	Action engine.Action
	Style  Style
}

// Input is an action request in any of the accepted shapes: an explicit
// action (Type/Value), a keyboard key, or a button label.
type Input struct {
	Type   string `json:"type,omitempty"`
	Value  string `json:"value,omitempty"`
	Key    string `json:"key,omitempty"`
	Button string `json:"button,omitempty"`
}

// Resolve turns an input into a validated engine action. Failures carry the
// INVALID_KEY or INVALID_ACTION error code and still match ErrUnknownKey or
// engine.ErrInvalidAction.
func Resolve(in Input) (engine.Action, error) {
	action, err := resolve(in)
	if err == nil {
		return action, nil
	}
	if errors.Is(err, ErrUnknownKey) {
		key := in.Key
		if key == "" {
			key = in.Button
		}
		return engine.Action{}, apperrors.WrapWithMetadata(apperrors.CodeInvalidKey, err.Error(), map[string]string{"Key": key}, err)
	}
	return engine.Action{}, apperrors.WrapWithMetadata(apperrors.CodeInvalidAction, err.Error(), map[string]string{"Type": in.Type, "Value": in.Value}, err)
}

func resolve(in Input) (engine.Action, error) {
	switch {
	case strings.TrimSpace(in.Type) != "":
		return engine.Action{Kind: engine.ActionKind(strings.TrimSpace(in.Type)), Value: in.Value}.Normalize()
	case in.Key != "":
		return ActionForKey(in.Key)
	case strings.TrimSpace(in.Button) != "":
		return ActionForButton(in.Button)
	default:
		return engine.Action{}, fmt.Errorf("%w: empty input", engine.ErrInvalidAction)
	}
}

// ActionForKey maps a DOM KeyboardEvent.key value to an action.
func ActionForKey(key string) (engine.Action, error) {
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		return engine.Digit(key[0]), nil
	}
	switch key {
	case ".", ",":
		return engine.Dot(), nil
	case "+", "-", "*", "/":
		op, _ := engine.ParseOperator(key)
		return engine.ChooseOperator(op), nil
	case "Enter", "=":
		return engine.Equals(), nil
	case "Backspace":
		return engine.Backspace(), nil
	case "c", "C", "Delete":
		return engine.ClearEntry(), nil
	case "Escape":
		return engine.ClearAll(), nil
	case "%":
		return engine.Unary(engine.UnaryPercent), nil
	}
	return engine.Action{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// ActionForButton maps a widget button label to an action.
func ActionForButton(label string) (engine.Action, error) {
	label = strings.TrimSpace(label)
	if b, ok := buttonsByLabel[strings.ToUpper(label)]; ok {
		return b.Action, nil
	}
	if a, err := ActionForKey(label); err == nil {
		return a, nil
	}
	return engine.Action{}, fmt.Errorf("%w: button %q", ErrUnknownKey, label)
}

// Buttons returns the widget grid, row by row.
func Buttons() [][]Button {
	rows := make([][]Button, len(grid))
	for i, row := range grid {
		rows[i] = append([]Button(nil), row...)
	}
	return rows
}

func digit(d byte) Button {
	return Button{Label: string(rune(d)), Action: engine.Digit(d), Style: StyleDigit}
}

var grid = [][]Button{
	{
		{Label: "MC", Action: engine.Memory(engine.MemoryClear), Style: StyleMemory},
		{Label: "←", Action: engine.Backspace(), Style: StyleControl},
		{Label: "CE", Action: engine.ClearEntry(), Style: StyleControl},
		{Label: "CA", Action: engine.ClearAll(), Style: StyleControl},
		{Label: "√", Action: engine.Unary(engine.UnarySqrt), Style: StyleDefault},
	},
	{
		{Label: "MR", Action: engine.Memory(engine.MemoryRecall), Style: StyleMemory},
		digit('7'), digit('8'), digit('9'),
		{Label: "/", Action: engine.ChooseOperator(engine.OperatorDivide), Style: StyleDefault},
		{Label: "%", Action: engine.Unary(engine.UnaryPercent), Style: StyleDefault},
	},
	{
		{Label: "MS", Action: engine.Memory(engine.MemoryStore), Style: StyleMemory},
		digit('4'), digit('5'), digit('6'),
		{Label: "*", Action: engine.ChooseOperator(engine.OperatorMultiply), Style: StyleDefault},
		{Label: "1/x", Action: engine.Unary(engine.UnaryReciprocal), Style: StyleDefault},
	},
	{
		{Label: "M+", Action: engine.Memory(engine.MemoryAdd), Style: StyleMemory},
		digit('1'), digit('2'), digit('3'),
		{Label: "-", Action: engine.ChooseOperator(engine.OperatorSubtract), Style: StyleDefault},
		{Label: "=", Action: engine.Equals(), Style: StyleEquals},
	},
	{
		{Label: "M-", Action: engine.Memory(engine.MemorySubtract), Style: StyleMemory},
		digit('0'),
		{Label: "+/-", Action: engine.Sign(), Style: StyleDefault},
		{Label: ".", Action: engine.Dot(), Style: StyleDefault},
		{Label: "+", Action: engine.ChooseOperator(engine.OperatorAdd), Style: StyleDefault},
	},
}

var buttonsByLabel = func() map[string]Button {
	m := make(map[string]Button)
	for _, row := range grid {
		for _, b := range row {
			m[strings.ToUpper(b.Label)] = b
		}
	}
	// Text aliases for symbol-only labels.
	m["SQRT"] = m["√"]
	m["BACKSPACE"] = m["←"]
	m["C"] = m["CE"]
	m["±"] = m["+/-"]
	return m
}()
