// Package filter translates AIP-160 filter expressions over calculator audit
// records into SQL conditions.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	// Clause is the SQL WHERE clause (e.g., "input_type = ?").
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

// Empty reports whether the condition selects everything.
func (c SQLCondition) Empty() bool {
	return strings.TrimSpace(c.Clause) == ""
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindBool
	kindTimestamp
)

type field struct {
	column string
	kind   fieldKind
}

// fields maps filter identifiers to audit record columns.
var fields = map[string]field{
	"input_type":    {column: "input_type", kind: kindString},
	"input_value":   {column: "input_value", kind: kindString},
	"display_value": {column: "display_value", kind: kindString},
	"sequence":      {column: "sequence", kind: kindInt},
	"has_memory":    {column: "has_memory", kind: kindBool},
	"recorded_at":   {column: "recorded_at", kind: kindTimestamp},
}

// AuditDeclarations returns the identifier declarations for audit filters.
// The bare identifiers true and false are declared so boolean fields can be
// compared against them.
func AuditDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("input_type", filtering.TypeString),
		filtering.DeclareIdent("input_value", filtering.TypeString),
		filtering.DeclareIdent("display_value", filtering.TypeString),
		filtering.DeclareIdent("sequence", filtering.TypeInt),
		filtering.DeclareIdent("has_memory", filtering.TypeBool),
		filtering.DeclareIdent("recorded_at", filtering.TypeTimestamp),
		filtering.DeclareIdent("true", filtering.TypeBool),
		filtering.DeclareIdent("false", filtering.TypeBool),
	)
}

// ParseAuditFilter parses an AIP-160 filter and returns a SQL condition.
// An empty filter yields an empty condition.
func ParseAuditFilter(filterStr string) (SQLCondition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return SQLCondition{}, nil
	}

	decls, err := AuditDeclarations()
	if err != nil {
		return SQLCondition{}, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return SQLCondition{}, fmt.Errorf("parse filter: %w", err)
	}
	return translateExpr(parsed.CheckedExpr.GetExpr())
}

func translateExpr(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	case *expr.Expr_IdentExpr:
		// A bare boolean field, e.g. "has_memory".
		f, ok := fields[kind.IdentExpr.GetName()]
		if !ok || f.kind != kindBool {
			return SQLCondition{}, fmt.Errorf("unsupported bare identifier: %s", kind.IdentExpr.GetName())
		}
		return SQLCondition{Clause: f.column + " = ?", Params: []any{1}}, nil
	default:
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (SQLCondition, error) {
	switch call.GetFunction() {
	case filtering.FunctionAnd, "_&&_":
		return translateLogical(call.GetArgs(), "AND")
	case filtering.FunctionOr, "_||_":
		return translateLogical(call.GetArgs(), "OR")
	case filtering.FunctionNot, "-":
		return translateNot(call.GetArgs())
	case filtering.FunctionEquals, "_==_":
		return translateComparison(call.GetArgs(), "=")
	case filtering.FunctionNotEquals, "_!=_":
		return translateComparison(call.GetArgs(), "!=")
	case filtering.FunctionLessThan, "_<_":
		return translateComparison(call.GetArgs(), "<")
	case filtering.FunctionLessEquals, "_<=_":
		return translateComparison(call.GetArgs(), "<=")
	case filtering.FunctionGreaterThan, "_>_":
		return translateComparison(call.GetArgs(), ">")
	case filtering.FunctionGreaterEquals, "_>=_":
		return translateComparison(call.GetArgs(), ">=")
	case filtering.FunctionHas:
		return translateHas(call.GetArgs())
	default:
		return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.GetFunction())
	}
}

func translateLogical(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) < 2 {
		return SQLCondition{}, fmt.Errorf("%s requires at least 2 arguments", op)
	}
	clauses := make([]string, 0, len(args))
	var params []any
	for _, arg := range args {
		cond, err := translateExpr(arg)
		if err != nil {
			return SQLCondition{}, err
		}
		clauses = append(clauses, cond.Clause)
		params = append(params, cond.Params...)
	}
	return SQLCondition{
		Clause: "(" + strings.Join(clauses, " "+op+" ") + ")",
		Params: params,
	}, nil
}

func translateNot(args []*expr.Expr) (SQLCondition, error) {
	if len(args) != 1 {
		return SQLCondition{}, fmt.Errorf("NOT requires 1 argument")
	}
	inner, err := translateExpr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{Clause: "NOT " + inner.Clause, Params: inner.Params}, nil
}

// translateHas maps the ':' operator on string fields to a substring match.
func translateHas(args []*expr.Expr) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("has requires 2 arguments")
	}
	name, err := extractFieldName(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	f, ok := fields[name]
	if !ok || f.kind != kindString {
		return SQLCondition{}, fmt.Errorf("field %s does not support ':'", name)
	}
	value, err := extractValue(args[1], f)
	if err != nil {
		return SQLCondition{}, err
	}
	s, _ := value.(string)
	if s == "*" {
		return SQLCondition{Clause: f.column + " != ''"}, nil
	}
	return SQLCondition{
		Clause: f.column + ` LIKE ? ESCAPE '\'`,
		Params: []any{"%" + escapeLike(s) + "%"},
	}, nil
}

func translateComparison(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	name, err := extractFieldName(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	f, ok := fields[name]
	if !ok {
		return SQLCondition{}, fmt.Errorf("unknown field: %s", name)
	}
	value, err := extractValue(args[1], f)
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", f.column, op),
		Params: []any{value},
	}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.GetName(), nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

// extractValue converts the right-hand side to the column's storage form:
// booleans become 0/1 and timestamps become Unix milliseconds.
func extractValue(e *expr.Expr, f field) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		value, err := extractConstValue(kind.ConstExpr)
		if err != nil {
			return nil, err
		}
		if f.kind == kindTimestamp {
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("timestamp value must be a string")
			}
			return parseTimestampMillis(s)
		}
		return value, nil
	case *expr.Expr_IdentExpr:
		switch kind.IdentExpr.GetName() {
		case "true":
			return 1, nil
		case "false":
			return 0, nil
		}
		return nil, fmt.Errorf("identifier %s is not a value", kind.IdentExpr.GetName())
	case *expr.Expr_CallExpr:
		if kind.CallExpr.GetFunction() == filtering.FunctionTimestamp && len(kind.CallExpr.GetArgs()) == 1 {
			arg := kind.CallExpr.GetArgs()[0].GetConstExpr()
			if arg == nil {
				return nil, fmt.Errorf("timestamp argument must be a constant string")
			}
			return parseTimestampMillis(arg.GetStringValue())
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.GetFunction())
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}
	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return kind.Uint64Value, nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		if kind.BoolValue {
			return 1, nil
		}
		return 0, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

func parseTimestampMillis(value string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %s", value)
	}
	return t.UTC().UnixMilli(), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
