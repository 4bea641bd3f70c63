// Package godatautil turns OData query options into sqlbuilder clauses
// against a sqlbuilderutil table.
package godatautil

import (
	"fmt"
	"strings"

	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/gost/godata"

	"fknsrs.biz/p/ytmentions/internal/sqlbuilderutil"
)

var (
	ErrFieldNotFound = fmt.Errorf("field not found")
)

const MaxTop = 500

var comparisonOperators = map[string]string{
	"eq": "=",
	"ne": "<>",
	"gt": ">",
	"ge": ">=",
	"lt": "<",
	"le": "<=",
}

func MakeCondition(q *godata.GoDataQuery, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	if q == nil || q.Filter == nil {
		return nil, nil
	}

	expr, err := makeCondition(q.Filter.Tree, table)
	if err != nil {
		return nil, fmt.Errorf("godatautil.MakeCondition: %w", err)
	}

	return expr, nil
}

func makeCondition(n *godata.ParseNode, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	switch n.Token.Type {
	case godata.FilterTokenLogical:
		op := strings.ToLower(n.Token.Value)

		if sqlOp, ok := comparisonOperators[op]; ok {
			return makeComparison(n, sqlOp, table)
		}

		var a []sb.AsExpr
		for _, e := range n.Children {
			expr, err := makeCondition(e, table)
			if err != nil {
				return nil, fmt.Errorf("godatautil.makeCondition: %w", err)
			}
			a = append(a, expr)
		}

		switch op {
		case "and", "or":
			return sb.BooleanOperator(op, a...), nil
		default:
			return nil, fmt.Errorf("godatautil.makeCondition: unrecognised logical filter type %q", n.Token.Value)
		}
	case godata.FilterTokenFunc:
		switch n.Token.Value {
		case "substringof", "contains":
			if len(n.Children) != 2 {
				return nil, fmt.Errorf("godatautil.makeCondition: %s must have exactly two arguments; instead had %d", n.Token.Value, len(n.Children))
			}

			field, value := n.Children[0], n.Children[1]
			// substringof takes its arguments the other way around
			if n.Token.Value == "substringof" && value.Token.Type == godata.FilterTokenLiteral {
				field, value = value, field
			}

			if tokenType := field.Token.Type; tokenType != godata.FilterTokenLiteral {
				return nil, fmt.Errorf("godatautil.makeCondition: %s field argument must be Literal; was instead %s", n.Token.Value, filterTokenName(tokenType))
			}
			if tokenType := value.Token.Type; tokenType != godata.FilterTokenString {
				return nil, fmt.Errorf("godatautil.makeCondition: %s value argument must be String; was instead %s", n.Token.Value, filterTokenName(tokenType))
			}

			c, ok := table.Column(field.Token.Value)
			if !ok {
				return nil, fmt.Errorf("godatautil.makeCondition: unrecognised field %s: %w", field.Token.Value, ErrFieldNotFound)
			}

			return sb.Ne(
				sb.Func(
					"instr",
					c,
					sb.Bind(unquote(value.Token.Value)),
				),
				sb.Literal("0"),
			), nil
		default:
			return nil, fmt.Errorf("godatautil.makeCondition: unrecognised function %s", n.Token.Value)
		}
	default:
		return nil, fmt.Errorf("godatautil.makeCondition: unrecognised token type %d (%s)", n.Token.Type, filterTokenName(n.Token.Type))
	}
}

func makeComparison(n *godata.ParseNode, sqlOp string, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	if len(n.Children) != 2 {
		return nil, fmt.Errorf("godatautil.makeComparison: %s must have exactly two operands; instead had %d", n.Token.Value, len(n.Children))
	}

	field, value := n.Children[0], n.Children[1]

	if field.Token.Type != godata.FilterTokenLiteral {
		return nil, fmt.Errorf("godatautil.makeComparison: left operand must be Literal; was instead %s", filterTokenName(field.Token.Type))
	}

	c, ok := table.Column(field.Token.Value)
	if !ok {
		return nil, fmt.Errorf("godatautil.makeComparison: unrecognised field %s: %w", field.Token.Value, ErrFieldNotFound)
	}

	var bound interface{}

	switch value.Token.Type {
	case godata.FilterTokenString:
		bound = unquote(value.Token.Value)
	case godata.FilterTokenInteger, godata.FilterTokenFloat, godata.FilterTokenDate, godata.FilterTokenDateTime:
		bound = value.Token.Value
	case godata.FilterTokenBoolean:
		bound = strings.EqualFold(value.Token.Value, "true")
	case godata.FilterTokenNull:
		switch sqlOp {
		case "=":
			return sb.BinaryOperator("is", c, sb.Literal("null")), nil
		case "<>":
			return sb.BinaryOperator("is not", c, sb.Literal("null")), nil
		default:
			return nil, fmt.Errorf("godatautil.makeComparison: null can only be compared with eq or ne")
		}
	default:
		return nil, fmt.Errorf("godatautil.makeComparison: right operand must be a value; was instead %s", filterTokenName(value.Token.Type))
	}

	return sb.BinaryOperator(sqlOp, c, sb.Bind(bound)), nil
}

func filterTokenName(tokenType int) string {
	switch tokenType {
	case godata.FilterTokenOpenParen:
		return "OpenParen"
	case godata.FilterTokenCloseParen:
		return "CloseParen"
	case godata.FilterTokenWhitespace:
		return "Whitespace"
	case godata.FilterTokenNav:
		return "Nav"
	case godata.FilterTokenColon:
		return "Colon"
	case godata.FilterTokenComma:
		return "Comma"
	case godata.FilterTokenLogical:
		return "Logical"
	case godata.FilterTokenOp:
		return "Op"
	case godata.FilterTokenFunc:
		return "Func"
	case godata.FilterTokenLambda:
		return "Lambda"
	case godata.FilterTokenNull:
		return "Null"
	case godata.FilterTokenIt:
		return "It"
	case godata.FilterTokenRoot:
		return "Root"
	case godata.FilterTokenFloat:
		return "Float"
	case godata.FilterTokenInteger:
		return "Integer"
	case godata.FilterTokenString:
		return "String"
	case godata.FilterTokenDate:
		return "Date"
	case godata.FilterTokenTime:
		return "Time"
	case godata.FilterTokenDateTime:
		return "DateTime"
	case godata.FilterTokenBoolean:
		return "Boolean"
	case godata.FilterTokenLiteral:
		return "Literal"
	case godata.FilterTokenGeography:
		return "Geography"
	default:
		return "???"
	}
}

func MakeOrders(q *godata.GoDataQuery, table *sqlbuilderutil.Table, defaultOrders ...sb.AsOrderingTerm) ([]sb.AsOrderingTerm, error) {
	if q == nil || q.OrderBy == nil {
		return defaultOrders, nil
	}

	var a []sb.AsOrderingTerm

	for _, item := range q.OrderBy.OrderByItems {
		c, ok := table.Column(item.Field.Value)
		if !ok {
			return nil, fmt.Errorf("godatautil.MakeOrders: could not find field %q: %w", item.Field.Value, ErrFieldNotFound)
		}

		switch item.Order {
		case "asc":
			a = append(a, sb.OrderAsc(c))
		case "desc":
			a = append(a, sb.OrderDesc(c))
		}
	}

	return a, nil
}

// SkipAndTop reports the effective paging values, clamping top to
// MaxTop.
func SkipAndTop(q *godata.GoDataQuery, defaultSkip, defaultTop int) (int, int) {
	skip := defaultSkip
	if q != nil && q.Skip != nil {
		skip = int(*q.Skip)
	}
	if skip < 0 {
		skip = 0
	}

	top := defaultTop
	if q != nil && q.Top != nil {
		top = int(*q.Top)
	}
	if top <= 0 || top > MaxTop {
		top = MaxTop
	}

	return skip, top
}

func MakeOffsetLimit(q *godata.GoDataQuery, defaultSkip, defaultTop int) *sb.OffsetLimitClause {
	skip, top := SkipAndTop(q, defaultSkip, defaultTop)

	return sb.OffsetLimit(sb.Bind(skip), sb.Bind(top))
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}

	return strings.Replace(s[1:len(s)-1], "''", "'", -1)
}
