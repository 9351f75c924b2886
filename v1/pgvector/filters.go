package pgvector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// whereClause is a parameterised SQL predicate using gorm's ? placeholders.
type whereClause struct {
	SQL  string
	Args []any
}

// buildWhere translates a vectordb.Filter into a predicate on the payload
// column. Field names and values are always bound as parameters.
//
// A field "a.b" resolves to the top-level key "a.b" when present and to the
// nested path a → b otherwise. Missing fields satisfy only $ne and $nin.
//
// empty is true when the filter can never match (an empty $in list). A nil
// clause with empty false means no restriction.
func buildWhere(f vectordb.Filter) (where *whereClause, empty bool, err error) {
	conds, err := f.Conditions()
	if err != nil {
		return nil, false, err
	}

	var parts []string
	var args []any
	for _, c := range conds {
		value, valueArgs := valueExpr(c.Field)

		switch c.Op {
		case vectordb.OpEq:
			lit, err := jsonLiteral(c.Field, c.Value)
			if err != nil {
				return nil, false, err
			}
			parts = append(parts, value+" = ?::jsonb")
			args = append(append(args, valueArgs...), lit)

		case vectordb.OpNe:
			lit, err := jsonLiteral(c.Field, c.Value)
			if err != nil {
				return nil, false, err
			}
			parts = append(parts, fmt.Sprintf("(%s IS NULL OR %s <> ?::jsonb)", value, value))
			args = append(append(append(args, valueArgs...), valueArgs...), lit)

		case vectordb.OpIn, vectordb.OpNin:
			values := c.Value.([]any)
			if len(values) == 0 {
				if c.Op == vectordb.OpIn {
					return nil, true, nil
				}
				continue
			}
			placeholders := make([]string, len(values))
			lits := make([]any, len(values))
			for i, v := range values {
				lit, err := jsonLiteral(c.Field, v)
				if err != nil {
					return nil, false, err
				}
				placeholders[i] = "?::jsonb"
				lits[i] = lit
			}
			list := strings.Join(placeholders, ", ")
			if c.Op == vectordb.OpIn {
				parts = append(parts, fmt.Sprintf("%s IN (%s)", value, list))
				args = append(append(args, valueArgs...), lits...)
			} else {
				parts = append(parts, fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", value, value, list))
				args = append(append(append(args, valueArgs...), valueArgs...), lits...)
			}

		case vectordb.OpGt, vectordb.OpGte, vectordb.OpLt, vectordb.OpLte:
			sql, rangeArgs, err := rangeExpr(c, value, valueArgs)
			if err != nil {
				return nil, false, err
			}
			parts = append(parts, sql)
			args = append(args, rangeArgs...)
		}
	}

	if len(parts) == 0 {
		return nil, false, nil
	}
	return &whereClause{SQL: strings.Join(parts, " AND "), Args: args}, false, nil
}

var comparisons = map[vectordb.Operator]string{
	vectordb.OpGt:  ">",
	vectordb.OpGte: ">=",
	vectordb.OpLt:  "<",
	vectordb.OpLte: "<=",
}

// rangeExpr compares numbers numerically and strings bytewise. Values of
// another JSON type never match.
func rangeExpr(c vectordb.Condition, value string, valueArgs []any) (string, []any, error) {
	cmp := comparisons[c.Op]
	args := append(append([]any{}, valueArgs...), valueArgs...)

	if s, ok := c.Value.(string); ok {
		sql := fmt.Sprintf(`(CASE WHEN jsonb_typeof(%s) = 'string' THEN %s #>> '{}' END) COLLATE "C" %s ?`, value, value, cmp)
		return sql, append(args, s), nil
	}

	n, ok := vectordb.AsFloat64(c.Value)
	if !ok {
		return "", nil, fmt.Errorf("%w: filter field %q: %s expects a number or string, got %T",
			vectordb.ErrInvalidArgument, c.Field, c.Op, c.Value)
	}
	sql := fmt.Sprintf(`(CASE WHEN jsonb_typeof(%s) = 'number' THEN (%s #>> '{}')::double precision END) %s ?`, value, value, cmp)
	return sql, append(args, n), nil
}

// valueExpr returns the SQL expression selecting field from the payload and
// its bound arguments.
func valueExpr(field string) (string, []any) {
	if !strings.Contains(field, ".") {
		return "payload -> ?::text", []any{field}
	}
	return "COALESCE(payload -> ?::text, payload #> ?::text[])", []any{field, textArray(strings.Split(field, "."))}
}

// textArray renders a Postgres text[] literal with every element quoted.
func textArray(elems []string) string {
	quoted := make([]string, len(elems))
	for i, e := range elems {
		e = strings.ReplaceAll(e, `\`, `\\`)
		e = strings.ReplaceAll(e, `"`, `\"`)
		quoted[i] = `"` + e + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

// jsonLiteral encodes a filter scalar as JSON for comparison with jsonb.
func jsonLiteral(field string, v any) (string, error) {
	if n, ok := vectordb.AsFloat64(v); ok {
		v = n
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: filter field %q: %v", vectordb.ErrInvalidArgument, field, err)
	}
	return string(raw), nil
}
