package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var ErrInvalidSearch = errors.New("invalid search")

const maxSearchDepth = 4

// SearchRule is either a leaf comparison (Field, Operator, Value) or a nested group
// (Condition, Rules).
type SearchRule struct {
	Field     string       `json:"field,omitempty"`
	Operator  string       `json:"operator,omitempty"`
	Value     any          `json:"value,omitempty"`
	Condition string       `json:"condition,omitempty"`
	Rules     []SearchRule `json:"rules,omitempty"`
}

type SearchFilter struct {
	Condition string       `json:"condition"`
	Rules     []SearchRule `json:"rules"`
}

type SearchRequest struct {
	Filter        SearchFilter `json:"filter"`
	PageNumber    int          `json:"page_number"`
	PageSize      int          `json:"page_size"`
	ItemSort      string       `json:"item_sort,omitempty"`
	DirectionSort string       `json:"direction_sort,omitempty"`
}

type operatorFunc func(column string, value any) (string, []any, error)

func likeEscape(v string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(v)
}

func likeOperator(negate bool, pattern func(string) string) operatorFunc {
	not := ""
	if negate {
		not = "NOT "
	}
	return func(column string, value any) (string, []any, error) {
		s, ok := value.(string)
		if !ok {
			return "", nil, fmt.Errorf("%w: value for %s must be a string", ErrInvalidSearch, column)
		}
		return column + " " + not + `LIKE ? ESCAPE '\'`, []any{pattern(likeEscape(s))}, nil
	}
}

func compareOperator(op string) operatorFunc {
	return func(column string, value any) (string, []any, error) {
		if value == nil {
			return "", nil, fmt.Errorf("%w: value for %s is required", ErrInvalidSearch, column)
		}
		return column + " " + op + " ?", []any{value}, nil
	}
}

func listOperator(negate bool) operatorFunc {
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return func(column string, value any) (string, []any, error) {
		values, ok := value.([]any)
		if !ok || len(values) == 0 {
			return "", nil, fmt.Errorf("%w: value for %s must be a non-empty list", ErrInvalidSearch, column)
		}
		return column + " " + op + " ?", []any{values}, nil
	}
}

func fixedOperator(clause string) operatorFunc {
	return func(column string, _ any) (string, []any, error) {
		return column + " " + clause, nil, nil
	}
}

var searchOperators = map[string]operatorFunc{
	"equal":            compareOperator("="),
	"not_equal":        compareOperator("<>"),
	"less":             compareOperator("<"),
	"greater":          compareOperator(">"),
	"less_or_equal":    compareOperator("<="),
	"greater_or_equal": compareOperator(">="),
	"in":               listOperator(false),
	"not_in":           listOperator(true),
	"begins_with":      likeOperator(false, func(v string) string { return v + "%" }),
	"ends_with":        likeOperator(false, func(v string) string { return "%" + v }),
	"contains":         likeOperator(false, func(v string) string { return "%" + v + "%" }),
	"not_begins_with":  likeOperator(true, func(v string) string { return v + "%" }),
	"not_ends_with":    likeOperator(true, func(v string) string { return "%" + v }),
	"not_contains":     likeOperator(true, func(v string) string { return "%" + v + "%" }),
	"is_empty":         fixedOperator("= ''"),
	"is_not_empty":     fixedOperator("<> ''"),
	"is_null":          fixedOperator("IS NULL"),
	"is_not_null":      fixedOperator("IS NOT NULL"),
	"between": func(column string, value any) (string, []any, error) {
		bounds, ok := value.([]any)
		if !ok || len(bounds) != 2 || bounds[0] == nil || bounds[1] == nil {
			return "", nil, fmt.Errorf("%w: value for %s must be a [low, high] pair", ErrInvalidSearch, column)
		}
		return column + " BETWEEN ? AND ?", []any{bounds[0], bounds[1]}, nil
	},
}

func joinerFor(condition string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(condition)) {
	case "", "or":
		return " OR ", nil
	case "and":
		return " AND ", nil
	}
	return "", fmt.Errorf("%w: condition must be and or or", ErrInvalidSearch)
}

// buildSearchClause renders a rule tree into a parameterised WHERE fragment. Fields are resolved
// through columns so request input never reaches the SQL text.
func buildSearchClause(condition string, rules []SearchRule, columns map[string]string, depth int) (string, []any, error) {
	if depth > maxSearchDepth {
		return "", nil, fmt.Errorf("%w: rules nested deeper than %d", ErrInvalidSearch, maxSearchDepth)
	}
	joiner, err := joinerFor(condition)
	if err != nil {
		return "", nil, err
	}
	parts := make([]string, 0, len(rules))
	var args []any
	for _, rule := range rules {
		if rule.Operator == "" && (rule.Condition != "" || len(rule.Rules) > 0) {
			sql, groupArgs, err := buildSearchClause(rule.Condition, rule.Rules, columns, depth+1)
			if err != nil {
				return "", nil, err
			}
			if sql != "" {
				parts = append(parts, "("+sql+")")
				args = append(args, groupArgs...)
			}
			continue
		}
		column, ok := columns[rule.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown field %q", ErrInvalidSearch, rule.Field)
		}
		op, ok := searchOperators[rule.Operator]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidSearch, rule.Operator)
		}
		sql, opArgs, err := op(column, rule.Value)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, opArgs...)
	}
	return strings.Join(parts, joiner), args, nil
}

func searchOrder(req SearchRequest, columns map[string]string) (string, error) {
	if req.ItemSort == "" {
		return "", nil
	}
	column, ok := columns[req.ItemSort]
	if !ok {
		return "", fmt.Errorf("%w: cannot sort by %q", ErrInvalidSearch, req.ItemSort)
	}
	switch strings.ToLower(req.DirectionSort) {
	case "", "asc":
		return column + " ASC", nil
	case "desc":
		return column + " DESC", nil
	}
	return "", fmt.Errorf("%w: direction_sort must be asc or desc", ErrInvalidSearch)
}

// search runs a filtered, sorted page query over the columns exposed to callers.
func (s GormStore[T]) search(ctx context.Context, req SearchRequest, columns map[string]string) (PageResult[T], error) {
	where, args, err := buildSearchClause(req.Filter.Condition, req.Filter.Rules, columns, 0)
	if err != nil {
		s.record(ctx, "search", err)
		return PageResult[T]{}, err
	}
	order, err := searchOrder(req, columns)
	if err != nil {
		s.record(ctx, "search", err)
		return PageResult[T]{}, err
	}
	page := PageRequest{Page: req.PageNumber, PageSize: req.PageSize}
	return s.listOrdered(ctx, "search", page, order, func(db *gorm.DB) *gorm.DB {
		if where == "" {
			return db
		}
		return db.Where(where, args...)
	})
}
