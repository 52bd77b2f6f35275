// Package query evaluates declarative where clauses against stored
// documents.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/memback/memback/storage"
	"github.com/memback/memback/types"
)

const (
	orOperator             = "$or"
	existsOperator         = "$exists"
	equalOperator          = "$eq"
	notEqualOperator       = "$ne"
	inOperator             = "$in"
	notInOperator          = "$nin"
	lessOperator           = "$lt"
	lessOrEqualOperator    = "$lte"
	greaterOperator        = "$gt"
	greaterOrEqualOperator = "$gte"
	regexOperator          = "$regex"
	allOperator            = "$all"
	selectOperator         = "$select"
	inQueryOperator        = "$inQuery"
	relatedToOperator      = "$relatedTo"
)

// Filter is a where clause bound to the store it queries. Sub-query
// operators need store access to run their inner queries.
type Filter struct {
	store *storage.Memory
	where map[string]any
}

func NewFilter(store *storage.Memory, where map[string]any) *Filter {
	return &Filter{
		store: store,
		where: where,
	}
}

// Match reports whether the document satisfies the where clause.
func (f *Filter) Match(ctx context.Context, doc map[string]any) (bool, error) {
	return f.matchWhere(ctx, doc, f.where)
}

func (f *Filter) matchWhere(ctx context.Context, doc, where map[string]any) (bool, error) {
	if where == nil {
		return true, nil
	}
	if clauses, ok := where[orOperator]; ok {
		return f.matchOr(ctx, doc, clauses)
	}
	for path, constraint := range where {
		if path == relatedToOperator {
			match, err := f.matchRelatedTo(ctx, doc, constraint)
			if err != nil || !match {
				return false, err
			}
			continue
		}
		match, err := f.matchPath(ctx, doc, constraint, path)
		if err != nil || !match {
			return false, err
		}
	}
	return true, nil
}

func (f *Filter) matchOr(ctx context.Context, doc map[string]any, clauses any) (bool, error) {
	list, ok := clauses.([]any)
	if !ok {
		return false, fmt.Errorf("%s expects a list of clauses", orOperator)
	}
	for _, c := range list {
		where, ok := c.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%s clause must be an object", orOperator)
		}
		match, err := f.matchWhere(ctx, doc, where)
		if err != nil || match {
			return match, err
		}
	}
	return false, nil
}

// matchPath evaluates one field-path constraint. Envelope constraints are
// compared by decoded equality instead of operator expansion; plain objects
// without operator keys are literal equality matches.
func (f *Filter) matchPath(ctx context.Context, doc map[string]any, constraint any, path string) (bool, error) {
	subject, found := lookupPath(doc, path)
	if types.IsPointer(constraint) || types.IsDate(constraint) {
		return types.Equal(subject, constraint), nil
	}
	operators, ok := constraint.(map[string]any)
	if !ok || !operatorsOnly(operators) {
		return types.Equal(subject, constraint), nil
	}
	for op, operand := range operators {
		match, err := f.matchOperator(ctx, doc, subject, found, op, operand)
		if err != nil || !match {
			return false, err
		}
	}
	return true, nil
}

func operatorsOnly(m map[string]any) bool {
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return len(m) > 0
}

// lookupPath walks a dotted field path through nested documents. A missing
// intermediate segment reads as absent.
func lookupPath(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (f *Filter) matchOperator(ctx context.Context, doc map[string]any, subject any, found bool, op string, operand any) (bool, error) {
	switch op {
	case existsOperator:
		want, _ := operand.(bool)
		return want == found, nil
	case equalOperator:
		return types.Equal(subject, operand), nil
	case notEqualOperator:
		return !types.Equal(subject, operand), nil
	case inOperator:
		return matchIn(subject, operand)
	case notInOperator:
		match, err := matchIn(subject, operand)
		if err != nil {
			return false, err
		}
		return !match, nil
	case lessOperator, lessOrEqualOperator, greaterOperator, greaterOrEqualOperator:
		return matchCompare(subject, found, op, operand)
	case regexOperator:
		return matchRegex(subject, operand)
	case allOperator:
		return matchAll(subject, operand)
	case selectOperator:
		return f.matchSelect(ctx, subject, operand)
	case inQueryOperator:
		return f.matchInQuery(ctx, subject, operand)
	case relatedToOperator:
		return f.matchRelatedTo(ctx, doc, operand)
	default:
		return false, fmt.Errorf("invalid query operator %s", op)
	}
}

func matchIn(subject, operand any) (bool, error) {
	list, ok := operand.([]any)
	if !ok {
		return false, fmt.Errorf("%s expects a list of values", inOperator)
	}
	for _, e := range list {
		if types.Equal(subject, e) {
			return true, nil
		}
	}
	return false, nil
}

func matchCompare(subject any, found bool, op string, operand any) (bool, error) {
	if !found || subject == nil {
		return false, nil
	}
	c, err := types.Compare(subject, operand)
	if err != nil {
		return false, err
	}
	switch op {
	case lessOperator:
		return c < 0, nil
	case lessOrEqualOperator:
		return c <= 0, nil
	case greaterOperator:
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

// matchRegex tests the subject string against the operand pattern. Literal
// quoting markers (\Q and \E) are stripped before compiling.
func matchRegex(subject, operand any) (bool, error) {
	pattern, ok := operand.(string)
	if !ok {
		return false, fmt.Errorf("%s expects a string pattern", regexOperator)
	}
	pattern = strings.NewReplacer(`\Q`, "", `\E`, "").Replace(pattern)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	s, ok := subject.(string)
	if !ok {
		return false, nil
	}
	return re.MatchString(s), nil
}

func matchAll(subject, operand any) (bool, error) {
	list, ok := operand.([]any)
	if !ok {
		return false, fmt.Errorf("%s expects a list of values", allOperator)
	}
	arr, ok := subject.([]any)
	if !ok {
		return false, nil
	}
	for _, e := range list {
		if !contains(arr, e) {
			return false, nil
		}
	}
	return true, nil
}

func contains(arr []any, v any) bool {
	for _, e := range arr {
		if types.Equal(e, v) {
			return true
		}
	}
	return false
}

// matchSelect runs the operand sub-query and matches when any sub-match's
// key field equals the subject.
func (f *Filter) matchSelect(ctx context.Context, subject, operand any) (bool, error) {
	params, ok := operand.(map[string]any)
	if !ok {
		return false, fmt.Errorf("%s expects a query and key", selectOperator)
	}
	key, _ := params["key"].(string)
	className, where, err := queryParams(params["query"])
	if err != nil {
		return false, fmt.Errorf("%s: %w", selectOperator, err)
	}
	matches, err := Search(ctx, f.store, className, where)
	if err != nil {
		return false, err
	}
	for _, m := range matches {
		if types.Equal(subject, m[key]) {
			return true, nil
		}
	}
	return false, nil
}

// matchInQuery runs the operand sub-query and matches when the subject
// points at any sub-match.
func (f *Filter) matchInQuery(ctx context.Context, subject, operand any) (bool, error) {
	className, where, err := queryParams(operand)
	if err != nil {
		return false, fmt.Errorf("%s: %w", inQueryOperator, err)
	}
	matches, err := Search(ctx, f.store, className, where)
	if err != nil {
		return false, err
	}
	for _, m := range matches {
		if types.Equal(subject, m) {
			return true, nil
		}
	}
	return false, nil
}

// matchRelatedTo matches when the relation array on the referenced object
// contains the candidate document.
func (f *Filter) matchRelatedTo(ctx context.Context, doc map[string]any, operand any) (bool, error) {
	owner, key, err := relatedToParams(operand)
	if err != nil {
		return false, err
	}
	className, objectID, ok := types.PointerTarget(owner)
	if !ok {
		return false, fmt.Errorf("%s object must be a pointer", relatedToOperator)
	}
	target, err := f.store.Get(ctx, className, objectID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return types.Equal(target[key], doc), nil
}

func queryParams(v any) (className string, where map[string]any, err error) {
	params, ok := v.(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("sub-query must be an object")
	}
	className, ok = params["className"].(string)
	if !ok {
		return "", nil, fmt.Errorf("sub-query needs a className")
	}
	where, _ = params["where"].(map[string]any)
	return className, where, nil
}

func relatedToParams(operand any) (owner map[string]any, key string, err error) {
	params, ok := operand.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("%s expects an object and key", relatedToOperator)
	}
	owner, _ = params["object"].(map[string]any)
	key, _ = params["key"].(string)
	if owner == nil || key == "" {
		return nil, "", fmt.Errorf("%s expects an object and key", relatedToOperator)
	}
	return owner, key, nil
}
