// Package update applies the atomic update operations embedded in write
// payloads.
package update

import (
	"errors"
	"fmt"

	"github.com/memback/memback/types"
)

// Kind identifies an update operation.
type Kind int

const (
	Increment Kind = iota
	Add
	AddUnique
	Remove
	Delete
	AddRelation
	RemoveRelation
)

var kindNames = map[string]Kind{
	"Increment":      Increment,
	"Add":            Add,
	"AddUnique":      AddUnique,
	"Remove":         Remove,
	"Delete":         Delete,
	"AddRelation":    AddRelation,
	"RemoveRelation": RemoveRelation,
}

// ErrUnknownOperator is returned when a payload value carries an
// unrecognized operation tag.
var ErrUnknownOperator = errors.New("unknown update operator")

// ErrNotArray is returned when an array operation targets a field that is
// present but not an array.
var ErrNotArray = errors.New("array operation on non-array field")

// Operation is a single atomic mutation parsed from a payload value.
type Operation struct {
	Kind    Kind
	Amount  float64
	Objects []any
}

// Extract partitions a write payload into literal fields and update
// operations. The input payload is never mutated; the literal map is a new
// map whose values are shared with the payload.
func Extract(payload map[string]any) (map[string]any, map[string]Operation, error) {
	literal := make(map[string]any, len(payload))
	ops := make(map[string]Operation)
	for key, value := range payload {
		tag, ok := opTag(value)
		if !ok {
			literal[key] = value
			continue
		}
		op, err := parseOperation(tag, value.(map[string]any))
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", key, err)
		}
		ops[key] = op
	}
	return literal, ops, nil
}

func opTag(value any) (string, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	tag, ok := m[types.OpKey].(string)
	return tag, ok
}

func parseOperation(tag string, args map[string]any) (Operation, error) {
	kind, ok := kindNames[tag]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", ErrUnknownOperator, tag)
	}
	op := Operation{Kind: kind}
	switch kind {
	case Increment:
		op.Amount, _ = types.Number(args["amount"])
	case Add, AddUnique, Remove, AddRelation, RemoveRelation:
		op.Objects, _ = args["objects"].([]any)
	case Delete:
	}
	return op, nil
}

// Apply executes every operation against the document in place. It returns
// the names of the fields touched by relation operations so the caller can
// mask them from responses.
func Apply(doc map[string]any, ops map[string]Operation) ([]string, error) {
	var relations []string
	for field, op := range ops {
		var err error
		switch op.Kind {
		case Increment:
			err = increment(doc, field, op.Amount)
		case Add:
			err = appendAll(doc, field, op.Objects)
		case AddUnique:
			err = appendUnique(doc, field, op.Objects)
		case Remove:
			err = removeAll(doc, field, op.Objects)
		case Delete:
			delete(doc, field)
		case AddRelation:
			err = appendAll(doc, field, op.Objects)
			relations = append(relations, field)
		case RemoveRelation:
			err = removeAll(doc, field, op.Objects)
			relations = append(relations, field)
		}
		if err != nil {
			return nil, err
		}
	}
	return relations, nil
}

func increment(doc map[string]any, field string, amount float64) error {
	current, ok := types.Number(doc[field])
	if !ok && doc[field] != nil {
		return fmt.Errorf("cannot increment non-numeric field %s", field)
	}
	doc[field] = current + amount
	return nil
}

// arrayField returns the array stored at the field. An absent or null field
// reads as an empty array; any other non-array value is an error.
func arrayField(doc map[string]any, field string) ([]any, error) {
	value, ok := doc[field]
	if !ok || value == nil {
		return nil, nil
	}
	arr, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, field)
	}
	return arr, nil
}

func appendAll(doc map[string]any, field string, objects []any) error {
	arr, err := arrayField(doc, field)
	if err != nil {
		return err
	}
	doc[field] = append(arr, objects...)
	return nil
}

func appendUnique(doc map[string]any, field string, objects []any) error {
	arr, err := arrayField(doc, field)
	if err != nil {
		return err
	}
	for _, o := range objects {
		if !contains(arr, o) {
			arr = append(arr, o)
		}
	}
	doc[field] = arr
	return nil
}

func removeAll(doc map[string]any, field string, objects []any) error {
	arr, err := arrayField(doc, field)
	if err != nil {
		return err
	}
	kept := make([]any, 0, len(arr))
	for _, e := range arr {
		if !contains(objects, e) {
			kept = append(kept, e)
		}
	}
	doc[field] = kept
	return nil
}

func contains(arr []any, v any) bool {
	for _, e := range arr {
		if types.Equal(e, v) {
			return true
		}
	}
	return false
}
