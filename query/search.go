package query

import (
	"context"
	"errors"

	"github.com/memback/memback/storage"
	"github.com/memback/memback/types"
)

// Search filters the named collection and returns deep copies of every
// matching document in insertion order, so callers can mutate results
// without corrupting stored state.
//
// A where clause whose top-level key is $relatedTo resolves the relation
// itself: the result is the set of related objects, not a filtered scan.
func Search(ctx context.Context, store *storage.Memory, className string, where map[string]any) ([]map[string]any, error) {
	if operand, ok := where[relatedToOperator]; ok {
		return searchRelated(ctx, store, className, operand)
	}
	filter := NewFilter(store, where)
	var results []map[string]any
	err := store.Collection(className).Each(func(id string, doc map[string]any) error {
		match, err := filter.Match(ctx, doc)
		if err != nil {
			return err
		}
		if match {
			results = append(results, types.Copy(doc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// searchRelated materializes the objects referenced by a relation array,
// looking each one up by id in the queried class. Dangling pointers
// contribute nothing.
func searchRelated(ctx context.Context, store *storage.Memory, className string, operand any) ([]map[string]any, error) {
	owner, key, err := relatedToParams(operand)
	if err != nil {
		return nil, err
	}
	ownerClass, ownerID, ok := types.PointerTarget(owner)
	if !ok {
		return nil, errors.New("$relatedTo object must be a pointer")
	}
	target, err := store.Get(ctx, ownerClass, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	relation, _ := target[key].([]any)
	var results []map[string]any
	for _, v := range relation {
		_, id, ok := types.PointerTarget(v)
		if !ok {
			continue
		}
		doc, err := store.Get(ctx, className, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	return results, nil
}
