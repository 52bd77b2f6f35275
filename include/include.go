// Package include resolves pointer fields into fully materialized documents
// along dotted include paths.
package include

import (
	"context"
	"errors"
	"strings"

	"github.com/memback/memback/storage"
	"github.com/memback/memback/types"
)

// Fetch loads the document referenced by the given pointer and returns a
// deep copy tagged as a full object.
func Fetch(ctx context.Context, store *storage.Memory, pointer any) (map[string]any, error) {
	className, objectID, ok := types.PointerTarget(pointer)
	if !ok {
		return nil, storage.ErrNotFound
	}
	doc, err := store.Get(ctx, className, objectID)
	if err != nil {
		return nil, err
	}
	doc[types.TypeKey] = types.ObjectType
	doc[types.FieldClassName] = className
	return doc, nil
}

// Apply expands every comma separated include path over the result set.
// Paths are applied independently and sequentially; a document may be
// expanded along several paths without interference.
func Apply(ctx context.Context, store *storage.Memory, docs []map[string]any, paths string) error {
	if paths == "" {
		return nil
	}
	for _, path := range strings.Split(paths, ",") {
		segments := strings.Split(strings.TrimSpace(path), ".")
		for _, doc := range docs {
			if err := expand(ctx, store, doc, segments); err != nil {
				return err
			}
		}
	}
	return nil
}

// expand resolves one include path on one document. An absent or null field
// halts the branch without error; an array field expands each element
// independently.
func expand(ctx context.Context, store *storage.Memory, doc map[string]any, segments []string) error {
	if len(segments) == 0 || doc == nil {
		return nil
	}
	field := segments[0]
	value, ok := doc[field]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case []any:
		for i, elem := range v {
			expanded, err := expandValue(ctx, store, elem, segments[1:])
			if err != nil {
				return err
			}
			v[i] = expanded
		}
	default:
		expanded, err := expandValue(ctx, store, value, segments[1:])
		if err != nil {
			return err
		}
		doc[field] = expanded
	}
	return nil
}

// expandValue replaces a pointer with its fetched object, then continues
// expansion with the remaining segments. Dangling pointers are left as is.
func expandValue(ctx context.Context, store *storage.Memory, value any, rest []string) (any, error) {
	if types.IsPointer(value) {
		fetched, err := Fetch(ctx, store, value)
		if errors.Is(err, storage.ErrNotFound) {
			return value, nil
		}
		if err != nil {
			return nil, err
		}
		value = fetched
	}
	if nested, ok := value.(map[string]any); ok {
		if err := expand(ctx, store, nested, rest); err != nil {
			return nil, err
		}
	}
	return value, nil
}
