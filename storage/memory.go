package storage

import (
	"context"
	"slices"

	"github.com/memback/memback/types"
)

// Memory holds every collection in process memory. Collections are created
// lazily on first reference and survive until Reset. Access is assumed to be
// single threaded.
type Memory struct {
	collections map[string]*Collection
}

// Collection holds the documents of a single class keyed by object id.
// Iteration follows insertion order so query results and pagination windows
// are stable.
type Collection struct {
	docs  map[string]map[string]any
	order []string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]*Collection),
	}
}

// Collection returns the collection for the given class, creating it if
// absent.
func (m *Memory) Collection(className string) *Collection {
	c, ok := m.collections[className]
	if !ok {
		c = &Collection{docs: make(map[string]map[string]any)}
		m.collections[className] = c
	}
	return c
}

// Get returns a deep copy of the document with the given id.
func (m *Memory) Get(ctx context.Context, className, id string) (map[string]any, error) {
	doc, ok := m.Collection(className).docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return types.Copy(doc), nil
}

// Put stores a deep copy of the given document under the given id, so the
// caller cannot alias stored state afterwards.
func (m *Memory) Put(ctx context.Context, className, id string, doc map[string]any) error {
	c := m.Collection(className)
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = types.Copy(doc)
	return nil
}

// Delete removes the document with the given id if it exists.
func (m *Memory) Delete(ctx context.Context, className, id string) error {
	c := m.Collection(className)
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	c.order = slices.DeleteFunc(c.order, func(o string) bool { return o == id })
	return nil
}

// Reset drops every collection.
func (m *Memory) Reset() {
	m.collections = make(map[string]*Collection)
}

// Each calls fn for every stored document in insertion order. The documents
// are the stored maps themselves; callers must copy before retaining or
// mutating them.
func (c *Collection) Each(fn func(id string, doc map[string]any) error) error {
	for _, id := range c.order {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		if err := fn(id, doc); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	return len(c.docs)
}
