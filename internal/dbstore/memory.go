package dbstore

import (
	"context"
	"sync"
)

// memoryCollection is an in-memory Collection[T], used by unit tests
// in place of the postgres implementation.
type memoryCollection[T Document] struct {
	name string
	mu   sync.Mutex
	docs map[string]T
}

// NewMemoryCollection returns an in-memory Collection[T] for tests.
func NewMemoryCollection[T Document](name string) Collection[T] {
	return &memoryCollection[T]{
		name: name,
		docs: make(map[string]T),
	}
}

func (c *memoryCollection[T]) Get(_ context.Context, id string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		var zero T
		return zero, &NotFoundError{Collection: c.name, ID: id}
	}
	return doc, nil
}

func (c *memoryCollection[T]) List(_ context.Context, filter func(T) bool) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.docs))
	for _, doc := range c.docs {
		if filter == nil || filter(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (c *memoryCollection[T]) Create(_ context.Context, doc T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[doc.DocID()]; exists {
		return &ConflictError{Collection: c.name, ID: doc.DocID(), Reason: "id already exists"}
	}
	c.docs[doc.DocID()] = doc
	return nil
}

func (c *memoryCollection[T]) CompareAndSwap(
	_ context.Context,
	id string,
	mutate func(current T) (T, error),
) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	current, ok := c.docs[id]
	if !ok {
		return zero, &NotFoundError{Collection: c.name, ID: id}
	}
	updated, err := mutate(current)
	if err != nil {
		return zero, err
	}
	c.docs[id] = updated
	return updated, nil
}

func (c *memoryCollection[T]) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, id)
	return nil
}
