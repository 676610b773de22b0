package store

import (
	"context"
	"errors"
	"sync"
)

// Level is the depth of a Scope in the suite → group → case tree.
type Level int

const (
	LevelSuite Level = iota
	LevelGroup
	LevelCase
)

// String makes Level satisfy the fmt.Stringer interface.
func (l Level) String() string {
	switch l {
	case LevelSuite:
		return "suite"
	case LevelGroup:
		return "group"
	case LevelCase:
		return "case"
	default:
		return "unknown"
	}
}

// Scope is one node of the scope tree. Each scope owns its own Store;
// lookups never delegate to the parent.
type Scope struct {
	id     string
	level  Level
	parent *Scope
	store  *Store

	mu       sync.Mutex
	children map[string]*Scope
	order    []string
	closed   bool
}

// NewSuite creates the root scope of a test run.
func NewSuite(id string) *Scope {
	return newScope(id, LevelSuite, nil)
}

func newScope(id string, level Level, parent *Scope) *Scope {
	return &Scope{
		id:       id,
		level:    level,
		parent:   parent,
		store:    New(),
		children: make(map[string]*Scope),
	}
}

// ID returns the scope identifier, e.g. the group name.
func (s *Scope) ID() string { return s.id }

// Level returns the depth of the scope.
func (s *Scope) Level() Level { return s.level }

// Parent returns the enclosing scope, nil for the suite.
func (s *Scope) Parent() *Scope { return s.parent }

// Store returns the scope's own store.
func (s *Scope) Store() *Store { return s.store }

// Root walks up to the suite scope.
func (s *Scope) Root() *Scope {
	root := s
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Child returns the child scope with the given id, creating it on first use.
// Children of a case scope are case scopes as well.
func (s *Scope) Child(id string) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.children[id]; ok {
		return c
	}
	level := s.level + 1
	if level > LevelCase {
		level = LevelCase
	}
	c := newScope(id, level, s)
	s.children[id] = c
	s.order = append(s.order, id)
	return c
}

// Close closes every child scope (newest first), then the Closer values of
// its own store in reverse insertion order, and detaches itself from the
// parent. Closing twice is a no-op.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	children := make([]*Scope, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		children = append(children, s.children[s.order[i]])
	}
	s.mu.Unlock()

	var errs []error
	for _, c := range children {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.closeValues(ctx); err != nil {
		errs = append(errs, err)
	}

	if s.parent != nil {
		s.parent.detach(s.id)
	}
	return errors.Join(errs...)
}

func (s *Scope) detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.children, id)
	for i, c := range s.order {
		if c == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
