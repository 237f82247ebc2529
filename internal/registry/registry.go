// Package registry implements the handler registry (spec component C4)
// as a compile-time builder rather than mutable package-level state, per
// the CORE spec's redesign guidance: registry.New().Register(...).Build()
// produces an immutable table passed into the worker at construction.
package registry

import (
	"context"

	"github.com/RUBclim/vpf-730/internal/config"
	"github.com/RUBclim/vpf-730/internal/types"
)

// Handler processes one dispatched Message. A returned error routes the
// message through the worker's retry/dead-letter path.
type Handler func(ctx context.Context, msg types.Message, cfg *config.Config) error

// Builder accumulates name->Handler bindings before being sealed into an
// immutable Registry.
type Builder struct {
	handlers map[string]Handler
}

// New starts a Builder.
func New() *Builder {
	return &Builder{handlers: make(map[string]Handler)}
}

// Register binds name to h, returning the Builder so calls can be chained.
// Registering the same name twice overwrites the earlier binding — used
// only by test doubles that need to swap a handler.
func (b *Builder) Register(name string, h Handler) *Builder {
	b.handlers[name] = h
	return b
}

// Build seals the Builder into a read-only Registry.
func (b *Builder) Build() *Registry {
	sealed := make(map[string]Handler, len(b.handlers))
	for k, v := range b.handlers {
		sealed[k] = v
	}
	return &Registry{handlers: sealed}
}

// Registry is an immutable name -> Handler table, read-only after Build.
type Registry struct {
	handlers map[string]Handler
}

// Lookup resolves name to a Handler. A missing name returns ok == false;
// the worker turns that into the same retry/dead-letter path as a handler
// error, rather than panicking.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
