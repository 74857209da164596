// iface.go defines the collaborator contracts the mutation engine consumes.
//
// The concrete *Store satisfies all of them. The rule manager accepts the
// interfaces so tests can substitute in-memory fakes.
package store

import (
	"context"

	"github.com/daviddao/timewarp/pkg/model"
)

// VirtualStore runs parameterized statements against entity tables.
type VirtualStore interface {
	// Query returns every row produced by stmt.
	Query(ctx context.Context, stmt string, params []any) ([]model.Record, error)

	// Execute runs a write statement.
	Execute(ctx context.Context, stmt string, params []any) (model.ExecResult, error)
}

// Entity describes where an entity's records live.
type Entity interface {
	Name() string
	TableName() string
	PrimaryKey() []string
}

// EntityRegistry resolves entity names.
type EntityRegistry interface {
	// Entity returns the entity called name, if registered.
	Entity(name string) (Entity, bool)

	// Names lists registered entity names.
	Names() []string
}

// Compile-time checks that *Store implements the contracts.
var (
	_ VirtualStore   = (*Store)(nil)
	_ EntityRegistry = (*Store)(nil)
	_ Entity         = EntitySchema{}
)
