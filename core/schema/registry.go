package schema

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Resolver maps a logical property of an entity type onto the column to emit
// in SQL.
type Resolver interface {
	Resolve(entity reflect.Type, property string) (string, error)
}

// Registry is the process-wide schema metadata service. Definitions are
// registered whole; a reader either sees the previous definition of an
// entity or the new one, never a partially registered type.
type Registry struct {
	mu      sync.RWMutex
	schemas map[reflect.Type]*SchemaDefinition
	logger  *zap.Logger
}

var _ Resolver = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		schemas: make(map[reflect.Type]*SchemaDefinition),
		logger:  logger,
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the shared process registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(nil)
	})
	return defaultRegistry
}

// EntityType normalizes t so that T and *T share metadata.
func EntityType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// TypeOf returns the normalized entity type of T.
func TypeOf[T any]() reflect.Type {
	return EntityType(reflect.TypeFor[T]())
}

func entityName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// Register stores the definition for entity, replacing any previous one.
// The registry keeps its own copy, later changes to def are not observed.
func (r *Registry) Register(entity reflect.Type, def *SchemaDefinition) error {
	entity = EntityType(entity)
	if entity == nil {
		return fmt.Errorf("entity type cannot be nil")
	}
	if def == nil {
		return fmt.Errorf("schema definition for '%s' cannot be nil", entityName(entity))
	}
	cp := def.Clone()
	if cp.Name == "" {
		cp.Name = entity.Name()
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("invalid schema for '%s': %w", entityName(entity), err)
	}

	r.mu.Lock()
	_, replaced := r.schemas[entity]
	r.schemas[entity] = cp
	r.mu.Unlock()

	r.logger.Info("Registered schema",
		zap.String("entity", entityName(entity)),
		zap.String("table", cp.TableName()),
		zap.Int("fields", len(cp.Fields)),
		zap.Bool("replaced", replaced))
	return nil
}

// RegisterType registers def for the entity type T.
func RegisterType[T any](r *Registry, def *SchemaDefinition) error {
	return r.Register(TypeOf[T](), def)
}

// Unregister removes the definition of entity, if any.
func (r *Registry) Unregister(entity reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schemas, EntityType(entity))
}

// Lookup returns a copy of the definition registered for entity.
func (r *Registry) Lookup(entity reflect.Type) (*SchemaDefinition, error) {
	entity = EntityType(entity)
	r.mu.RLock()
	def, ok := r.schemas[entity]
	r.mu.RUnlock()
	if !ok {
		return nil, &SchemaMetadataUnavailableError{Entity: entityName(entity)}
	}
	return def.Clone(), nil
}

// Entities returns every registered entity type.
func (r *Registry) Entities() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]reflect.Type, 0, len(r.schemas))
	for t := range r.schemas {
		out = append(out, t)
	}
	return out
}

// ColumnFor returns the physical column of property on entity.
func (r *Registry) ColumnFor(entity reflect.Type, property string) (string, error) {
	entity = EntityType(entity)
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.schemas[entity]
	if !ok {
		return "", &SchemaMetadataUnavailableError{Entity: entityName(entity)}
	}
	field := def.FindField(property)
	if field == nil {
		return "", &UnknownPropertyError{Entity: def.Name, Property: property}
	}
	return field.ColumnName(), nil
}

// Resolve implements Resolver.
func (r *Registry) Resolve(entity reflect.Type, property string) (string, error) {
	return r.ColumnFor(entity, property)
}

// TableFor returns the table or view the entity is selected from.
func (r *Registry) TableFor(entity reflect.Type) (string, error) {
	entity = EntityType(entity)
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.schemas[entity]
	if !ok {
		return "", &SchemaMetadataUnavailableError{Entity: entityName(entity)}
	}
	return def.TableName(), nil
}
