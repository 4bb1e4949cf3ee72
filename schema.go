package relate

import (
	"sync"

	"github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"
)

// RelationKind identifies the association shape a relation definition
// resolves to.
type RelationKind string

const (
	KindBelongsTo      RelationKind = "BelongsTo"
	KindHasOne         RelationKind = "HasOne"
	KindHasMany        RelationKind = "HasMany"
	KindBelongsToMany  RelationKind = "BelongsToMany"
	KindHasOneThrough  RelationKind = "HasOneThrough"
	KindHasManyThrough RelationKind = "HasManyThrough"
	KindMorphOne       RelationKind = "MorphOne"
	KindMorphMany      RelationKind = "MorphMany"
	KindMorphTo        RelationKind = "MorphTo"
	KindMorphToMany    RelationKind = "MorphToMany"
	KindMorphedByMany  RelationKind = "MorphedByMany"
)

// Schema is the static definition of one entity type: table, identity,
// guard policy, relations and global scopes. Schemas are built once through
// DefineEntity and shared by every Entity and Query of that type.
type Schema struct {
	name       string
	table      string
	primaryKey string
	keyType    KeyType
	connection string

	softDeleteColumn string
	createdAtColumn  string
	updatedAtColumn  string

	guarded  bool
	fillable map[string]bool

	relations     map[string]*relationDef
	relationOrder []string

	globalScopes map[string]Scope
	scopeOrder   []string
}

// relationDef pairs a relation's declared kind with the factory that
// builds a live Relation for a given parent entity.
type relationDef struct {
	name    string
	kind    RelationKind
	related string
	factory func(parent *Entity, conn *Connection) (Relation, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Schema{}

	morphMu      sync.RWMutex
	morphAliases = map[string]string{} // alias -> entity name
	morphStrict  bool
)

var plural = pluralize.NewClient()

// DefineEntity registers a schema for the named entity type and configures
// it through fn. Table and key names not set explicitly are inferred:
// table = plural snake case of the name, primary key = "id", integer keys.
func DefineEntity(name string, fn func(c *Configurator)) *Schema {
	s := &Schema{
		name:         name,
		table:        plural.Plural(strcase.ToSnake(name)),
		primaryKey:   "id",
		keyType:      KeyInt,
		fillable:     map[string]bool{},
		relations:    map[string]*relationDef{},
		globalScopes: map[string]Scope{},
	}

	if fn != nil {
		fn(&Configurator{s: s})
	}

	registryMu.Lock()
	registry[name] = s
	registryMu.Unlock()

	return s
}

// SchemaOf returns the registered schema for an entity type name.
func SchemaOf(name string) (*Schema, error) {
	registryMu.RLock()
	s, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, &InvalidArgumentError{Message: "no entity registered under name " + name}
	}
	return s, nil
}

// ResetSchemas clears the schema registry and morph map. Intended for tests.
func ResetSchemas() {
	registryMu.Lock()
	registry = map[string]*Schema{}
	registryMu.Unlock()

	morphMu.Lock()
	morphAliases = map[string]string{}
	morphStrict = false
	morphMu.Unlock()
}

// RegisterMorphMap maps stored polymorphic type strings to entity names,
// so database rows need not carry full type names.
func RegisterMorphMap(aliases map[string]string) {
	morphMu.Lock()
	defer morphMu.Unlock()
	for alias, entity := range aliases {
		morphAliases[alias] = entity
	}
}

// RequireMorphMap toggles rejection of polymorphic type strings that have
// no registered alias. Default is permissive: unmapped strings are treated
// as entity names.
func RequireMorphMap(strict bool) {
	morphMu.Lock()
	morphStrict = strict
	morphMu.Unlock()
}

// morphAliasOf returns the stored type string for a schema: its registered
// alias when one exists, otherwise the entity name itself.
func morphAliasOf(s *Schema) string {
	morphMu.RLock()
	defer morphMu.RUnlock()
	for alias, entity := range morphAliases {
		if entity == s.name {
			return alias
		}
	}
	return s.name
}

// morphSchemaFor resolves a stored type string back to a schema.
func morphSchemaFor(typeValue string) (*Schema, error) {
	morphMu.RLock()
	entity, mapped := morphAliases[typeValue]
	strict := morphStrict
	morphMu.RUnlock()

	if !mapped {
		if strict {
			return nil, &InvalidArgumentError{Message: "morph type " + typeValue + " has no registered alias"}
		}
		entity = typeValue
	}
	return SchemaOf(entity)
}

// Name returns the entity type name.
func (s *Schema) Name() string { return s.name }

// Table returns the table name.
func (s *Schema) Table() string { return s.table }

// PrimaryKey returns the primary key column.
func (s *Schema) PrimaryKey() string { return s.primaryKey }

// KeyType returns the declared key type.
func (s *Schema) KeyType() KeyType { return s.keyType }

// SoftDeletes reports whether the schema declares a soft-delete column.
func (s *Schema) SoftDeletes() bool { return s.softDeleteColumn != "" }

// Relation returns a relation definition by name.
func (s *Schema) relation(name string) (*relationDef, bool) {
	def, ok := s.relations[name]
	return def, ok
}

// RelationKindOf reports the declared kind of a named relation.
func (s *Schema) RelationKindOf(name string) (RelationKind, bool) {
	def, ok := s.relations[name]
	if !ok {
		return "", false
	}
	return def.kind, true
}

// conn resolves the connection this schema executes on.
func (s *Schema) conn(explicit ...*Connection) *Connection {
	if len(explicit) > 0 && explicit[0] != nil {
		return explicit[0]
	}
	if s.connection != "" {
		if c := GetConnection(s.connection); c != nil {
			return c
		}
	}
	return DefaultConnection()
}

// foreignKeyOf returns the conventional foreign key column referencing this
// schema: singular table name + "_id".
func (s *Schema) foreignKeyOf() string {
	return plural.Singular(s.table) + "_id"
}

// Configurator is the fluent surface handed to DefineEntity callbacks.
type Configurator struct {
	s *Schema
}

// Table overrides the inferred table name.
func (c *Configurator) Table(name string) *Configurator {
	c.s.table = name
	return c
}

// Connection pins the schema to a named connection.
func (c *Configurator) Connection(name string) *Configurator {
	c.s.connection = name
	return c
}

// PrimaryKey overrides the primary key column.
func (c *Configurator) PrimaryKey(column string) *Configurator {
	c.s.primaryKey = column
	return c
}

// StringKey declares the primary key as string-typed (uuid, slug, ...).
func (c *Configurator) StringKey() *Configurator {
	c.s.keyType = KeyString
	return c
}

// SoftDeletes declares a soft-delete timestamp column, "deleted_at" when
// column is empty.
func (c *Configurator) SoftDeletes(column string) *Configurator {
	if column == "" {
		column = "deleted_at"
	}
	c.s.softDeleteColumn = column
	return c
}

// Timestamps declares created_at/updated_at maintenance columns.
func (c *Configurator) Timestamps() *Configurator {
	c.s.createdAtColumn = "created_at"
	c.s.updatedAtColumn = "updated_at"
	return c
}

// Fillable whitelists attributes for mass assignment.
func (c *Configurator) Fillable(columns ...string) *Configurator {
	for _, col := range columns {
		c.s.fillable[col] = true
	}
	return c
}

// Guarded marks the entity totally guarded: Fill rejects every attribute
// not whitelisted through Fillable.
func (c *Configurator) Guarded() *Configurator {
	c.s.guarded = true
	return c
}

// GlobalScope registers a named scope applied to every query for this
// entity type unless removed with WithoutGlobalScope.
func (c *Configurator) GlobalScope(name string, scope Scope) *Configurator {
	if _, exists := c.s.globalScopes[name]; !exists {
		c.s.scopeOrder = append(c.s.scopeOrder, name)
	}
	c.s.globalScopes[name] = scope
	return c
}

func (c *Configurator) addRelation(name string, kind RelationKind, related string,
	factory func(parent *Entity, conn *Connection) (Relation, error)) {
	if _, exists := c.s.relations[name]; !exists {
		c.s.relationOrder = append(c.s.relationOrder, name)
	}
	c.s.relations[name] = &relationDef{name: name, kind: kind, related: related, factory: factory}
}

// fillableColumn reports whether Fill may write the column. A non-empty
// fillable list acts as a whitelist; Guarded rejects everything outside it.
func (s *Schema) fillableColumn(column string) bool {
	if len(s.fillable) > 0 {
		return s.fillable[column]
	}
	return !s.guarded
}
