package relate

import (
	"sort"

	"github.com/iancoleman/strcase"
)

// HasManyConfig configures a one-to-many relation. Zero values are
// inferred: ForeignKey from the parent's singular table name + "_id",
// LocalKey from the parent's primary key.
type HasManyConfig struct {
	ForeignKey string
	LocalKey   string
}

// HasOneConfig configures a one-to-one relation owned by the parent.
type HasOneConfig struct {
	ForeignKey string
	LocalKey   string
}

// BelongsToConfig configures the inverse side of a has relation.
// ForeignKey defaults to the relation name in snake case + "_id",
// OwnerKey to the related entity's primary key.
type BelongsToConfig struct {
	ForeignKey string
	OwnerKey   string
}

// BelongsToManyConfig configures a many-to-many relation mediated by a
// pivot table. PivotTable defaults to the two singular table names joined
// alphabetically with an underscore.
type BelongsToManyConfig struct {
	PivotTable      string
	ForeignPivotKey string
	RelatedPivotKey string
	ParentKey       string
	RelatedKey      string

	// Accessor names the pivot side-object on related entities.
	// Defaults to "pivot".
	Accessor string

	// PivotColumns are extra pivot columns fetched alongside the keys.
	PivotColumns []string

	// Timestamps maintains created/updated columns on pivot rows.
	Timestamps      bool
	CreatedAtColumn string
	UpdatedAtColumn string
}

// HasOneThroughConfig configures a to-one relation reached through an
// intermediate entity type.
type HasOneThroughConfig struct {
	FirstKey       string // key on the through table referencing the parent
	SecondKey      string // key on the related table referencing the through table
	LocalKey       string
	SecondLocalKey string

	// IncludeTrashedThrough keeps soft-deleted intermediates in the join.
	IncludeTrashedThrough bool
}

// HasManyThroughConfig configures a to-many relation reached through an
// intermediate entity type.
type HasManyThroughConfig struct {
	FirstKey       string
	SecondKey      string
	LocalKey       string
	SecondLocalKey string

	IncludeTrashedThrough bool
}

// MorphOneConfig configures a polymorphic to-one relation. Name is the
// morph base ("imageable"), expanded to "<name>_type"/"<name>_id" columns
// unless the columns are given explicitly.
type MorphOneConfig struct {
	Name       string
	TypeColumn string
	IDColumn   string
	LocalKey   string
}

// MorphManyConfig configures a polymorphic to-many relation.
type MorphManyConfig struct {
	Name       string
	TypeColumn string
	IDColumn   string
	LocalKey   string
}

// MorphToConfig configures the inverse polymorphic relation, resolved per
// row through the type discriminator column.
type MorphToConfig struct {
	Name       string
	TypeColumn string
	IDColumn   string
}

// MorphToManyConfig configures a polymorphic many-to-many relation.
// PivotTable defaults to the plural of Name.
type MorphToManyConfig struct {
	Name            string
	PivotTable      string
	ForeignPivotKey string
	RelatedPivotKey string
	ParentKey       string
	RelatedKey      string
	Accessor        string
	PivotColumns    []string
	Timestamps      bool
	CreatedAtColumn string
	UpdatedAtColumn string
}

// joiningTable derives the conventional pivot table name: the two singular
// table names sorted alphabetically and joined with an underscore.
func joiningTable(a, b *Schema) string {
	first := plural.Singular(a.table)
	second := plural.Singular(b.table)
	names := []string{first, second}
	sort.Strings(names)
	return names[0] + "_" + names[1]
}

func morphColumns(name, typeColumn, idColumn string) (string, string) {
	if typeColumn == "" {
		typeColumn = name + "_type"
	}
	if idColumn == "" {
		idColumn = name + "_id"
	}
	return typeColumn, idColumn
}

// HasMany declares a one-to-many relation to another registered entity.
func (c *Configurator) HasMany(name, related string, cfg HasManyConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindHasMany, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, err := SchemaOf(related)
		if err != nil {
			return nil, err
		}
		fk := cfg.ForeignKey
		if fk == "" {
			fk = owner.foreignKeyOf()
		}
		lk := cfg.LocalKey
		if lk == "" {
			lk = owner.primaryKey
		}
		return newHasMany(conn, relSchema, parent, fk, lk), nil
	})
	return c
}

// HasOne declares a one-to-one relation owned by this entity.
func (c *Configurator) HasOne(name, related string, cfg HasOneConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindHasOne, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, err := SchemaOf(related)
		if err != nil {
			return nil, err
		}
		fk := cfg.ForeignKey
		if fk == "" {
			fk = owner.foreignKeyOf()
		}
		lk := cfg.LocalKey
		if lk == "" {
			lk = owner.primaryKey
		}
		return newHasOne(conn, relSchema, parent, fk, lk), nil
	})
	return c
}

// BelongsTo declares the inverse of a has relation.
func (c *Configurator) BelongsTo(name, related string, cfg BelongsToConfig) *Configurator {
	c.addRelation(name, KindBelongsTo, related, func(child *Entity, conn *Connection) (Relation, error) {
		relSchema, err := SchemaOf(related)
		if err != nil {
			return nil, err
		}
		fk := cfg.ForeignKey
		if fk == "" {
			fk = strcase.ToSnake(name) + "_id"
		}
		ok := cfg.OwnerKey
		if ok == "" {
			ok = relSchema.primaryKey
		}
		return newBelongsTo(conn, relSchema, child, fk, ok), nil
	})
	return c
}

// BelongsToMany declares a many-to-many relation mediated by a pivot table.
func (c *Configurator) BelongsToMany(name, related string, cfg BelongsToManyConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindBelongsToMany, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, err := SchemaOf(related)
		if err != nil {
			return nil, err
		}
		opts := pivotOptions{
			table:           cfg.PivotTable,
			foreignPivotKey: cfg.ForeignPivotKey,
			relatedPivotKey: cfg.RelatedPivotKey,
			parentKey:       cfg.ParentKey,
			relatedKey:      cfg.RelatedKey,
			accessor:        cfg.Accessor,
			pivotColumns:    cfg.PivotColumns,
			timestamps:      cfg.Timestamps,
			createdAt:       cfg.CreatedAtColumn,
			updatedAt:       cfg.UpdatedAtColumn,
		}
		if opts.table == "" {
			opts.table = joiningTable(owner, relSchema)
		}
		if opts.foreignPivotKey == "" {
			opts.foreignPivotKey = owner.foreignKeyOf()
		}
		if opts.relatedPivotKey == "" {
			opts.relatedPivotKey = relSchema.foreignKeyOf()
		}
		if opts.parentKey == "" {
			opts.parentKey = owner.primaryKey
		}
		if opts.relatedKey == "" {
			opts.relatedKey = relSchema.primaryKey
		}
		return newBelongsToMany(conn, relSchema, parent, opts), nil
	})
	return c
}

// HasOneThrough declares a to-one relation reached through an intermediate
// entity type.
func (c *Configurator) HasOneThrough(name, related, through string, cfg HasOneThroughConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindHasOneThrough, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, throughSchema, keys, err := resolveThrough(owner, related, through,
			cfg.FirstKey, cfg.SecondKey, cfg.LocalKey, cfg.SecondLocalKey)
		if err != nil {
			return nil, err
		}
		return newHasOneThrough(conn, relSchema, throughSchema, parent, keys, cfg.IncludeTrashedThrough), nil
	})
	return c
}

// HasManyThrough declares a to-many relation reached through an
// intermediate entity type.
func (c *Configurator) HasManyThrough(name, related, through string, cfg HasManyThroughConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindHasManyThrough, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, throughSchema, keys, err := resolveThrough(owner, related, through,
			cfg.FirstKey, cfg.SecondKey, cfg.LocalKey, cfg.SecondLocalKey)
		if err != nil {
			return nil, err
		}
		return newHasManyThrough(conn, relSchema, throughSchema, parent, keys, cfg.IncludeTrashedThrough), nil
	})
	return c
}

func resolveThrough(owner *Schema, related, through, firstKey, secondKey, localKey, secondLocalKey string) (*Schema, *Schema, throughKeys, error) {
	relSchema, err := SchemaOf(related)
	if err != nil {
		return nil, nil, throughKeys{}, err
	}
	throughSchema, err := SchemaOf(through)
	if err != nil {
		return nil, nil, throughKeys{}, err
	}
	keys := throughKeys{
		firstKey:       firstKey,
		secondKey:      secondKey,
		localKey:       localKey,
		secondLocalKey: secondLocalKey,
	}
	if keys.firstKey == "" {
		keys.firstKey = owner.foreignKeyOf()
	}
	if keys.secondKey == "" {
		keys.secondKey = throughSchema.foreignKeyOf()
	}
	if keys.localKey == "" {
		keys.localKey = owner.primaryKey
	}
	if keys.secondLocalKey == "" {
		keys.secondLocalKey = throughSchema.primaryKey
	}
	return relSchema, throughSchema, keys, nil
}

// MorphOne declares a polymorphic to-one relation.
func (c *Configurator) MorphOne(name, related string, cfg MorphOneConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindMorphOne, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, err := SchemaOf(related)
		if err != nil {
			return nil, err
		}
		typeCol, idCol := morphColumns(cfg.Name, cfg.TypeColumn, cfg.IDColumn)
		lk := cfg.LocalKey
		if lk == "" {
			lk = owner.primaryKey
		}
		return newMorphOne(conn, relSchema, parent, typeCol, idCol, lk), nil
	})
	return c
}

// MorphMany declares a polymorphic to-many relation.
func (c *Configurator) MorphMany(name, related string, cfg MorphManyConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindMorphMany, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, err := SchemaOf(related)
		if err != nil {
			return nil, err
		}
		typeCol, idCol := morphColumns(cfg.Name, cfg.TypeColumn, cfg.IDColumn)
		lk := cfg.LocalKey
		if lk == "" {
			lk = owner.primaryKey
		}
		return newMorphMany(conn, relSchema, parent, typeCol, idCol, lk), nil
	})
	return c
}

// MorphTo declares the inverse polymorphic relation. The related entity
// type is resolved per row from the type discriminator column.
func (c *Configurator) MorphTo(name string, cfg MorphToConfig) *Configurator {
	base := cfg.Name
	if base == "" {
		base = strcase.ToSnake(name)
	}
	c.addRelation(name, KindMorphTo, "", func(child *Entity, conn *Connection) (Relation, error) {
		typeCol, idCol := morphColumns(base, cfg.TypeColumn, cfg.IDColumn)
		return newMorphTo(conn, child, typeCol, idCol), nil
	})
	return c
}

// MorphToMany declares a polymorphic many-to-many relation.
func (c *Configurator) MorphToMany(name, related string, cfg MorphToManyConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindMorphToMany, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, err := SchemaOf(related)
		if err != nil {
			return nil, err
		}
		opts, typeCol := morphPivotOptions(owner, relSchema, cfg)
		return newMorphToMany(conn, relSchema, parent, opts, typeCol, morphAliasOf(owner)), nil
	})
	return c
}

// MorphedByMany declares the inverse of MorphToMany: the stored morph type
// identifies the related side instead of this one.
func (c *Configurator) MorphedByMany(name, related string, cfg MorphToManyConfig) *Configurator {
	owner := c.s
	c.addRelation(name, KindMorphedByMany, related, func(parent *Entity, conn *Connection) (Relation, error) {
		relSchema, err := SchemaOf(related)
		if err != nil {
			return nil, err
		}
		// Inverse mode: pivot keys flip sides and the type column carries
		// the related entity's alias.
		flipped := cfg
		flipped.ForeignPivotKey, flipped.RelatedPivotKey = cfg.RelatedPivotKey, cfg.ForeignPivotKey
		if flipped.ForeignPivotKey == "" {
			flipped.ForeignPivotKey = owner.foreignKeyOf()
		}
		if flipped.RelatedPivotKey == "" {
			flipped.RelatedPivotKey = cfg.Name + "_id"
		}
		opts, typeCol := morphPivotOptions(owner, relSchema, flipped)
		return newMorphToMany(conn, relSchema, parent, opts, typeCol, morphAliasOf(relSchema)), nil
	})
	return c
}

func morphPivotOptions(owner, relSchema *Schema, cfg MorphToManyConfig) (pivotOptions, string) {
	typeCol, idCol := morphColumns(cfg.Name, "", "")
	opts := pivotOptions{
		table:           cfg.PivotTable,
		foreignPivotKey: cfg.ForeignPivotKey,
		relatedPivotKey: cfg.RelatedPivotKey,
		parentKey:       cfg.ParentKey,
		relatedKey:      cfg.RelatedKey,
		accessor:        cfg.Accessor,
		pivotColumns:    cfg.PivotColumns,
		timestamps:      cfg.Timestamps,
		createdAt:       cfg.CreatedAtColumn,
		updatedAt:       cfg.UpdatedAtColumn,
	}
	if opts.table == "" {
		opts.table = plural.Plural(cfg.Name)
	}
	if opts.foreignPivotKey == "" {
		opts.foreignPivotKey = idCol
	}
	if opts.relatedPivotKey == "" {
		opts.relatedPivotKey = relSchema.foreignKeyOf()
	}
	if opts.parentKey == "" {
		opts.parentKey = owner.primaryKey
	}
	if opts.relatedKey == "" {
		opts.relatedKey = relSchema.primaryKey
	}
	return opts, typeCol
}
