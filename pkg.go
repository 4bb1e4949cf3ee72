// Package relate is a relationship-centric data mapper. Entity types are
// registered by name with DefineEntity, rows hydrate into attribute-map
// entities, and declared relations resolve either lazily per entity or
// eagerly across a whole result set with batched IN queries.
//
// A minimal setup:
//
//	relate.ConnectSQLite("default", ":memory:")
//	relate.DefineEntity("User", func(c *relate.Configurator) {
//		c.HasMany("posts", "Post", relate.HasManyConfig{})
//	})
//	relate.DefineEntity("Post", func(c *relate.Configurator) {
//		c.BelongsTo("author", "User", relate.BelongsToConfig{ForeignKey: "user_id"})
//	})
//	users, err := relate.NewQuery("User").With("posts.author").Get(ctx)
package relate

import "context"

// All fetches every row of the named entity type.
func All(ctx context.Context, entity string) (*Collection, error) {
	return NewQuery(entity).Get(ctx)
}

// Find fetches one entity by primary key, or nil when absent.
func Find(ctx context.Context, entity string, id any) (*Entity, error) {
	return NewQuery(entity).Find(ctx, id)
}

// FindOrFail fetches one entity by primary key or returns a NotFoundError.
func FindOrFail(ctx context.Context, entity string, id any) (*Entity, error) {
	return NewQuery(entity).FindOrFail(ctx, id)
}

// Create inserts a row for the named entity type, honoring its
// mass-assignment rules, and returns the persisted entity.
func Create(ctx context.Context, entity string, values map[string]any) (*Entity, error) {
	e, err := NewEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := e.Fill(values); err != nil {
		return nil, err
	}
	q := NewQuery(entity)
	if q.err != nil {
		return nil, q.err
	}
	id, err := q.Insert(ctx, e.Attributes())
	if err != nil {
		return nil, err
	}
	return NewQuery(entity).FindOrFail(ctx, id)
}
