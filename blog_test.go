package relate

import (
	"context"
	"testing"
)

// setupBlog registers a blog-shaped entity graph on a fresh in-memory
// sqlite database. It exercises every relation kind:
//
//	Country  --HasMany-->            User
//	Country  --HasManyThrough-->     Post (through User)
//	Country  --HasOneThrough-->      Phone (through User)
//	User     --BelongsTo-->          Country
//	User     --BelongsTo-->          User (bestFriend, self join)
//	User     --HasOne-->             Phone
//	User     --HasMany-->            Post
//	User     --BelongsToMany-->      Role  (pivot role_user)
//	User     --MorphMany-->          Image (imageable)
//	Post     --BelongsTo-->          User  (author)
//	Post     --HasMany-->            Comment
//	Post     --MorphMany-->          Image (imageable)
//	Post     --MorphToMany-->        Tag   (taggables)
//	Image    --MorphTo-->            imageable
//	Tag      --MorphedByMany-->      Post
func setupBlog(t *testing.T) *Connection {
	t.Helper()
	ResetSchemas()
	ResetConnections()

	conn, err := ConnectSQLite("default", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		ResetConnections()
		ResetSchemas()
		conn.DB().Close()
	})

	ctx := context.Background()
	_, err = conn.Exec(ctx, `
		CREATE TABLE countries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT
		);
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			country_id INTEGER,
			best_friend_id INTEGER,
			name TEXT
		);
		CREATE TABLE phones (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			number TEXT
		);
		CREATE TABLE posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			title TEXT,
			views INTEGER DEFAULT 0,
			deleted_at TIMESTAMP
		);
		CREATE TABLE comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id INTEGER,
			body TEXT
		);
		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT
		);
		CREATE TABLE role_user (
			user_id INTEGER,
			role_id INTEGER,
			active INTEGER DEFAULT 0
		);
		CREATE TABLE images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT,
			imageable_type TEXT,
			imageable_id INTEGER
		);
		CREATE TABLE tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT
		);
		CREATE TABLE taggables (
			tag_id INTEGER,
			taggable_id INTEGER,
			taggable_type TEXT
		);
		CREATE TABLE articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT,
			published INTEGER DEFAULT 0,
			priority INTEGER DEFAULT 0
		);
		CREATE TABLE api_keys (
			id TEXT PRIMARY KEY,
			label TEXT,
			secret TEXT
		);
	`)
	if err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}

	_, err = conn.Exec(ctx, `
		INSERT INTO countries (id, name) VALUES (1, 'US'), (2, 'FR');
		INSERT INTO users (id, country_id, best_friend_id, name) VALUES
			(1, 1, NULL, 'Alice'),
			(2, 1, 1, 'Bob'),
			(3, 2, NULL, 'Carla');
		INSERT INTO phones (id, user_id, number) VALUES
			(1, 1, '555-0100'),
			(2, 2, '555-0101');
		INSERT INTO posts (id, user_id, title, views, deleted_at) VALUES
			(1, 1, 'First', 10, NULL),
			(2, 1, 'Second', 20, NULL),
			(3, 2, 'Third', 5, NULL),
			(4, 2, 'Trashed', 0, '2026-01-01 00:00:00'),
			(5, NULL, 'Orphan', 1, NULL);
		INSERT INTO comments (id, post_id, body) VALUES
			(1, 1, 'nice'),
			(2, 1, 'agreed'),
			(3, 3, 'hm');
		INSERT INTO roles (id, title) VALUES (1, 'admin'), (2, 'editor'), (3, 'viewer');
		INSERT INTO role_user (user_id, role_id, active) VALUES
			(1, 1, 1),
			(1, 2, 0),
			(2, 2, 1);
		INSERT INTO images (id, url, imageable_type, imageable_id) VALUES
			(1, 'first.png', 'post', 1),
			(2, 'alice.png', 'user', 1),
			(3, 'third.png', 'post', 3);
		INSERT INTO tags (id, name) VALUES (1, 'go'), (2, 'db');
		INSERT INTO taggables (tag_id, taggable_id, taggable_type) VALUES
			(1, 1, 'post'),
			(2, 1, 'post'),
			(1, 3, 'post');
		INSERT INTO articles (id, title, published, priority) VALUES
			(1, 'Alpha', 1, 0),
			(2, 'Beta', 0, 9),
			(3, 'Gamma', 0, 0);
	`)
	if err != nil {
		t.Fatalf("failed to seed data: %v", err)
	}

	RegisterMorphMap(map[string]string{
		"post": "Post",
		"user": "User",
	})

	DefineEntity("Country", func(c *Configurator) {
		c.HasMany("users", "User", HasManyConfig{})
		c.HasManyThrough("posts", "Post", "User", HasManyThroughConfig{})
		c.HasOneThrough("phone", "Phone", "User", HasOneThroughConfig{})
	})
	DefineEntity("User", func(c *Configurator) {
		c.BelongsTo("country", "Country", BelongsToConfig{})
		c.BelongsTo("bestFriend", "User", BelongsToConfig{ForeignKey: "best_friend_id"})
		c.HasOne("phone", "Phone", HasOneConfig{})
		c.HasMany("posts", "Post", HasManyConfig{})
		c.BelongsToMany("roles", "Role", BelongsToManyConfig{PivotColumns: []string{"active"}})
		c.MorphMany("images", "Image", MorphManyConfig{Name: "imageable"})
	})
	DefineEntity("Phone", func(c *Configurator) {
		c.BelongsTo("user", "User", BelongsToConfig{})
	})
	DefineEntity("Post", func(c *Configurator) {
		c.SoftDeletes("")
		c.BelongsTo("author", "User", BelongsToConfig{ForeignKey: "user_id"})
		c.HasMany("comments", "Comment", HasManyConfig{})
		c.MorphMany("images", "Image", MorphManyConfig{Name: "imageable"})
		c.MorphToMany("tags", "Tag", MorphToManyConfig{Name: "taggable"})
	})
	DefineEntity("Comment", func(c *Configurator) {
		c.BelongsTo("post", "Post", BelongsToConfig{})
	})
	DefineEntity("Role", func(c *Configurator) {
		c.BelongsToMany("users", "User", BelongsToManyConfig{PivotColumns: []string{"active"}})
	})
	DefineEntity("Image", func(c *Configurator) {
		c.MorphTo("imageable", MorphToConfig{})
	})
	DefineEntity("Tag", func(c *Configurator) {
		c.MorphedByMany("posts", "Post", MorphToManyConfig{Name: "taggable"})
	})
	DefineEntity("Article", func(c *Configurator) {
		c.GlobalScope("visible", ScopeFunc(func(q *Query) {
			q.Where("published", 1).OrWhere("priority", ">=", 5)
		}))
	})
	DefineEntity("ApiKey", func(c *Configurator) {
		c.StringKey().Fillable("id", "label")
	})

	return conn
}

// countQueries installs a hook counting every statement the connection
// executes from now on.
func countQueries(conn *Connection) *int {
	n := new(int)
	conn.OnQuery(func(string, []any) { *n++ })
	return n
}

func findByName(items []*Entity, name string) *Entity {
	for _, e := range items {
		if e.GetString("name") == name {
			return e
		}
	}
	return nil
}
