package relate

import (
	"context"
	"strings"
	"testing"
)

func TestCollectionSetOperations(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()
	_ = conn

	all, err := NewQuery("User").OrderBy("id", "ASC").Get(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	us, err := NewQuery("User").Where("country_id", 1).Get(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	diff := all.Diff(us)
	if diff.Len() != 1 || diff.First().GetString("name") != "Carla" {
		t.Errorf("diff = %v", diff.Pluck("name"))
	}

	inter := all.Intersect(us)
	if inter.Len() != 2 {
		t.Errorf("intersect = %v", inter.Pluck("name"))
	}

	dupes := newCollection(all.schema, append(all.Items(), all.Items()...))
	if dupes.Unique().Len() != 3 {
		t.Errorf("unique = %d, want 3", dupes.Unique().Len())
	}
}

func TestCollectionLoadMissing(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()

	users, err := NewQuery("User").Get(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	// Pre-load onto one entity; LoadMissing must only fetch for the rest.
	alice := findByName(users.Items(), "Alice")
	if _, err := alice.LoadRelation(ctx, "posts"); err != nil {
		t.Fatalf("preload failed: %v", err)
	}

	queries := countQueries(conn)
	if err := users.LoadMissing(ctx, "posts"); err != nil {
		t.Fatalf("load missing failed: %v", err)
	}
	if *queries != 1 {
		t.Errorf("query count = %d, want 1", *queries)
	}
	for _, u := range users.Items() {
		if !u.RelationLoaded("posts") {
			t.Errorf("posts not loaded on %s", u.GetString("name"))
		}
	}

	// Everything loaded: no further queries.
	if err := users.LoadMissing(ctx, "posts"); err != nil {
		t.Fatalf("second load missing failed: %v", err)
	}
	if *queries != 1 {
		t.Errorf("query count after no-op = %d, want 1", *queries)
	}
}

func TestCollectionLoadOverwrites(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()

	users, err := NewQuery("User").With("posts").Get(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	queries := countQueries(conn)
	if err := users.Load(ctx, "posts"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if *queries != 1 {
		t.Errorf("query count = %d, want 1 (Load always refetches)", *queries)
	}
}

func TestLoadCount(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()

	users, err := NewQuery("User").Get(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	queries := countQueries(conn)
	if err := users.LoadCount(ctx, "posts"); err != nil {
		t.Fatalf("load count failed: %v", err)
	}
	if *queries != 1 {
		t.Errorf("query count = %d, want 1", *queries)
	}

	for _, u := range users.Items() {
		n, _ := u.GetInt("posts_count")
		var want int64
		switch u.GetString("name") {
		case "Alice":
			want = 2
		case "Bob":
			want = 1
		case "Carla":
			want = 0
		}
		if n != want {
			t.Errorf("%s posts_count = %d, want %d", u.GetString("name"), n, want)
		}
		if u.IsDirty() {
			t.Errorf("%s dirty after LoadCount", u.GetString("name"))
		}
	}
}

func TestLoadSum(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()
	_ = conn

	users, err := NewQuery("User").Get(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if err := users.LoadSum(ctx, "posts", "views"); err != nil {
		t.Fatalf("load sum failed: %v", err)
	}
	alice := findByName(users.Items(), "Alice")
	if n, _ := alice.GetInt("posts_sum_views"); n != 30 {
		t.Errorf("Alice posts_sum_views = %v, want 30", alice.Get("posts_sum_views"))
	}
	carla := findByName(users.Items(), "Carla")
	if n, _ := carla.GetInt("posts_sum_views"); n != 0 {
		t.Errorf("Carla posts_sum_views = %v, want 0", carla.Get("posts_sum_views"))
	}
}

func TestCollectionJSON(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()
	_ = conn

	users, err := NewQuery("User").Where("name", "Nobody").Get(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	out, err := users.ToJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != "[]" {
		t.Errorf("empty collection JSON = %s, want []", out)
	}

	users, _ = NewQuery("User").OrderBy("id", "ASC").Get(ctx)
	out, err = users.ToJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.HasPrefix(string(out), `[{`) || !strings.Contains(string(out), "Alice") {
		t.Errorf("collection JSON = %s", out)
	}
}

func TestLoadMissingNestedUnderLoadedRoot(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()

	users, err := NewQuery("User").With("posts").Get(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	// Every root is already loaded; LoadMissing must still descend into
	// the posts and fetch their comments.
	queries := countQueries(conn)
	if err := users.LoadMissing(ctx, "posts.comments"); err != nil {
		t.Fatalf("load missing failed: %v", err)
	}
	if *queries != 1 {
		t.Errorf("query count = %d, want 1 (comments only)", *queries)
	}

	alice := findByName(users.Items(), "Alice")
	posts, ok := alice.RelatedCollection("posts")
	if !ok {
		t.Fatal("posts relation missing on Alice")
	}
	for _, p := range posts.Items() {
		if !p.RelationLoaded("comments") {
			t.Errorf("comments not loaded on post %q", p.GetString("title"))
		}
	}
	for _, p := range posts.Items() {
		if p.GetString("title") != "First" {
			continue
		}
		comments, _ := p.RelatedCollection("comments")
		if comments.Len() != 2 {
			t.Errorf("First comments = %d, want 2", comments.Len())
		}
	}
}
