package relate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestFillHonorsGuards(t *testing.T) {
	conn := setupBlog(t)
	_ = conn

	key, err := NewEntity("ApiKey")
	if err != nil {
		t.Fatalf("new entity failed: %v", err)
	}
	if err := key.Fill(map[string]any{"label": "ci"}); err != nil {
		t.Fatalf("fill failed: %v", err)
	}

	err = key.Fill(map[string]any{"secret": "hunter2"})
	if !errors.Is(err, ErrMassAssignment) {
		t.Fatalf("err = %v, want ErrMassAssignment", err)
	}
	var ma *MassAssignmentError
	if !errors.As(err, &ma) || ma.Attribute != "secret" {
		t.Errorf("error context = %+v", ma)
	}

	// Set bypasses the guard.
	key.Set("secret", "hunter2")
	if key.Get("secret") != "hunter2" {
		t.Error("Set must bypass mass-assignment guards")
	}
}

func TestDirtyTracking(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()
	_ = conn

	user, err := NewQuery("User").Where("name", "Alice").FirstOrFail(ctx)
	if err != nil {
		t.Fatalf("failed to get Alice: %v", err)
	}
	if user.IsDirty() {
		t.Error("freshly hydrated entity must be clean")
	}

	user.Set("name", "Alicia")
	if !user.IsDirty() {
		t.Error("entity must be dirty after Set")
	}
	if !user.IsDirty("name") || user.IsDirty("country_id") {
		t.Error("per-column dirtiness wrong")
	}
	dirty := user.Dirty()
	if len(dirty) != 1 || dirty["name"] != "Alicia" {
		t.Errorf("dirty = %v", dirty)
	}

	user.syncOriginal()
	if user.IsDirty() {
		t.Error("entity must be clean after sync")
	}
}

func TestRelationCacheDistinguishesNilFromAbsent(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()
	_ = conn

	carla, err := NewQuery("User").Where("name", "Carla").FirstOrFail(ctx)
	if err != nil {
		t.Fatalf("failed to get Carla: %v", err)
	}
	if carla.RelationLoaded("phone") {
		t.Error("phone must not be loaded yet")
	}

	if _, err := carla.LoadRelation(ctx, "phone"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !carla.RelationLoaded("phone") {
		t.Error("a nil result still counts as loaded")
	}
	if p, _ := carla.RelatedEntity("phone"); p != nil {
		t.Errorf("phone = %v, want nil", p)
	}
}

func TestEntityJSONIncludesLoadedRelationsOnly(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()
	_ = conn

	alice, err := NewQuery("User").With("posts").Where("name", "Alice").FirstOrFail(ctx)
	if err != nil {
		t.Fatalf("failed to get Alice: %v", err)
	}
	out, err := alice.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `"posts"`) {
		t.Errorf("loaded relation missing from JSON: %s", s)
	}
	if strings.Contains(s, `"phone"`) {
		t.Errorf("unloaded relation present in JSON: %s", s)
	}
	if !strings.Contains(s, `"name":"Alice"`) {
		t.Errorf("attributes missing from JSON: %s", s)
	}
}

func TestAssociateDissociate(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()
	_ = conn

	post, err := NewQuery("Post").Where("title", "Orphan").FirstOrFail(ctx)
	if err != nil {
		t.Fatalf("failed to get post: %v", err)
	}
	rel, err := post.relationInstance("author")
	if err != nil {
		t.Fatalf("failed to build relation: %v", err)
	}
	author := rel.(*BelongsToRelation)

	carla, _ := NewQuery("User").Where("name", "Carla").FirstOrFail(ctx)
	author.Associate(carla)
	if v, _ := post.GetInt("user_id"); v != 3 {
		t.Errorf("user_id = %v, want 3", post.Get("user_id"))
	}
	author.Dissociate()
	if post.Get("user_id") != nil {
		t.Errorf("user_id = %v, want nil", post.Get("user_id"))
	}
}

func TestSyncOriginal(t *testing.T) {
	conn := setupBlog(t)
	ctx := context.Background()
	_ = conn

	u, err := NewQuery("User").FindOrFail(ctx, 1)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	u.Set("name", "Changed")
	if !u.IsDirty() {
		t.Fatal("entity should be dirty after Set")
	}
	u.SyncOriginal()
	if u.IsDirty() {
		t.Error("entity still dirty after SyncOriginal")
	}
	if d := u.Dirty(); len(d) != 0 {
		t.Errorf("dirty = %v, want empty", d)
	}
}
