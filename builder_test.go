package relate

import "testing"

func TestBuilderBasicSelect(t *testing.T) {
	b := newBuilder("users")
	sql, args := b.ToSQL()
	if sql != "SELECT users.* FROM users" {
		t.Errorf("sql = %q", sql)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}

func TestBuilderWhereAndOrder(t *testing.T) {
	b := newBuilder("users")
	b.Where("users.age >= ?", 21).OrWhere("users.vip = ?", true)
	b.OrderBy("users.id ASC").Limit(10).Offset(5)

	sql, args := b.ToSQL()
	want := "SELECT users.* FROM users WHERE users.age >= ? OR users.vip = ? ORDER BY users.id ASC LIMIT 10 OFFSET 5"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}
	if len(args) != 2 || args[0] != 21 || args[1] != true {
		t.Errorf("args = %v", args)
	}
}

func TestBuilderNestedGroups(t *testing.T) {
	b := newBuilder("posts")
	b.Where("posts.user_id = ?", 1)
	b.WhereGroup("AND", func(inner *builder) {
		inner.Where("posts.views > ?", 10).OrWhere("posts.title = ?", "x")
	})

	sql, args := b.ToSQL()
	want := "SELECT posts.* FROM posts WHERE posts.user_id = ? AND (posts.views > ? OR posts.title = ?)"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}
	if len(args) != 3 {
		t.Errorf("args = %v", args)
	}
}

func TestBuilderGroupWheresFrom(t *testing.T) {
	b := newBuilder("posts")
	b.Where("posts.id > ?", 0)
	idx := len(b.wheres)
	b.Where("posts.published = ?", 1).OrWhere("posts.priority >= ?", 5)
	b.groupWheresFrom(idx)

	sql, _ := b.ToSQL()
	want := "SELECT posts.* FROM posts WHERE posts.id > ? AND (posts.published = ? OR posts.priority >= ?)"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}

	// Single trailing predicate needs no group.
	b2 := newBuilder("posts")
	idx = len(b2.wheres)
	b2.Where("posts.id = ?", 1)
	b2.groupWheresFrom(idx)
	sql, _ = b2.ToSQL()
	if sql != "SELECT posts.* FROM posts WHERE posts.id = ?" {
		t.Errorf("sql = %q", sql)
	}
}

func TestBuilderAlias(t *testing.T) {
	b := newBuilder("users")
	b.As("relation_reserved_1")
	sql, _ := b.ToSQL()
	want := "SELECT relation_reserved_1.* FROM users AS relation_reserved_1"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}
}

func TestBuilderWhereInAndJoin(t *testing.T) {
	b := newBuilder("roles")
	b.Join("role_user ON role_user.role_id = roles.id")
	b.WhereIn("role_user.user_id", []any{int64(1), int64(2)})

	sql, args := b.ToSQL()
	want := "SELECT roles.* FROM roles INNER JOIN role_user ON role_user.role_id = roles.id WHERE role_user.user_id IN (?, ?)"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}

func TestBuilderCloneIsIndependent(t *testing.T) {
	b := newBuilder("users")
	b.Where("users.id = ?", 1)
	clone := b.Clone()
	clone.Where("users.name = ?", "x")

	if len(b.wheres) != 1 {
		t.Errorf("original wheres = %d, want 1", len(b.wheres))
	}
	if len(clone.wheres) != 2 {
		t.Errorf("clone wheres = %d, want 2", len(clone.wheres))
	}
}

func TestGroupWheresSingleOrClause(t *testing.T) {
	b := newBuilder("posts")
	b.Where("posts.user_id = ?", 1)
	idx := len(b.wheres)
	b.OrWhere("posts.pinned = ?", true)
	b.groupWheresFrom(idx)

	sql, args := b.ToSQL()
	want := "SELECT posts.* FROM posts WHERE posts.user_id = ? AND (posts.pinned = ?)"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}
