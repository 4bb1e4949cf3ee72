package relate

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openCacheDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	return db
}

func prepare(t *testing.T, db *sql.DB, query string) *sql.Stmt {
	t.Helper()
	stmt, err := db.Prepare(query)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	return stmt
}

func TestStmtCacheHitAndMiss(t *testing.T) {
	db := openCacheDB(t)
	cache := NewStmtCache(4)
	defer cache.Close()

	if stmt, _ := cache.Get("SELECT id FROM t"); stmt != nil {
		t.Error("empty cache returned a statement")
	}

	prepared := prepare(t, db, "SELECT id FROM t")
	cached, release := cache.PutAndGet("SELECT id FROM t", prepared)
	if cached != prepared {
		t.Error("PutAndGet returned a different statement")
	}
	release()

	hit, release := cache.Get("SELECT id FROM t")
	if hit != prepared {
		t.Error("cache miss after put")
	}
	release()

	if cache.Len() != 1 {
		t.Errorf("len = %d, want 1", cache.Len())
	}
}

func TestStmtCacheEviction(t *testing.T) {
	db := openCacheDB(t)
	cache := NewStmtCache(2)
	defer cache.Close()

	queries := []string{
		"SELECT id FROM t WHERE id = 1",
		"SELECT id FROM t WHERE id = 2",
		"SELECT id FROM t WHERE id = 3",
	}
	for _, q := range queries {
		cache.Put(q, prepare(t, db, q))
	}

	if cache.Len() != 2 {
		t.Errorf("len = %d, want 2 (capacity)", cache.Len())
	}
	if stmt, _ := cache.Get(queries[0]); stmt != nil {
		t.Error("least recently used entry not evicted")
	}
	if stmt, release := cache.Get(queries[2]); stmt == nil {
		t.Error("newest entry evicted")
	} else {
		release()
	}
}

func TestStmtCacheInUseEntrySurvivesEviction(t *testing.T) {
	db := openCacheDB(t)
	cache := NewStmtCache(1)
	defer cache.Close()

	first := prepare(t, db, "SELECT id FROM t WHERE id = 1")
	held, release := cache.PutAndGet("SELECT id FROM t WHERE id = 1", first)

	// Evicting while held must not close the statement under the caller.
	cache.Put("SELECT id FROM t WHERE id = 2", prepare(t, db, "SELECT id FROM t WHERE id = 2"))

	if err := held.QueryRow().Scan(new(int)); err != sql.ErrNoRows {
		t.Errorf("held statement unusable after eviction: %v", err)
	}
	release()
}

func TestStmtCacheClear(t *testing.T) {
	db := openCacheDB(t)
	cache := NewStmtCache(4)

	cache.Put("SELECT id FROM t", prepare(t, db, "SELECT id FROM t"))
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("len after clear = %d, want 0", cache.Len())
	}
}
