package relate

import (
	"container/list"
	"database/sql"
	"sync"
	"sync/atomic"
)

// StmtCache is a thread-safe LRU cache for prepared statements. Entries are
// refcounted so a statement in flight is never closed out from under its
// caller: eviction marks the entry and the final release closes it.
type StmtCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*stmtEntry
	lruList  *list.List
}

type stmtEntry struct {
	stmt     *sql.Stmt
	element  *list.Element
	refCount int32
	evicted  bool
	query    string
}

// NewStmtCache creates a statement cache with the given capacity.
// A capacity of 0 or less defaults to 100.
func NewStmtCache(capacity int) *StmtCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &StmtCache{
		capacity: capacity,
		items:    make(map[string]*stmtEntry),
		lruList:  list.New(),
	}
}

// Get retrieves a cached statement for the given SQL text. The caller MUST
// invoke the returned release function when finished. Returns nil, nil on
// a cache miss.
func (c *StmtCache) Get(query string) (*sql.Stmt, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[query]; exists {
		c.lruList.MoveToFront(entry.element)
		atomic.AddInt32(&entry.refCount, 1)
		return entry.stmt, func() {
			c.release(entry)
		}
	}

	return nil, nil
}

// Put stores a prepared statement, evicting the least recently used entry
// when at capacity. An existing entry for the same query is replaced.
func (c *StmtCache) Put(query string, stmt *sql.Stmt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.putLocked(query, stmt)
}

func (c *StmtCache) putLocked(query string, stmt *sql.Stmt) *stmtEntry {
	if entry, exists := c.items[query]; exists {
		c.evictEntry(entry)
	}

	if len(c.items) >= c.capacity {
		c.evictLRU()
	}

	entry := &stmtEntry{
		stmt:  stmt,
		query: query,
	}
	entry.element = c.lruList.PushFront(entry)
	c.items[query] = entry
	return entry
}

// PutAndGet atomically stores a statement and returns it with an
// incremented reference count, so it cannot be evicted between the store
// and the use. The caller MUST invoke the release function.
func (c *StmtCache) PutAndGet(query string, stmt *sql.Stmt) (*sql.Stmt, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.putLocked(query, stmt)
	atomic.AddInt32(&entry.refCount, 1)
	return entry.stmt, func() {
		c.release(entry)
	}
}

func (c *StmtCache) evictLRU() {
	element := c.lruList.Back()
	if element == nil {
		return
	}
	c.evictEntry(element.Value.(*stmtEntry))
}

func (c *StmtCache) evictEntry(entry *stmtEntry) {
	c.lruList.Remove(entry.element)
	delete(c.items, entry.query)
	entry.evicted = true

	if atomic.LoadInt32(&entry.refCount) == 0 && entry.stmt != nil {
		_ = entry.stmt.Close()
	}
}

func (c *StmtCache) release(entry *stmtEntry) {
	newCount := atomic.AddInt32(&entry.refCount, -1)
	if newCount == 0 {
		c.mu.Lock()
		defer c.mu.Unlock()
		if entry.evicted && atomic.LoadInt32(&entry.refCount) == 0 && entry.stmt != nil {
			_ = entry.stmt.Close()
		}
	}
}

// Clear closes all unused cached statements and empties the cache.
func (c *StmtCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.items {
		entry.evicted = true
		if atomic.LoadInt32(&entry.refCount) == 0 && entry.stmt != nil {
			_ = entry.stmt.Close()
		}
	}

	c.items = make(map[string]*stmtEntry)
	c.lruList.Init()
}

// Close closes all cached statements and releases all resources.
func (c *StmtCache) Close() error {
	c.Clear()
	return nil
}

// Len returns the current number of cached statements.
func (c *StmtCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
