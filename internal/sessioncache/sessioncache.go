// Package sessioncache holds the client-side resumption cache: a
// bounded map from server identity to the most recent Session this
// engine can present on reconnect. It is also where a server-side
// deployment that chooses not to use stateless tickets (internal/ticket)
// would hold its session-ID-keyed state instead; both share this same
// Cache interface.
package sessioncache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Session is the resumption material a cache stores, independent of
// whether it arrived as a stateless ticket or a plain session ID.
type Session struct {
	CipherSuite uint16
	Secret      []byte
	SessionID   []byte
	Ticket      []byte // opaque NewSessionTicket blob, if any
	NegotiatedALPN string
}

// Cache is the resumption-state collaborator this engine's Config
// accepts (§6): Get/Put/Clear, keyed by server name for a client or by
// session ID for a server.
type Cache interface {
	Get(key string) (Session, bool)
	Put(key string, s Session)
	Clear()
}

// LRUCache is a Cache bounded to the most recently used N entries,
// backed by groupcache's LRU implementation and guarded by a mutex since
// a connection's handshake goroutine and a separate ticket-issuing
// goroutine may touch it concurrently.
type LRUCache struct {
	mu         sync.Mutex
	maxEntries int
	lru        *lru.Cache
}

// NewLRUCache returns an LRUCache holding at most maxEntries sessions;
// maxEntries <= 0 means unbounded, matching lru.Cache's own convention.
func NewLRUCache(maxEntries int) *LRUCache {
	return &LRUCache{maxEntries: maxEntries, lru: lru.New(maxEntries)}
}

func (c *LRUCache) Get(key string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

func (c *LRUCache) Put(key string, s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, s)
}

// Clear discards every cached session. groupcache's lru.Cache exposes no
// bulk-clear operation, so this rebuilds a fresh one with the same
// capacity instead of evicting entries one at a time.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru = lru.New(c.maxEntries)
}
