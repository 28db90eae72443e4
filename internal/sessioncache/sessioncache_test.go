package sessioncache

import "testing"

func TestLRUCacheGetPut(t *testing.T) {
	c := NewLRUCache(2)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put("a", Session{SessionID: []byte("sa")})
	s, ok := c.Get("a")
	if !ok || string(s.SessionID) != "sa" {
		t.Fatalf("got %+v, %v", s, ok)
	}
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache(1)
	c.Put("a", Session{SessionID: []byte("sa")})
	c.Put("b", Session{SessionID: []byte("sb")})
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be evicted once capacity 1 is exceeded")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("expected b to remain cached")
	}
}

func TestLRUCacheClear(t *testing.T) {
	c := NewLRUCache(4)
	c.Put("a", Session{SessionID: []byte("sa")})
	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected Clear to remove all entries")
	}
}
