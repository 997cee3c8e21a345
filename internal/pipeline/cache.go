package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// CachedScorer wraps a RiskScorer with an in-memory LRU keyed on the scoring
// input. Raw-record scoring passes through uncached.
type CachedScorer struct {
	RiskScorer
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedScorer creates a cache decorator around a scorer.
func NewCachedScorer(inner RiskScorer, maxEntries int, metrics *observability.Metrics) *CachedScorer {
	return &CachedScorer{
		RiskScorer: inner,
		cache:      newLRUCache(maxEntries),
		metrics:    metrics,
	}
}

func (c *CachedScorer) Score(ctx context.Context, in domain.ScoringInput) (domain.Prediction, error) {
	key := cacheKey(in)
	if p, ok := c.cache.get(key); ok {
		c.metrics.ScoreCache.WithLabelValues("hit").Inc()
		c.metrics.Predictions.WithLabelValues(p.RiskTier).Inc()
		return p.Restamped(), nil
	}
	c.metrics.ScoreCache.WithLabelValues("miss").Inc()

	p, err := c.RiskScorer.Score(ctx, in)
	if err != nil {
		return p, err
	}
	c.cache.put(key, p.Restamped())
	return p, nil
}

// cacheKey renders coordinates at full precision so distinct inputs never
// share an entry.
func cacheKey(in domain.ScoringInput) string {
	return fmt.Sprintf("%s,%s|%d|%d|%s|%s|%s|%s|%s",
		strconv.FormatFloat(in.Latitude, 'g', -1, 64), strconv.FormatFloat(in.Longitude, 'g', -1, 64),
		in.DiscoveryDOY, in.DiscoveryHour,
		in.State, in.OwnerDescr, in.Season, in.StatCauseDescr, in.CauseSimple)
}

// lruCache is a simple thread-safe LRU cache for predictions.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.Prediction
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Prediction{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Prediction) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
