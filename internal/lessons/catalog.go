package lessons

import (
	"context"
	"sync"
	"time"

	"github.com/motioncourse/web/internal/apiclient"
	"github.com/motioncourse/web/internal/models"
)

// Source fetches course data from the course API.
type Source interface {
	CourseVideos(ctx context.Context, creds apiclient.Credentials, courseID int) ([]models.Video, error)
	Course(ctx context.Context, creds apiclient.Credentials, id int) (models.Course, error)
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

type ttlCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]cacheEntry[V]
}

func newTTLCache[K comparable, V any]() *ttlCache[K, V] {
	return &ttlCache[K, V]{items: make(map[K]cacheEntry[V])}
}

func (c *ttlCache[K, V]) get(key K, now time.Time) (V, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !now.Before(entry.expires) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[K, V]) put(key K, value V, expires time.Time) {
	c.mu.Lock()
	c.items[key] = cacheEntry[V]{value: value, expires: expires}
	c.mu.Unlock()
}

// Catalog wraps a Source with a TTL-based in-memory cache keyed by course id.
// Failed lookups are never cached.
type Catalog struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	videos  *ttlCache[int, []models.Video]
	courses *ttlCache[int, models.Course]
}

// NewCatalog returns a Catalog that caches lookups for ttl.
func NewCatalog(source Source, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Catalog{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		videos:  newTTLCache[int, []models.Video](),
		courses: newTTLCache[int, models.Course](),
	}
}

// CourseVideos returns the cached video list of a course, fetching it when absent or stale.
func (c *Catalog) CourseVideos(ctx context.Context, creds apiclient.Credentials, courseID int) ([]models.Video, error) {
	now := c.now()
	if videos, ok := c.videos.get(courseID, now); ok {
		return videos, nil
	}

	videos, err := c.source.CourseVideos(ctx, creds, courseID)
	if err != nil {
		return nil, err
	}
	c.videos.put(courseID, videos, now.Add(c.ttl))
	return videos, nil
}

// Course returns cached course details, fetching them when absent or stale.
func (c *Catalog) Course(ctx context.Context, creds apiclient.Credentials, id int) (models.Course, error) {
	now := c.now()
	if course, ok := c.courses.get(id, now); ok {
		return course, nil
	}

	course, err := c.source.Course(ctx, creds, id)
	if err != nil {
		return models.Course{}, err
	}
	c.courses.put(id, course, now.Add(c.ttl))
	return course, nil
}
