package middleware

import (
	"container/list"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/httputil"
	"idhub/pkg/requestcontext"
)

const defaultMaxEntries = 10000

type limiterEntry struct {
	key     string
	limiter *rate.Limiter
}

// KeyedLimiter is a token bucket per key with LRU eviction so the number of
// tracked keys stays bounded.
type KeyedLimiter struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	limit      rate.Limit
	burst      int
	maxEntries int
}

// NewKeyedLimiter allows perMinute events per key with the given burst.
func NewKeyedLimiter(perMinute, burst int) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		limit:      rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:      burst,
		maxEntries: defaultMaxEntries,
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.entries[key]; ok {
		l.lru.MoveToFront(elem)
		return elem.Value.(*limiterEntry).limiter.Allow()
	}
	if len(l.entries) >= l.maxEntries {
		if oldest := l.lru.Back(); oldest != nil {
			delete(l.entries, oldest.Value.(*limiterEntry).key)
			l.lru.Remove(oldest)
		}
	}
	entry := &limiterEntry{key: key, limiter: rate.NewLimiter(l.limit, l.burst)}
	l.entries[key] = l.lru.PushFront(entry)
	return entry.limiter.Allow()
}

// Len reports the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RateLimitByIP rejects requests with 429 once the client IP exhausts its
// bucket. The client IP comes from the metadata middleware.
func RateLimitByIP(l *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := requestcontext.ClientIP(r.Context())
			if ip == "" {
				ip = r.RemoteAddr
			}
			if !l.Allow(ip) {
				w.Header().Set("Retry-After", "60")
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
