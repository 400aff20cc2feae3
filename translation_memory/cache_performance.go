package translation_memory

import (
	"sync"
	"time"
)

// performance tracks lookup hits and misses of a store.
type performance struct {
	mutex         sync.RWMutex
	totalRequests int64
	hits          int64
	misses        int64
	writes        int64
	lastReset     time.Time
}

func newPerformance() *performance {
	return &performance{lastReset: time.Now()}
}

func (p *performance) recordHit() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.totalRequests++
	p.hits++
}

func (p *performance) recordMiss() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.totalRequests++
	p.misses++
}

func (p *performance) recordWrite() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.writes++
}

func (p *performance) reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.totalRequests, p.hits, p.misses, p.writes = 0, 0, 0, 0
	p.lastReset = time.Now()
}

// snapshot adds the counters to stats.
func (p *performance) snapshot(stats map[string]interface{}) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	hitRate := 0.0
	if p.totalRequests > 0 {
		hitRate = float64(p.hits) / float64(p.totalRequests) * 100
	}
	stats["total_requests"] = p.totalRequests
	stats["cache_hits"] = p.hits
	stats["cache_misses"] = p.misses
	stats["cache_writes"] = p.writes
	stats["hit_rate"] = hitRate
	stats["uptime_human"] = time.Since(p.lastReset).Round(time.Second).String()
}
