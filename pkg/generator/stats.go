package generator

import (
	"sync/atomic"

	"github.com/sa-platform/sa/pkg/models"
)

// counters are the per-generator statistics. Safe for concurrent use.
type counters struct {
	generated  atomic.Int64
	cached     atomic.Int64
	failed     atomic.Int64
	downloaded atomic.Int64
	fallback   atomic.Int64
}

func (c *counters) snapshot() models.Stats {
	return models.Stats{
		Generated:    c.generated.Load(),
		Cached:       c.cached.Load(),
		Failed:       c.failed.Load(),
		Downloaded:   c.downloaded.Load(),
		FallbackUsed: c.fallback.Load(),
	}
}
