package metrics

import (
	"context"
	"time"

	"github.com/cuemby/custodian/pkg/catalog"
)

// Collector periodically refreshes the gauge metrics that reflect a
// server's current catalog state, the way the teacher's Collector
// polls the manager on a ticker rather than updating gauges inline on
// every catalog mutation.
type Collector struct {
	catalog *catalog.Catalog
	server  string
	stopCh  chan struct{}
}

// NewCollector creates a metrics collector for one server's catalog.
func NewCollector(cat *catalog.Catalog, server string) *Collector {
	return &Collector{catalog: cat, server: server, stopCh: make(chan struct{})}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backups, err := c.catalog.ListBackups(ctx)
	if err != nil {
		return
	}

	counts := make(map[catalog.Status]int)
	for _, b := range backups {
		counts[b.Status]++
	}
	for _, status := range []catalog.Status{
		catalog.StatusStarted, catalog.StatusWaitingForWals, catalog.StatusDone, catalog.StatusFailed,
	} {
		BackupsTotal.WithLabelValues(c.server, string(status)).Set(float64(counts[status]))
	}
}
