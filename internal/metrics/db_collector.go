package metrics

import "github.com/prometheus/client_golang/prometheus"

// DBPoolStats is a snapshot of connection pool statistics. It mirrors the
// parts of pgxpool.Stat the server exports so this package does not depend
// on the driver.
type DBPoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
	Max      int32
	// AcquireCount and EmptyAcquireCount are cumulative.
	AcquireCount      int64
	EmptyAcquireCount int64
}

// DBPoolStatFunc returns the current pool statistics.
type DBPoolStatFunc func() DBPoolStats

type dbPoolCollector struct {
	stats DBPoolStatFunc

	total        *prometheus.Desc
	idle         *prometheus.Desc
	acquired     *prometheus.Desc
	max          *prometheus.Desc
	acquires     *prometheus.Desc
	emptyAcquire *prometheus.Desc
}

// NewDBPoolCollector returns a collector that reads the pool on every scrape.
func NewDBPoolCollector(stats DBPoolStatFunc) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("edustack_db_pool_"+name, help, nil, nil)
	}
	return &dbPoolCollector{
		stats:        stats,
		total:        desc("total_conns", "Connections currently open in the pool."),
		idle:         desc("idle_conns", "Idle connections in the pool."),
		acquired:     desc("acquired_conns", "Connections checked out of the pool."),
		max:          desc("max_conns", "Configured maximum pool size."),
		acquires:     desc("acquires_total", "Connections acquired from the pool."),
		emptyAcquire: desc("empty_acquires_total", "Acquires that had to wait because the pool was empty."),
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.total, c.idle, c.acquired, c.max, c.acquires, c.emptyAcquire} {
		ch <- d
	}
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	gauge := func(d *prometheus.Desc, v int32) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	gauge(c.total, s.Total)
	gauge(c.idle, s.Idle)
	gauge(c.acquired, s.Acquired)
	gauge(c.max, s.Max)
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(s.EmptyAcquireCount))
}
