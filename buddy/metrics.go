package buddy

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports allocator statistics to Prometheus.
type Collector struct {
	alloc *Allocator

	superblocks *prometheus.Desc
	reserved    *prometheus.Desc
	spare       *prometheus.Desc
	deferred    *prometheus.Desc
	inUse       *prometheus.Desc
	freeBlocks  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading a's statistics on every scrape.
func NewCollector(a *Allocator, namespace string) *Collector {
	fq := func(name string) string {
		return prometheus.BuildFQName(namespace, "buddy", name)
	}

	return &Collector{
		alloc: a,

		superblocks: prometheus.NewDesc(fq("superblocks"),
			"Superblocks handed out by the allocator.", nil, nil),
		reserved: prometheus.NewDesc(fq("reserved_superblocks"),
			"Superblocks reserved from the address space, including the spare.", nil, nil),
		spare: prometheus.NewDesc(fq("spare_superblock"),
			"Whether a spare superblock is cached.", nil, nil),
		deferred: prometheus.NewDesc(fq("deferred_frees"),
			"Frees waiting in the lock-free stacks.", nil, nil),
		inUse: prometheus.NewDesc(fq("in_use_bytes"),
			"Bytes currently allocated.", nil, nil),
		freeBlocks: prometheus.NewDesc(fq("free_blocks"),
			"Blocks in the free lists by block size.", []string{"size"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.superblocks
	ch <- c.reserved
	ch <- c.spare
	ch <- c.deferred
	ch <- c.inUse
	ch <- c.freeBlocks
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.alloc.Stats()

	var spare float64
	if st.Spare {
		spare = 1
	}

	ch <- prometheus.MustNewConstMetric(c.superblocks, prometheus.GaugeValue, float64(st.Superblocks))
	ch <- prometheus.MustNewConstMetric(c.reserved, prometheus.GaugeValue, float64(st.Reserved))
	ch <- prometheus.MustNewConstMetric(c.spare, prometheus.GaugeValue, spare)
	ch <- prometheus.MustNewConstMetric(c.deferred, prometheus.GaugeValue, float64(st.Deferred))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(st.InUse))

	for i, n := range st.FreeBlocks {
		size := strconv.Itoa(1 << (i + MinShift))
		ch <- prometheus.MustNewConstMetric(c.freeBlocks, prometheus.GaugeValue, float64(n), size)
	}
}
