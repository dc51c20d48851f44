package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "exchange"

// Collector exports Metrics to Prometheus. Values are read from a
// Snapshot on every scrape.
type Collector struct {
	m *Metrics

	commands *prometheus.Desc
	results  *prometheus.Desc
	replayed *prometheus.Desc
	batches  *prometheus.Desc
	records  *prometheus.Desc
	snaps    *prometheus.Desc
	faults   *prometheus.Desc
	stalls   *prometheus.Desc
	latency  *prometheus.Desc
}

// NewCollector wraps m. Register it with a prometheus.Registerer.
func NewCollector(m *Metrics) *Collector {
	return &Collector{
		m:        m,
		commands: prometheus.NewDesc(namespace+"_commands_total", "Commands published, by kind.", []string{"kind"}, nil),
		results:  prometheus.NewDesc(namespace+"_results_total", "Commands published, by result code.", []string{"code"}, nil),
		replayed: prometheus.NewDesc(namespace+"_replayed_total", "Commands recovered from the journal.", nil, nil),
		batches:  prometheus.NewDesc(namespace+"_journal_batches_total", "Journal batches stored.", nil, nil),
		records:  prometheus.NewDesc(namespace+"_journal_records_total", "Journal records stored.", nil, nil),
		snaps:    prometheus.NewDesc(namespace+"_snapshots_total", "Shard snapshots stored.", nil, nil),
		faults:   prometheus.NewDesc(namespace+"_faults_total", "Structural faults.", nil, nil),
		stalls:   prometheus.NewDesc(namespace+"_ring_stalls_total", "Producer waits on a full ring.", nil, nil),
		latency:  prometheus.NewDesc(namespace+"_latency_seconds", "Latency summary per stage.", []string{"stage", "stat"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.commands
	ch <- c.results
	ch <- c.replayed
	ch <- c.batches
	ch <- c.records
	ch <- c.snaps
	ch <- c.faults
	ch <- c.stalls
	ch <- c.latency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()
	for kind, v := range snap.CommandCounts {
		ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(v), kind.String())
	}
	for code, v := range snap.ResultCounts {
		ch <- prometheus.MustNewConstMetric(c.results, prometheus.CounterValue, float64(v), code.String())
	}
	ch <- prometheus.MustNewConstMetric(c.replayed, prometheus.CounterValue, float64(snap.Replayed))
	ch <- prometheus.MustNewConstMetric(c.batches, prometheus.CounterValue, float64(snap.JournalBatches))
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.CounterValue, float64(snap.JournalRecords))
	ch <- prometheus.MustNewConstMetric(c.snaps, prometheus.CounterValue, float64(snap.Snapshots))
	ch <- prometheus.MustNewConstMetric(c.faults, prometheus.CounterValue, float64(snap.Faults))
	ch <- prometheus.MustNewConstMetric(c.stalls, prometheus.CounterValue, float64(snap.Stalls))

	for stage, l := range map[string]LatencySnapshot{
		"pipeline": snap.PipelineLatency,
		"journal":  snap.JournalLatency,
		"snapshot": snap.SnapshotLatency,
	} {
		if l.Count == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, l.Min.Seconds(), stage, "min")
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, l.Avg.Seconds(), stage, "avg")
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, l.Max.Seconds(), stage, "max")
	}
}
