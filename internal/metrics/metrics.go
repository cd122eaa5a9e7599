// Package metrics collects a private Prometheus registry for a single
// run and, on request, dumps it to a file in the text exposition
// format. There is no HTTP server: a batch job has nothing to scrape
// it, and it has exited by the time anyone would want to look.
package metrics

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds every counter and gauge pwdedup emits, backed by its
// own registry rather than prometheus.DefaultRegisterer so a run never
// collides with anything else in the process.
type Metrics struct {
	registry *prometheus.Registry

	RecordsTotal          prometheus.Counter
	RecordsDuplicateTotal prometheus.Counter
	BlocksMappedTotal     prometheus.Counter
	SlabsTotal            prometheus.Gauge
	RunDurationSeconds    prometheus.Gauge
}

// New builds a Metrics with all series registered against a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pwdedup_records_total",
			Help: "Total number of non-empty input lines seen across all input files.",
		}),
		RecordsDuplicateTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pwdedup_records_duplicate_total",
			Help: "Total number of input lines that matched a previously seen record.",
		}),
		BlocksMappedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pwdedup_blocks_mapped_total",
			Help: "Total number of memory-mapped blocks consumed from the input stream.",
		}),
		SlabsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pwdedup_slabs_total",
			Help: "Number of slabs allocated by the record store during this run.",
		}),
		RunDurationSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pwdedup_run_duration_seconds",
			Help: "Wall-clock duration of the run, in seconds.",
		}),
	}
}

// WriteToFile renders every registered metric in Prometheus text
// exposition format and writes it to path.
func (m *Metrics) WriteToFile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
