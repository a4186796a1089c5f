// Package observability wires benchmark metrics and tracing.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles Prometheus metrics for benchmark runs.
type Collector struct {
	gatherer prometheus.Gatherer

	StageDuration     *prometheus.GaugeVec
	FeaturesGenerated prometheus.Counter
	OutputBytes       *prometheus.GaugeVec
}

// NewCollector registers benchmark metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stages, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fgdbbench_stage_duration_seconds",
		Help: "Wall clock duration of the last run of each benchmark stage.",
	}, []string{"stage"}), "fgdbbench_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	generated, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fgdbbench_features_generated_total",
		Help: "Number of random features generated.",
	}), "fgdbbench_features_generated_total")
	if err != nil {
		return nil, err
	}

	output, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fgdbbench_output_bytes",
		Help: "Size on disk of benchmark inputs and outputs.",
	}, []string{"path"}), "fgdbbench_output_bytes")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		StageDuration:     stages,
		FeaturesGenerated: generated,
		OutputBytes:       output,
	}, nil
}

// ObserveStage records the duration of a finished stage.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// SetOutputSize records the size of a file or directory.
func (c *Collector) SetOutputSize(path string, size int64) {
	if c == nil {
		return
	}
	c.OutputBytes.WithLabelValues(path).Set(float64(size))
}

// AddGenerated counts generated features.
func (c *Collector) AddGenerated(n int) {
	if c == nil {
		return
	}
	c.FeaturesGenerated.Add(float64(n))
}

// WriteTextfile dumps all gathered metrics in text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.gatherer)
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return c, err
	}

	return c, nil
}
