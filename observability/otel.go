package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/xraph/tally"

// OTelFactory is a MetricFactory backed by an OpenTelemetry meter.
// Instruments are created once per name and reused.
type OTelFactory struct {
	meter      metric.Meter
	counters   sync.Map // string -> *otelCounter
	histograms sync.Map // string -> *otelHistogram
}

// NewOTelFactory creates a factory on provider. A nil provider uses the
// global meter provider.
func NewOTelFactory(provider metric.MeterProvider) *OTelFactory {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	return &OTelFactory{meter: provider.Meter(meterName)}
}

// Counter implements MetricFactory. An instrument the meter rejects is
// replaced by a no-op so that recording never fails.
func (f *OTelFactory) Counter(name string) Counter {
	if c, ok := f.counters.Load(name); ok {
		return c.(*otelCounter)
	}

	inst, err := f.meter.Float64Counter(name, metric.WithUnit("{event}"))
	if err != nil {
		otel.Handle(err)
		inst, _ = noop.NewMeterProvider().Meter(meterName).Float64Counter(name)
	}

	c, _ := f.counters.LoadOrStore(name, &otelCounter{inst: inst})
	return c.(*otelCounter)
}

// Histogram implements MetricFactory.
func (f *OTelFactory) Histogram(name string) Histogram {
	if h, ok := f.histograms.Load(name); ok {
		return h.(*otelHistogram)
	}

	inst, err := f.meter.Float64Histogram(name)
	if err != nil {
		otel.Handle(err)
		inst, _ = noop.NewMeterProvider().Meter(meterName).Float64Histogram(name)
	}

	h, _ := f.histograms.LoadOrStore(name, &otelHistogram{inst: inst})
	return h.(*otelHistogram)
}

type otelCounter struct {
	inst metric.Float64Counter
}

func (c *otelCounter) Inc() { c.Add(1) }

func (c *otelCounter) Add(v float64) { c.inst.Add(context.Background(), v) }

type otelHistogram struct {
	inst metric.Float64Histogram
}

func (h *otelHistogram) Observe(v float64) { h.inst.Record(context.Background(), v) }
