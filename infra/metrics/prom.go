package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/svitlobot/svitlo/core/metrics"
)

// PromSink records poll cycles and deliveries in Prometheus metrics.
type PromSink struct {
	cycles      prometheus.Counter
	duration    prometheus.Histogram
	fetchErrors prometheus.Counter
	parseErrors prometheus.Counter
	changed     prometheus.Counter
	deliveries  *prometheus.CounterVec
}

// NewPromSink registers poll metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusAddr.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_cycles_total",
		Help: "Total number of completed poll cycles",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "poll_cycle_duration_seconds",
		Help:    "Time spent fetching, parsing and comparing all sources",
		Buckets: prometheus.DefBuckets,
	})
	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_fetch_errors_total",
		Help: "Total number of source fetch failures",
	})
	parseErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_parse_errors_total",
		Help: "Total number of source parse failures",
	})
	changed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_groups_changed_total",
		Help: "Total number of groups whose schedule changed",
	})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_deliveries_total",
		Help: "Total number of notification delivery attempts",
	}, []string{"source_id", "success"})

	s := &PromSink{
		cycles:      cycles,
		duration:    duration,
		fetchErrors: fetchErrors,
		parseErrors: parseErrors,
		changed:     changed,
		deliveries:  deliveries,
	}

	if err := reg.Register(cycles); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.cycles = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.duration = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fetchErrors); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.fetchErrors = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(parseErrors); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.parseErrors = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(changed); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.changed = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(deliveries); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.deliveries = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return s, nil
}

// RecordCycle increments the cycle counters and observes the duration.
func (s *PromSink) RecordCycle(ev coremetrics.CycleEvent) error {
	s.cycles.Inc()
	s.duration.Observe(ev.Duration.Seconds())
	s.fetchErrors.Add(float64(ev.FetchErrors))
	s.parseErrors.Add(float64(ev.ParseErrors))
	s.changed.Add(float64(ev.GroupsChanged))
	return nil
}

// RecordDelivery increments the delivery counter for each attempt.
func (s *PromSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	s.deliveries.WithLabelValues(ev.SourceID, strconv.FormatBool(ev.Success)).Inc()
	return nil
}
