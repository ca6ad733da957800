// Package prommeter exposes gocbbridge and gocbcore operation metrics through
// prometheus.
package prommeter

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/couchbase/gocbcore/v10"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultBuckets are the latency histogram buckets, in microseconds.
var DefaultBuckets = prometheus.ExponentialBuckets(100, 2, 16)

// Meter implements gocbcore.Meter on a prometheus registry. Counters and value recorders
// become counter and histogram vectors keyed by their tag names.
type Meter struct {
	registerer prometheus.Registerer
	buckets    []float64

	lock       sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New returns a Meter registering its collectors with registerer. A nil registerer
// uses the default prometheus registry.
func New(registerer prometheus.Registerer) *Meter {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Meter{
		registerer: registerer,
		buckets:    DefaultBuckets,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Counter implements gocbcore.Meter.
func (m *Meter) Counter(name string, tags map[string]string) (gocbcore.Counter, error) {
	metricName := sanitizeName(name)
	labels := sanitizeLabels(tags)
	vecKey := metricName + "|" + strings.Join(labelNames(labels), ",")

	m.lock.Lock()
	defer m.lock.Unlock()

	vec, ok := m.counters[vecKey]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricName,
			Help: "Count of " + name,
		}, labelNames(labels))
		collector, err := register(m.registerer, vec)
		if err != nil {
			return nil, err
		}
		vec = collector.(*prometheus.CounterVec)
		m.counters[vecKey] = vec
	}

	counter, err := vec.GetMetricWith(labels)
	if err != nil {
		return nil, err
	}
	return promCounter{counter: counter}, nil
}

// ValueRecorder implements gocbcore.Meter.
func (m *Meter) ValueRecorder(name string, tags map[string]string) (gocbcore.ValueRecorder, error) {
	metricName := sanitizeName(name)
	labels := sanitizeLabels(tags)
	vecKey := metricName + "|" + strings.Join(labelNames(labels), ",")

	m.lock.Lock()
	defer m.lock.Unlock()

	vec, ok := m.histograms[vecKey]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricName,
			Help:    "Distribution of " + name,
			Buckets: m.buckets,
		}, labelNames(labels))
		collector, err := register(m.registerer, vec)
		if err != nil {
			return nil, err
		}
		vec = collector.(*prometheus.HistogramVec)
		m.histograms[vecKey] = vec
	}

	observer, err := vec.GetMetricWith(labels)
	if err != nil {
		return nil, err
	}
	return promRecorder{observer: observer}, nil
}

func register(registerer prometheus.Registerer, collector prometheus.Collector) (prometheus.Collector, error) {
	err := registerer.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		return alreadyRegistered.ExistingCollector, nil
	}
	return nil, err
}

type promCounter struct {
	counter prometheus.Counter
}

func (c promCounter) IncrementBy(num uint64) {
	c.counter.Add(float64(num))
}

type promRecorder struct {
	observer prometheus.Observer
}

func (r promRecorder) RecordValue(val uint64) {
	r.observer.Observe(float64(val))
}

// sanitizeName maps a dotted metric name such as db.couchbase.operations onto the
// prometheus naming rules.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		}
		return '_'
	}, name)
}

// sanitizeLabels drops the tags prometheus reserves, such as __unit, and renames the
// rest onto the label naming rules.
func sanitizeLabels(tags map[string]string) prometheus.Labels {
	labels := make(prometheus.Labels, len(tags))
	for name, value := range tags {
		if strings.HasPrefix(name, "__") {
			continue
		}
		labels[strings.ReplaceAll(sanitizeName(name), ":", "_")] = value
	}
	return labels
}

func labelNames(labels prometheus.Labels) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
