package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/brettbedarf/bastion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bastion"

// PrometheusCollector implements Collector with metrics held in its own registry:
//   - bastion_ops_total{op, result} (counter)
//   - bastion_open_sessions (gauge)
type PrometheusCollector struct {
	registry     *prometheus.Registry
	ops          *prometheus.CounterVec
	openSessions prometheus.Gauge
}

func NewPrometheusCollector() (*PrometheusCollector, error) {
	registry := prometheus.NewRegistry()

	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Filesystem operations by result",
		},
		[]string{"op", "result"},
	)
	openSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_sessions",
		Help:      "Live entries in the descriptor table",
	})

	for _, c := range []prometheus.Collector{ops, openSessions} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return &PrometheusCollector{
		registry:     registry,
		ops:          ops,
		openSessions: openSessions,
	}, nil
}

func (c *PrometheusCollector) RecordOp(op string, err error) {
	c.ops.WithLabelValues(op, Result(err)).Inc()
}

func (c *PrometheusCollector) SetOpenSessions(n int) {
	c.openSessions.Set(float64(n))
}

// Handler serves the collector's registry in the prometheus text format
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

var _ Collector = (*PrometheusCollector)(nil)

// results maps each error kind to its label value. Unknown errors are "error".
var results = []struct {
	err   error
	label string
}{
	{bastion.ErrNoSuchEntry, "no_such_entry"},
	{bastion.ErrNotADirectory, "not_a_directory"},
	{bastion.ErrIsADirectory, "is_a_directory"},
	{bastion.ErrNotAFile, "not_a_file"},
	{bastion.ErrAlreadyExists, "already_exists"},
	{bastion.ErrAlreadyOpen, "already_open"},
	{bastion.ErrNotOpenForReading, "not_open_for_reading"},
	{bastion.ErrNotOpenForWriting, "not_open_for_writing"},
	{bastion.ErrNotOpen, "not_open"},
	{bastion.ErrOutOfRange, "out_of_range"},
	{bastion.ErrInvalidArgument, "invalid_argument"},
	{bastion.ErrCannotRemove, "cannot_remove"},
	{bastion.ErrUnsupported, "unsupported"},
}

// Result returns the result label for err
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range results {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "error"
}
