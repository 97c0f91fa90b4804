package blobindex

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "blobindex"

// Shard fetch outcomes recorded in the fetch counter.
const (
	fetchHit    = "hit"
	fetchLoaded = "loaded"
	fetchFailed = "failed"
)

// metrics holds the store's Prometheus collectors. A nil *metrics is valid
// and records nothing.
type metrics struct {
	queries       *prometheus.CounterVec
	candidates    *prometheus.HistogramVec
	shardFetches  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Queries executed, by dataset.",
		}, []string{"dataset"}),
		candidates: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_candidate_shards",
			Help:      "Shards selected as candidates per query.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"dataset"}),
		shardFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "shard_fetches_total",
			Help:      "Shard loads by outcome: hit, loaded or failed.",
		}, []string{"dataset", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "shard_fetch_duration_seconds",
			Help:      "Time to fetch and decode one shard.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dataset"}),
	}

	var err error
	m.queries, err = register(reg, m.queries)
	if err != nil {
		return nil, err
	}
	m.candidates, err = register(reg, m.candidates)
	if err != nil {
		return nil, err
	}
	m.shardFetches, err = register(reg, m.shardFetches)
	if err != nil {
		return nil, err
	}
	m.fetchDuration, err = register(reg, m.fetchDuration)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, reusing an identical collector that another store
// registered first.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) query(dataset string, candidates int) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(dataset).Inc()
	m.candidates.WithLabelValues(dataset).Observe(float64(candidates))
}

func (m *metrics) fetch(dataset, result string, start time.Time) {
	if m == nil {
		return
	}
	m.shardFetches.WithLabelValues(dataset, result).Inc()
	if result == fetchLoaded {
		m.fetchDuration.WithLabelValues(dataset).Observe(time.Since(start).Seconds())
	}
}
