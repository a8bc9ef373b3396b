package observability

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Metrics aggregates chat counters per channel.
type Metrics struct {
	mu       sync.Mutex
	channels map[string]*ChannelMetrics

	webhookBatches      atomic.Int64
	webhookBatchFailure atomic.Int64
}

// ChannelMetrics are the counters of one channel.
type ChannelMetrics struct {
	requests  atomic.Int64
	failures  atomic.Int64
	degraded  atomic.Int64
	noops     atomic.Int64
	retrieval atomic.Int64

	mu       sync.Mutex
	intents  map[string]int64
	attempts map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{channels: make(map[string]*ChannelMetrics)}
}

var globalMetrics = NewMetrics()

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

func (m *Metrics) channel(name string) *ChannelMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	cm, ok := m.channels[name]
	if !ok {
		cm = &ChannelMetrics{intents: make(map[string]int64), attempts: make(map[string]int64)}
		m.channels[name] = cm
	}
	return cm
}

// RecordRequest counts an inbound message.
func (m *Metrics) RecordRequest(channel string) {
	m.channel(channel).requests.Add(1)
}

// RecordFailure counts a request that ended in an error.
func (m *Metrics) RecordFailure(channel string) {
	m.channel(channel).failures.Add(1)
}

// RecordDegraded counts a reply that fell back to the degraded message.
func (m *Metrics) RecordDegraded(channel string) {
	m.channel(channel).degraded.Add(1)
}

// RecordNoOp counts a message left to a human operator.
func (m *Metrics) RecordNoOp(channel string) {
	m.channel(channel).noops.Add(1)
}

// RecordRetrievalFailure counts a turn answered without context.
func (m *Metrics) RecordRetrievalFailure(channel string) {
	m.channel(channel).retrieval.Add(1)
}

// RecordIntent counts a message handled by the intent router.
func (m *Metrics) RecordIntent(channel, intent string) {
	cm := m.channel(channel)
	cm.mu.Lock()
	cm.intents[intent]++
	cm.mu.Unlock()
}

// RecordAttempt counts one completion attempt by outcome, "ok" or a failure class.
func (m *Metrics) RecordAttempt(channel, outcome string) {
	cm := m.channel(channel)
	cm.mu.Lock()
	cm.attempts[outcome]++
	cm.mu.Unlock()
}

// RecordWebhookBatch counts a processed webhook batch.
func (m *Metrics) RecordWebhookBatch(failed bool) {
	m.webhookBatches.Add(1)
	if failed {
		m.webhookBatchFailure.Add(1)
	}
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	m.channels = make(map[string]*ChannelMetrics)
	m.mu.Unlock()
	m.webhookBatches.Store(0)
	m.webhookBatchFailure.Store(0)
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	Channels             map[string]*ChannelSnapshot `json:"channels"`
	WebhookBatches       int64                       `json:"webhookBatches"`
	WebhookBatchFailures int64                       `json:"webhookBatchFailures"`
	QueryCache           *QueryCacheSnapshot         `json:"queryCache,omitempty"`
}

// QueryCacheSnapshot counts query embedding cache lookups.
type QueryCacheSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// ChannelSnapshot is the snapshot of one channel.
type ChannelSnapshot struct {
	Requests          int64            `json:"requests"`
	Failures          int64            `json:"failures"`
	Degraded          int64            `json:"degraded"`
	NoOps             int64            `json:"noops"`
	RetrievalFailures int64            `json:"retrievalFailures"`
	Intents           map[string]int64 `json:"intents"`
	Attempts          map[string]int64 `json:"attempts"`
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)

	snapshot := &MetricsSnapshot{
		Channels:             make(map[string]*ChannelSnapshot, len(names)),
		WebhookBatches:       m.webhookBatches.Load(),
		WebhookBatchFailures: m.webhookBatchFailure.Load(),
	}
	for _, name := range names {
		cm := m.channel(name)
		cs := &ChannelSnapshot{
			Requests:          cm.requests.Load(),
			Failures:          cm.failures.Load(),
			Degraded:          cm.degraded.Load(),
			NoOps:             cm.noops.Load(),
			RetrievalFailures: cm.retrieval.Load(),
			Intents:           make(map[string]int64),
			Attempts:          make(map[string]int64),
		}
		cm.mu.Lock()
		for k, v := range cm.intents {
			cs.Intents[k] = v
		}
		for k, v := range cm.attempts {
			cs.Attempts[k] = v
		}
		cm.mu.Unlock()
		snapshot.Channels[name] = cs
	}
	return snapshot
}

// SuccessRate returns the share of requests of a channel that did not fail, 0-100.
func (s *MetricsSnapshot) SuccessRate(channel string) float64 {
	cs, ok := s.Channels[channel]
	if !ok || cs.Requests == 0 {
		return 100.0
	}
	return float64(cs.Requests-cs.Failures) / float64(cs.Requests) * 100.0
}
