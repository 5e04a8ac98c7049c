package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds in-process service counters. Everything is either atomic or
// guarded; handlers call these from every request.
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	AverageResponseTime int64 // nanoseconds
	StartTime           time.Time

	// Pipeline counters
	RunsCompleted     int64
	RunsFailed        int64
	VariantsProcessed int64
	CellsImputed      int64
	LowConfidenceRuns int64

	// Response time samples for percentiles (last 1000)
	responseTimes      []time.Duration
	responseTimesMutex sync.RWMutex

	requestCountByStatus map[int]int64
	statusMutex          sync.RWMutex

	// Rate limit counters
	RateLimitBlocks        int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64

	// Response cache counters
	CacheHits   int64
	CacheMisses int64
}

// NewMetrics creates a metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		responseTimes:        make([]time.Duration, 0, 1000),
		requestCountByStatus: make(map[int]int64),
	}
}

func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// RecordRun tallies a finished pipeline run.
func (m *Metrics) RecordRun(variants, imputedCells int, lowConfidence bool) {
	atomic.AddInt64(&m.RunsCompleted, 1)
	atomic.AddInt64(&m.VariantsProcessed, int64(variants))
	atomic.AddInt64(&m.CellsImputed, int64(imputedCells))
	if lowConfidence {
		atomic.AddInt64(&m.LowConfidenceRuns, 1)
	}
}

// RecordRunFailure tallies a run rejected before completion.
func (m *Metrics) RecordRunFailure() {
	atomic.AddInt64(&m.RunsFailed, 1)
}

// RecordResponseTime updates the running average and the percentile window.
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	atomic.StoreInt64(&m.AverageResponseTime, (current+duration.Nanoseconds())/2)

	m.responseTimesMutex.Lock()
	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > 1000 {
		m.responseTimes = m.responseTimes[1:]
	}
	m.responseTimesMutex.Unlock()
}

// RecordRequestByStatus tallies one response by status code.
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.requestCountByStatus[statusCode]++
}

func (m *Metrics) IncrementRateLimitBlock() {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
}

func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// PercentileResponseTime computes a percentile over the sample window.
func (m *Metrics) PercentileResponseTime(percentile float64) time.Duration {
	m.responseTimesMutex.RLock()
	defer m.responseTimesMutex.RUnlock()

	if len(m.responseTimes) == 0 {
		return 0
	}
	times := make([]time.Duration, len(m.responseTimes))
	copy(times, m.responseTimes)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}
	return times[index]
}

// StatusCodeDistribution returns a copy of the per-status counters.
func (m *Metrics) StatusCodeDistribution() map[int]int64 {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetStats returns the full metrics snapshot for the metrics endpoint.
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":     time.Since(m.StartTime).Seconds(),
		"total_requests":     requests,
		"error_count":        errors,
		"error_rate_percent": errorRate,
		"start_time":         m.StartTime.Format(time.RFC3339),

		"avg_response_time_ms": float64(avgResponseTime) / 1e6,
		"p50_response_time_ms": float64(m.PercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms": float64(m.PercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms": float64(m.PercentileResponseTime(99)) / 1e6,

		"status_code_distribution": m.StatusCodeDistribution(),

		"runs_completed":      atomic.LoadInt64(&m.RunsCompleted),
		"runs_failed":         atomic.LoadInt64(&m.RunsFailed),
		"variants_processed":  atomic.LoadInt64(&m.VariantsProcessed),
		"cells_imputed":       atomic.LoadInt64(&m.CellsImputed),
		"low_confidence_runs": atomic.LoadInt64(&m.LowConfidenceRuns),

		"rate_limit_blocks":       atomic.LoadInt64(&m.RateLimitBlocks),
		"rate_limit_redis_errors": atomic.LoadInt64(&m.RateLimitRedisErrors),
		"rate_limit_fallbacks":    atomic.LoadInt64(&m.RateLimitFallbackCount),

		"cache_hits":   atomic.LoadInt64(&m.CacheHits),
		"cache_misses": atomic.LoadInt64(&m.CacheMisses),
	}
}

// Reset clears every counter. Test helper.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RequestCount, 0)
	atomic.StoreInt64(&m.ErrorCount, 0)
	atomic.StoreInt64(&m.AverageResponseTime, 0)
	atomic.StoreInt64(&m.RunsCompleted, 0)
	atomic.StoreInt64(&m.RunsFailed, 0)
	atomic.StoreInt64(&m.VariantsProcessed, 0)
	atomic.StoreInt64(&m.CellsImputed, 0)
	atomic.StoreInt64(&m.LowConfidenceRuns, 0)
	atomic.StoreInt64(&m.RateLimitBlocks, 0)
	atomic.StoreInt64(&m.RateLimitRedisErrors, 0)
	atomic.StoreInt64(&m.RateLimitFallbackCount, 0)
	atomic.StoreInt64(&m.CacheHits, 0)
	atomic.StoreInt64(&m.CacheMisses, 0)

	m.responseTimesMutex.Lock()
	m.responseTimes = m.responseTimes[:0]
	m.responseTimesMutex.Unlock()

	m.statusMutex.Lock()
	m.requestCountByStatus = make(map[int]int64)
	m.statusMutex.Unlock()

	m.StartTime = time.Now()
}
