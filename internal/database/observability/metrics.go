// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package observability

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

const namespace = "dbkit"

// DefaultRetainedTransactions is how many finished transactions stay
// available through GetTransactionMetrics.
const DefaultRetainedTransactions = 256

// Transaction statuses
const (
	StatusActive     = "active"
	StatusCommitted  = "committed"
	StatusRolledBack = "rolled_back"
	StatusFailed     = "failed"
)

// TransactionMetrics tracks one transaction from begin to commit or rollback
type TransactionMetrics struct {
	TransactionID   string
	DatabaseType    string
	StartTime       time.Time
	Duration        time.Duration
	OperationsCount int64
	Status          string
	ErrorMessage    string
}

// MetricsCollector records operation and transaction metrics in prometheus
// collectors and keeps per-transaction bookkeeping.
type MetricsCollector struct {
	operations         *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	transactionsTotal  *prometheus.CounterVec
	activeTransactions prometheus.Gauge

	active             int64
	mu                 sync.RWMutex
	transactionMetrics map[string]*TransactionMetrics
	// finished holds completed transaction ids, oldest first
	finished []string
	retain   int
}

// NewMetricsCollector creates a collector registered on reg. A nil reg
// keeps the collectors unregistered.
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	return &MetricsCollector{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of database operations by type and status",
			},
			[]string{"database", "operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of database operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"database", "operation"},
		),
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of transactions by final status",
			},
			[]string{"database", "status"},
		),
		activeTransactions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_transactions",
				Help:      "Number of transactions between begin and commit or rollback",
			},
		),
		transactionMetrics: make(map[string]*TransactionMetrics),
		retain:             DefaultRetainedTransactions,
	}
}

// SetRetainedTransactions bounds how many finished transactions are kept.
// Older ones are dropped as new ones finish.
func (mc *MetricsCollector) SetRetainedTransactions(n int) {
	if n < 0 {
		n = 0
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.retain = n
	mc.evictLocked()
}

// ObserveOperation records one finished operation
func (mc *MetricsCollector) ObserveOperation(databaseType, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	mc.operations.WithLabelValues(databaseType, operation, status).Inc()
	mc.operationDuration.WithLabelValues(databaseType, operation).Observe(time.Since(start).Seconds())
}

// StartTransaction records the start of a new transaction
func (mc *MetricsCollector) StartTransaction(txID, databaseType string) *TransactionMetrics {
	atomic.AddInt64(&mc.active, 1)
	mc.activeTransactions.Inc()

	metrics := &TransactionMetrics{
		TransactionID: txID,
		DatabaseType:  databaseType,
		StartTime:     time.Now(),
		Status:        StatusActive,
	}

	mc.mu.Lock()
	mc.transactionMetrics[txID] = metrics
	mc.mu.Unlock()

	log.Debug("Transaction started: %s (%s)", txID, databaseType)
	return metrics
}

// IncrementOperations increments the operation count for a transaction
func (mc *MetricsCollector) IncrementOperations(txID string) {
	mc.mu.RLock()
	if metrics, exists := mc.transactionMetrics[txID]; exists {
		atomic.AddInt64(&metrics.OperationsCount, 1)
	}
	mc.mu.RUnlock()
}

// CommitTransaction records a successful transaction commit
func (mc *MetricsCollector) CommitTransaction(txID string) {
	mc.finish(txID, StatusCommitted, nil)
}

// RollbackTransaction records a transaction ended without writes to commit
func (mc *MetricsCollector) RollbackTransaction(txID string) {
	mc.finish(txID, StatusRolledBack, nil)
}

// FailTransaction records a transaction failure
func (mc *MetricsCollector) FailTransaction(txID string, err error) {
	mc.finish(txID, StatusFailed, err)
}

func (mc *MetricsCollector) finish(txID, status string, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metrics, exists := mc.transactionMetrics[txID]
	if !exists || metrics.Status != StatusActive {
		return
	}
	atomic.AddInt64(&mc.active, -1)
	mc.activeTransactions.Dec()

	metrics.Status = status
	metrics.Duration = time.Since(metrics.StartTime)
	if err != nil {
		metrics.ErrorMessage = err.Error()
	}
	mc.transactionsTotal.WithLabelValues(metrics.DatabaseType, status).Inc()
	mc.finished = append(mc.finished, txID)
	mc.evictLocked()

	if status == StatusFailed {
		log.Error("Transaction failed: %s (duration: %v, error: %v)", txID, metrics.Duration, err)
		return
	}
	log.Debug("Transaction %s: %s (duration: %v, operations: %d)",
		status, txID, metrics.Duration, atomic.LoadInt64(&metrics.OperationsCount))
}

func (mc *MetricsCollector) evictLocked() {
	if over := len(mc.finished) - mc.retain; over > 0 {
		for _, txID := range mc.finished[:over] {
			mc.dropFinishedLocked(txID)
		}
		mc.finished = append(mc.finished[:0], mc.finished[over:]...)
	}
}

// GetTransactionMetrics returns metrics for a specific transaction
func (mc *MetricsCollector) GetTransactionMetrics(txID string) *TransactionMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, exists := mc.transactionMetrics[txID]; exists {
		copy := *metrics
		return &copy
	}
	return nil
}

// ActiveTransactions returns the number of running transactions
func (mc *MetricsCollector) ActiveTransactions() int64 {
	return atomic.LoadInt64(&mc.active)
}

// CleanupCompletedTransactions removes metrics for completed transactions older than the specified duration
func (mc *MetricsCollector) CleanupCompletedTransactions(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	kept := mc.finished[:0]
	for _, txID := range mc.finished {
		if metrics, ok := mc.transactionMetrics[txID]; ok && metrics.StartTime.Before(cutoff) {
			mc.dropFinishedLocked(txID)
			continue
		}
		kept = append(kept, txID)
	}
	mc.finished = kept
}

// dropFinishedLocked forgets txID unless it was restarted and is running again
func (mc *MetricsCollector) dropFinishedLocked(txID string) {
	if metrics, ok := mc.transactionMetrics[txID]; ok && metrics.Status != StatusActive {
		delete(mc.transactionMetrics, txID)
	}
}
