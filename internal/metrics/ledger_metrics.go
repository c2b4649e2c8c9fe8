package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/auctionledger/internal/version"
)

// LedgerMetrics содержит метрики операций леджера.
type LedgerMetrics struct {
	// Счётчики созданных записей
	auctionsCreated prometheus.Counter
	lotsCreated     prometheus.Counter
	bidsCreated     prometheus.Counter

	overlapRejections prometheus.Counter
	sequenceConflicts *prometheus.CounterVec
	retriesExhausted  prometheus.Counter
	recommendations   *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec
}

// NewLedgerMetrics создаёт метрики в DefaultRegisterer.
func NewLedgerMetrics() *LedgerMetrics {
	return NewLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLedgerMetricsWithRegisterer создаёт метрики в заданном registerer.
// Повторная регистрация возвращает уже зарегистрированные коллекторы.
func NewLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		auctionsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_auctions_created_total",
			Help: "Total number of auctions created",
		}),
		lotsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_lots_created_total",
			Help: "Total number of lots created",
		}),
		bidsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_bids_created_total",
			Help: "Total number of bids created",
		}),
		overlapRejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_auction_overlap_rejections_total",
			Help: "Total number of auctions rejected because they overlap an auction of the same company",
		}),
		sequenceConflicts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_sequence_conflicts_total",
			Help: "Total number of transaction conflicts retried, grouped by lock scope",
		}, []string{"scope"}),
		retriesExhausted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_sequence_retries_exhausted_total",
			Help: "Total number of creations failed after exhausting conflict retries",
		}),
		recommendations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_recommendations_total",
			Help: "Total number of starting bid recommendations grouped by result",
		}, []string{"result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RegisterBuildInfo публикует ledger_build_info{version,commit}=1 для текущей сборки.
func RegisterBuildInfo(registerer prometheus.Registerer, build version.Build) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	collector := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledger_build_info",
		Help: "Build information of the running auction ledger",
	}, []string{"version", "commit"})
	if err := registerer.Register(collector); err != nil {
		alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(fmt.Sprintf("register gauge vec %q: %v", "ledger_build_info", err))
		}
		existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			panic("collector \"ledger_build_info\" already registered with unexpected type")
		}
		collector = existing
	}
	collector.WithLabelValues(build.Version, build.Commit).Set(1)
}

// RecordAuctionCreated увеличивает счётчик созданных аукционов.
func (m *LedgerMetrics) RecordAuctionCreated() {
	m.auctionsCreated.Inc()
}

// RecordLotCreated увеличивает счётчик созданных лотов.
func (m *LedgerMetrics) RecordLotCreated() {
	m.lotsCreated.Inc()
}

// RecordBidCreated увеличивает счётчик созданных ставок.
func (m *LedgerMetrics) RecordBidCreated() {
	m.bidsCreated.Inc()
}

// RecordOverlapRejected увеличивает счётчик отклонённых пересекающихся аукционов.
func (m *LedgerMetrics) RecordOverlapRejected() {
	m.overlapRejections.Inc()
}

// RecordSequenceConflict учитывает конфликт транзакции в области scope.
func (m *LedgerMetrics) RecordSequenceConflict(scope string) {
	m.sequenceConflicts.WithLabelValues(scope).Inc()
}

// RecordRetriesExhausted учитывает создание, упавшее после всех повторов.
func (m *LedgerMetrics) RecordRetriesExhausted() {
	m.retriesExhausted.Inc()
}

// RecordRecommendation учитывает результат расчёта стартовой ставки.
func (m *LedgerMetrics) RecordRecommendation(result string) {
	m.recommendations.WithLabelValues(result).Inc()
}

// RecordOperationDuration записывает время выполнения операции.
func (m *LedgerMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
