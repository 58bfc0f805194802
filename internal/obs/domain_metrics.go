package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SettlementsTotal counts settlement attempts by result (sold, no_inventory, error).
	SettlementsTotal *prometheus.CounterVec
	// SettlementRetriesTotal counts settlements restarted after losing a reservation.
	SettlementRetriesTotal prometheus.Counter
	// ItemsSoldTotal counts submissions sold per category.
	ItemsSoldTotal *prometheus.CounterVec
	// SettledValueTotal accumulates the price of committed batches per category.
	SettledValueTotal *prometheus.CounterVec
	// SettlementLatency records settlement duration in milliseconds.
	SettlementLatency *prometheus.HistogramVec
	// CheckoutLinesTotal counts checkout line outcomes.
	CheckoutLinesTotal *prometheus.CounterVec
	// CartOperationsTotal counts cart mutations by operation and result.
	CartOperationsTotal *prometheus.CounterVec
	// SaleNotificationsTotal counts sale notification deliveries by result.
	SaleNotificationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SettlementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Count of settlement outcomes.",
		}, []string{"result"})
		SettlementRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_retries_total",
			Help:      "Settlements restarted after a reservation was lost.",
		})
		ItemsSoldTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_sold_total",
			Help:      "Number of submissions sold by category.",
		}, []string{"category"})
		SettledValueTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_value_total",
			Help:      "Total price of committed settlements by category.",
		}, []string{"category"})
		SettlementLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_ms",
			Help:      "Latency of settlement transactions in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"})
		CheckoutLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_lines_total",
			Help:      "Count of checkout line outcomes.",
		}, []string{"result"})
		CartOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Count of cart operations by outcome.",
		}, []string{"op", "result"})
		SaleNotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_notifications_total",
			Help:      "Count of sale notification deliveries by outcome.",
		}, []string{"result"})

		mustRegisterCollector(reg, SettlementsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettlementsTotal = v
			}
		})
		mustRegisterCollector(reg, SettlementRetriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SettlementRetriesTotal = v
			}
		})
		mustRegisterCollector(reg, ItemsSoldTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ItemsSoldTotal = v
			}
		})
		mustRegisterCollector(reg, SettledValueTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettledValueTotal = v
			}
		})
		mustRegisterCollector(reg, SettlementLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				SettlementLatency = v
			}
		})
		mustRegisterCollector(reg, CheckoutLinesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutLinesTotal = v
			}
		})
		mustRegisterCollector(reg, CartOperationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartOperationsTotal = v
			}
		})
		mustRegisterCollector(reg, SaleNotificationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SaleNotificationsTotal = v
			}
		})
	})
}

// ObserveSettlement records one settlement outcome. It is a no-op until
// MustRegisterDomainMetrics has run.
func ObserveSettlement(result, category string, items int, value float64, elapsedMillis float64) {
	if SettlementsTotal == nil {
		return
	}
	SettlementsTotal.WithLabelValues(result).Inc()
	SettlementLatency.WithLabelValues(result).Observe(elapsedMillis)
	if items > 0 {
		ItemsSoldTotal.WithLabelValues(category).Add(float64(items))
		SettledValueTotal.WithLabelValues(category).Add(value)
	}
}

// ObserveSettlementRetry counts a reservation-loss restart.
func ObserveSettlementRetry() {
	if SettlementRetriesTotal != nil {
		SettlementRetriesTotal.Inc()
	}
}

// ObserveCheckoutLine counts a checkout line outcome.
func ObserveCheckoutLine(result string) {
	if CheckoutLinesTotal != nil {
		CheckoutLinesTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCartOperation counts a cart mutation.
func ObserveCartOperation(op, result string) {
	if CartOperationsTotal != nil {
		CartOperationsTotal.WithLabelValues(op, result).Inc()
	}
}

// ObserveSaleNotification counts a notification delivery.
func ObserveSaleNotification(result string) {
	if SaleNotificationsTotal != nil {
		SaleNotificationsTotal.WithLabelValues(result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
