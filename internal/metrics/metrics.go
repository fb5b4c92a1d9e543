package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics собирает счётчики расчётного ядра для Prometheus.
type Metrics struct {
	OrdersCreated     prometheus.Counter
	Settlements       *prometheus.CounterVec
	FailedTransitions *prometheus.CounterVec
	DisputesOpened    prometheus.Counter
	DisputesResolved  *prometheus.CounterVec
	ScheduledOpsRun   *prometheus.CounterVec
}

// New регистрирует метрики в переданном registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_orders_created_total",
			Help: "Количество созданных заказов.",
		}),
		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_settlements_total",
			Help: "Количество закрытых расчётов по исходам.",
		}, []string{"outcome"}),
		FailedTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_failed_transitions_total",
			Help: "Количество отклонённых переходов по причинам.",
		}, []string{"reason"}),
		DisputesOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_disputes_opened_total",
			Help: "Количество открытых споров.",
		}),
		DisputesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_disputes_resolved_total",
			Help: "Количество разрешённых споров по решениям.",
		}, []string{"decision"}),
		ScheduledOpsRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_scheduled_operations_total",
			Help: "Количество исполненных отложенных операций по результату.",
		}, []string{"result"}),
	}
}
