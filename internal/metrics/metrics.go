package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchaseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passbot_purchase_outcomes_total",
			Help: "Finished purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	paymentWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "passbot_payment_wait_seconds",
			Help:    "Time spent waiting for payment confirmation",
			Buckets: prometheus.ExponentialBuckets(5, 2, 8),
		},
	)

	checkins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passbot_checkins_total",
			Help: "Door checks by result",
		},
		[]string{"result"},
	)

	broadcastMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passbot_broadcast_messages_total",
			Help: "Broadcast deliveries by status",
		},
		[]string{"status"},
	)

	eventAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "passbot_event_available",
			Help: "Free slots per event date",
		},
		[]string{"date"},
	)

	botUpdatesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "passbot_bot_updates_in_flight",
			Help: "Chat updates currently being handled",
		},
	)

	botUpdatesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "passbot_bot_updates_rejected_total",
			Help: "Chat updates turned away because every worker was busy",
		},
	)

	reconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passbot_reconciled_reservations_total",
			Help: "Stale reservations resolved by the reconciler",
		},
		[]string{"action"},
	)
)

func TrackPurchase(outcome string) {
	purchaseOutcomes.WithLabelValues(outcome).Inc()
}

func TrackPaymentWait(d time.Duration) {
	paymentWait.Observe(d.Seconds())
}

func TrackCheckIn(result string) {
	checkins.WithLabelValues(result).Inc()
}

func TrackBroadcast(status string, n int) {
	broadcastMessages.WithLabelValues(status).Add(float64(n))
}

func SetAvailable(date string, available int) {
	eventAvailable.WithLabelValues(date).Set(float64(available))
}

// ForgetEvent drops the gauge of a deleted event.
func ForgetEvent(date string) {
	eventAvailable.DeleteLabelValues(date)
}

func TrackReconciled(action string) {
	reconciled.WithLabelValues(action).Inc()
}

// UpdateStarted marks one chat update in flight; call the returned func when done.
func UpdateStarted() func() {
	botUpdatesInFlight.Inc()
	return botUpdatesInFlight.Dec
}

func TrackBusy() {
	botUpdatesRejected.Inc()
}
