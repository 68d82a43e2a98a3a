package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ticket-gate/internal/store"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets minted per event",
		},
		[]string{"event_id"},
	)

	issuanceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuance_failures_total",
			Help: "Issuance attempts that did not mint tickets",
		},
		[]string{"reason"},
	)

	verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Verification attempts by outcome and reason",
		},
		[]string{"event_id", "outcome", "reason"},
	)

	verificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verification_duration_seconds",
			Help:    "Time spent on one verification attempt",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	oracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_oracle_requests_total",
			Help: "Payment oracle calls by result",
		},
		[]string{"status"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verify_rate_limited_total",
			Help: "Verification requests rejected by the per-officer rate limit",
		},
	)

	ticketsSold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_tickets_sold",
			Help: "Sold counter per event as stored",
		},
		[]string{"event_id"},
	)

	ticketsCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_tickets_capacity",
			Help: "Total capacity per event",
		},
		[]string{"event_id"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

type InventorySource interface {
	ListEventInventory(ctx context.Context) ([]store.EventInventory, error)
}

// Monitor records service metrics. A nil *Monitor is valid and records
// nothing, so services can run without metrics in tests.
type Monitor struct {
	inventory InventorySource
}

func NewMonitor(inventory InventorySource) *Monitor {
	return &Monitor{inventory: inventory}
}

// Run refreshes the gauges every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.Collect(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) Collect(ctx context.Context) {
	if m == nil {
		return
	}
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	if m.inventory == nil {
		return
	}
	inv, err := m.inventory.ListEventInventory(ctx)
	if err != nil {
		slog.Error("Failed to collect inventory metrics", "error", err)
		return
	}
	for _, e := range inv {
		ticketsSold.WithLabelValues(e.EventID).Set(float64(e.Sold))
		ticketsCapacity.WithLabelValues(e.EventID).Set(float64(e.Total))
	}
}

func (m *Monitor) TrackIssuance(eventID string, count int) {
	if m == nil {
		return
	}
	ticketsIssued.WithLabelValues(eventID).Add(float64(count))
}

func (m *Monitor) TrackIssuanceFailure(reason string) {
	if m == nil {
		return
	}
	issuanceFailures.WithLabelValues(reason).Inc()
}

func (m *Monitor) TrackVerification(eventID, outcome, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	verifications.WithLabelValues(eventID, outcome, reason).Inc()
	verificationDuration.Observe(elapsed.Seconds())
}

func (m *Monitor) TrackOracleRequest(status string) {
	if m == nil {
		return
	}
	oracleRequests.WithLabelValues(status).Inc()
}

func (m *Monitor) TrackRateLimited() {
	if m == nil {
		return
	}
	rateLimited.Inc()
}
