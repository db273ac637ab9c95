package rtb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors for auctions. A nil *Metrics records nothing.
type Metrics struct {
	auctions     *prometheus.CounterVec
	auctionTimer prometheus.Histogram
	bidRequests  *prometheus.CounterVec
	bidTimer     *prometheus.HistogramVec
	bidderPanics prometheus.Counter
	winningBids  prometheus.Histogram
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10}

// NewMetrics registers collectors on reg. Passing a fresh prometheus.NewRegistry() in tests
// avoids duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		auctions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callcenter",
			Subsystem: "rtb",
			Name:      "auctions_total",
			Help:      "Resolved auctions by outcome.",
		}, []string{"outcome"}),
		auctionTimer: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "callcenter",
			Subsystem: "rtb",
			Name:      "auction_duration_seconds",
			Help:      "Wall-clock duration of an auction.",
			Buckets:   latencyBuckets,
		}),
		bidRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callcenter",
			Subsystem: "rtb",
			Name:      "bid_requests_total",
			Help:      "Bid requests by result.",
		}, []string{"result"}),
		bidTimer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "callcenter",
			Subsystem: "rtb",
			Name:      "bid_request_duration_seconds",
			Help:      "Per-target bid request latency.",
			Buckets:   latencyBuckets,
		}, []string{"result"}),
		bidderPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callcenter",
			Subsystem: "rtb",
			Name:      "bidder_panics_total",
			Help:      "Recovered panics inside per-target tasks.",
		}),
		winningBids: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "callcenter",
			Subsystem: "rtb",
			Name:      "winning_bid_amount",
			Help:      "Winning bid amounts.",
			Buckets:   []float64{1, 5, 10, 20, 30, 50, 75, 100, 200},
		}),
	}
	reg.MustRegister(m.auctions, m.auctionTimer, m.bidRequests, m.bidTimer, m.bidderPanics, m.winningBids)
	return m
}

func (m *Metrics) RecordAuction(res AuctionResult) {
	if m == nil {
		return
	}
	m.auctions.WithLabelValues(string(res.Outcome)).Inc()
	m.auctionTimer.Observe(time.Duration(res.DurationMs * int64(time.Millisecond)).Seconds())
	if res.Winner != nil {
		m.winningBids.Observe(res.Winner.Bid())
	}
}

func (m *Metrics) RecordBid(r BidResponse) {
	if m == nil {
		return
	}
	label := bidResult(r)
	m.bidRequests.WithLabelValues(label).Inc()
	m.bidTimer.WithLabelValues(label).Observe(time.Duration(r.ResponseTimeMs * int64(time.Millisecond)).Seconds())
}

func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.bidderPanics.Inc()
}

func bidResult(r BidResponse) string {
	switch {
	case r.IsValid:
		return "valid"
	case r.TimedOut:
		return "timeout"
	case r.RejectionReason != nil:
		return *r.RejectionReason
	default:
		return "invalid"
	}
}
