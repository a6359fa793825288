package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reward_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reward_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reward_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	actionClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reward_engine",
			Subsystem: "actions",
			Name:      "claims_total",
			Help:      "Total daily-action claim attempts.",
		},
		[]string{"action", "outcome"},
	)

	currencyCredited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reward_engine",
			Subsystem: "ledger",
			Name:      "credited_total",
			Help:      "Total currency credited, by source.",
		},
		[]string{"source"},
	)

	badgesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reward_engine",
			Subsystem: "achievements",
			Name:      "awards_total",
			Help:      "Total achievements awarded.",
		},
		[]string{"achievement_id"},
	)

	quotaConsumes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reward_engine",
			Subsystem: "quota",
			Name:      "consumes_total",
			Help:      "Total quota consume attempts.",
		},
		[]string{"resource", "outcome"},
	)

	shieldUses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reward_engine",
			Subsystem: "streaks",
			Name:      "shield_uses_total",
			Help:      "Total streak shields consumed.",
		},
	)

	ledgerDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reward_engine",
			Subsystem: "ledger",
			Name:      "balance_drift_accounts",
			Help:      "Accounts whose cached balance disagrees with the entry sum, per audit sweep.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		actionClaims,
		currencyCredited,
		badgesAwarded,
		quotaConsumes,
		shieldUses,
		ledgerDrift,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordClaim records a daily-action claim attempt.
func RecordClaim(action string, claimed bool) {
	outcome := "duplicate"
	if claimed {
		outcome = "claimed"
	}
	actionClaims.WithLabelValues(action, outcome).Inc()
}

// RecordCredit records credited currency by source.
func RecordCredit(source string, amount int64) {
	if amount <= 0 {
		return
	}
	currencyCredited.WithLabelValues(source).Add(float64(amount))
}

// RecordAward records an achievement award.
func RecordAward(achievementID string) {
	if achievementID == "" {
		achievementID = "unknown"
	}
	badgesAwarded.WithLabelValues(achievementID).Inc()
}

// RecordQuotaConsume records a quota consume attempt.
func RecordQuotaConsume(resource string, ok bool) {
	outcome := "exceeded"
	if ok {
		outcome = "ok"
	}
	quotaConsumes.WithLabelValues(resource, outcome).Inc()
}

// RecordShieldUse records a consumed streak shield.
func RecordShieldUse() {
	shieldUses.Inc()
}

// SetLedgerDrift publishes the latest audit sweep result.
func SetLedgerDrift(accounts int) {
	ledgerDrift.Set(float64(accounts))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses per-user paths so label cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "users" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/users"
	}
	if len(parts) == 2 {
		return "/users/:user"
	}
	return "/users/:user/" + strings.Join(parts[2:], "/")
}
