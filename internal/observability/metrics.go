package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// wps-api metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wps_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wps_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wps_active_requests",
		Help: "Current in-flight requests",
	})

	EmbedTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wps_embed_tokens_total",
		Help: "Embed token issuance count",
	}, []string{"outcome"})

	// wps-worker metrics
	TaskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wps_task_total",
		Help: "Task completion count",
	}, []string{"op", "status"})

	TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wps_task_duration_seconds",
		Help:    "Task end-to-end duration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
	}, []string{"op"})

	TaskQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wps_task_queue_depth",
		Help: "Pending + retryable FAILED tasks",
	})

	TaskRetryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wps_task_retry_total",
		Help: "Task retry count",
	}, []string{"op"})

	LockWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wps_lock_wait_seconds",
		Help:    "Advisory lock wait time",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	DequeueEmptyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wps_dequeue_empty_total",
		Help: "Empty poll count",
	})

	ProvisioningStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wps_provisioning_state_transitions_total",
		Help: "Provisioning state transition count",
	}, []string{"from", "to"})

	// platform client metrics
	PlatformRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wps_platform_requests_total",
		Help: "Requests sent to the BI platform",
	}, []string{"method", "code"})

	PlatformRetryTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wps_platform_retry_total",
		Help: "Rate-limited platform requests retried",
	})

	RateLimitSleepSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wps_rate_limit_sleep_seconds",
		Help:    "Suspend time honoring Retry-After",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
	})

	TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wps_token_refresh_total",
		Help: "Access token exchanges per audience",
	}, []string{"audience"})

	// provisioning engine metrics
	ProvisionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wps_provision_duration_seconds",
		Help:    "Provisioning workflow duration",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
	}, []string{"outcome"})

	ImportPollIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wps_import_poll_iterations",
		Help:    "Poll iterations until an import left Publishing",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 150, 300},
	})

	RefreshPollIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wps_refresh_poll_iterations",
		Help:    "Poll iterations until a refresh reached a final state",
		Buckets: []float64{1, 2, 5, 10, 20, 40, 72},
	})

	RefreshTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wps_refresh_timeout_total",
		Help: "Refreshes still running when the poll budget ran out",
	})

	CompensatingDeleteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wps_compensating_delete_total",
		Help: "Workspace deletes after failed provisioning",
	}, []string{"outcome"})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, ActiveRequests, EmbedTokensTotal,
		TaskTotal, TaskDuration, TaskQueueDepth, TaskRetryTotal,
		LockWaitSeconds, DequeueEmptyTotal, ProvisioningStateTransitions,
		PlatformRequestsTotal, PlatformRetryTotal, RateLimitSleepSeconds, TokenRefreshTotal,
		ProvisionDuration, ImportPollIterations, RefreshPollIterations,
		RefreshTimeoutTotal, CompensatingDeleteTotal,
	)
}
