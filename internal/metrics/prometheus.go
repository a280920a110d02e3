package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockdesk_ask_duration_seconds",
			Help:    "Ask pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	AskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockdesk_ask_total",
			Help: "Total number of ask calls by outcome",
		},
		[]string{"status"},
	)

	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockdesk_ask_state_transitions_total",
			Help: "Ask pipeline state transitions",
		},
		[]string{"state"},
	)

	RouteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockdesk_route_total",
			Help: "Routing decisions by domain and resolution method",
		},
		[]string{"domain", "method"},
	)

	FactsFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockdesk_facts_total",
			Help: "Fact payloads built by type and found flag",
		},
		[]string{"type", "found"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockdesk_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockdesk_llm_cost_total",
			Help: "LLM API cost in budget currency units",
		},
		[]string{"model"},
	)

	QuotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockdesk_quota_rejections_total",
			Help: "Questions rejected by the daily quota",
		},
	)

	BudgetRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockdesk_budget_rejections_total",
			Help: "Questions rejected by the monthly budget",
		},
	)

	ConversationsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockdesk_conversations_swept_total",
			Help: "Expired conversations deleted by the sweeper",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockdesk_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockdesk_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	FeedbackRating = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockdesk_feedback_rating",
			Help:    "Ratings attached to user feedback",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
)

func Init() {
	prometheus.MustRegister(AskDuration)
	prometheus.MustRegister(AskTotal)
	prometheus.MustRegister(StateTransitions)
	prometheus.MustRegister(RouteTotal)
	prometheus.MustRegister(FactsFound)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(LLMCost)
	prometheus.MustRegister(QuotaRejections)
	prometheus.MustRegister(BudgetRejections)
	prometheus.MustRegister(ConversationsSwept)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(FeedbackRating)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
