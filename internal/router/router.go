package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/llm"
	"github.com/stockdesk/backend/internal/metrics"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
	"github.com/stockdesk/backend/pkg/utils"
)

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// DecisionCache stores classifier results keyed by question hash.
type DecisionCache interface {
	GetDecision(ctx context.Context, questionHash string) (*models.RoutingDecision, bool, error)
	SetDecision(ctx context.Context, questionHash string, decision models.RoutingDecision, ttl time.Duration) error
}

type Router struct {
	llm           Completer
	cache         DecisionCache
	cacheTTL      time.Duration
	minConfidence float64
}

type Option func(*Router)

func WithCache(cache DecisionCache, ttl time.Duration) Option {
	return func(r *Router) {
		r.cache = cache
		r.cacheTTL = ttl
	}
}

func NewRouter(completer Completer, minConfidence float64, opts ...Option) *Router {
	r := &Router{llm: completer, minConfidence: minConfidence}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var unknown = models.RoutingDecision{Domain: models.DomainUnknown, Confidence: 0}

// Route resolves the domain that can answer the question. It never fails:
// anything the classifier cannot settle confidently is unknown.
func (r *Router) Route(ctx context.Context, question string) models.RoutingDecision {
	folded := utils.Fold(question)
	for _, rule := range Rules {
		if rule.Match(question, folded) {
			logger.Debug("Question routed by rule",
				zap.String("rule", rule.Name),
				zap.String("domain", string(rule.Domain)),
			)
			metrics.RouteTotal.WithLabelValues(string(rule.Domain), "rule").Inc()
			return models.RoutingDecision{Domain: rule.Domain, Confidence: 1}
		}
	}

	hash := utils.HashQuestion(question)
	if r.cache != nil {
		decision, ok, err := r.cache.GetDecision(ctx, hash)
		if err != nil {
			logger.Warn("Routing cache read failed", zap.Error(err))
		} else if ok {
			metrics.CacheHits.WithLabelValues("route").Inc()
			metrics.RouteTotal.WithLabelValues(string(decision.Domain), "cache").Inc()
			return *decision
		} else {
			metrics.CacheMisses.WithLabelValues("route").Inc()
		}
	}

	decision := r.classify(ctx, question)
	metrics.RouteTotal.WithLabelValues(string(decision.Domain), "classifier").Inc()

	if r.cache != nil && decision.Domain != models.DomainUnknown {
		if err := r.cache.SetDecision(ctx, hash, decision, r.cacheTTL); err != nil {
			logger.Warn("Routing cache write failed", zap.Error(err))
		}
	}
	return decision
}

type classification struct {
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

func (r *Router) classify(ctx context.Context, question string) models.RoutingDecision {
	if r.llm == nil {
		return unknown
	}

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierPrompt(),
		UserPrompt:   question,
		Temperature:  0.01,
		MaxTokens:    60,
	})
	if err != nil {
		logger.Warn("Routing classifier failed", zap.Error(err))
		return unknown
	}

	var c classification
	if err := llm.ParseJSONObject(resp.Content, &c); err != nil {
		logger.Warn("Routing classifier returned unparseable output", zap.Error(err))
		return unknown
	}

	domain, ok := models.ParseDomain(strings.ToLower(strings.TrimSpace(c.Source)))
	if !ok || c.Confidence < r.minConfidence || c.Confidence > 1 {
		logger.Debug("Routing classifier result rejected",
			zap.String("source", c.Source),
			zap.Float64("confidence", c.Confidence),
		)
		return unknown
	}
	return models.RoutingDecision{Domain: domain, Confidence: c.Confidence}
}

func classifierPrompt() string {
	var b strings.Builder
	b.WriteString("Bạn phân loại câu hỏi của nhân viên kho vào đúng một nguồn dữ liệu.\n\nCác nguồn:\n")
	for _, entry := range Catalog {
		fmt.Fprintf(&b, "- %s: %s\n", entry.Domain, entry.Description)
		for _, ex := range entry.Examples {
			fmt.Fprintf(&b, "  Ví dụ: %s\n", ex)
		}
	}
	b.WriteString("\nChỉ trả về JSON dạng {\"source\": \"<nguồn>\", \"confidence\": <0..1>}. ")
	b.WriteString("Nếu không thuộc nguồn nào, trả về {\"source\": \"unknown\", \"confidence\": 0}.")
	return b.String()
}
