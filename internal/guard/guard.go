package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/llm"
	"github.com/stockdesk/backend/internal/metrics"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

var (
	ErrQuotaExceeded   = errors.New("daily question quota exceeded")
	ErrBudgetExhausted = errors.New("monthly budget exhausted")
)

// CounterStore keeps the shared usage counters. IncrementDaily must check
// and increment in one atomic operation.
type CounterStore interface {
	IncrementDaily(ctx context.Context, userID, dateKey string, limit int) (bool, error)
	DailyCount(ctx context.Context, userID, dateKey string) (int, error)
	AddMonthlyUsage(ctx context.Context, periodKey string, inputTokens, outputTokens int64, cost float64) error
	MonthlyUsage(ctx context.Context, periodKey string) (*models.UsageCounter, error)
}

type Options struct {
	DailyLimit      int
	MonthlyBudget   float64
	Pricing         Pricing
	MaxOutputTokens int
	Location        *time.Location
	Now             func() time.Time
}

type Guard struct {
	store           CounterStore
	dailyLimit      int
	monthlyBudget   float64
	pricing         Pricing
	maxOutputTokens int
	loc             *time.Location
	now             func() time.Time
}

type DailyUsage struct {
	Date      string `json:"date"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func New(store CounterStore, opts Options) *Guard {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{
		store:           store,
		dailyLimit:      opts.DailyLimit,
		monthlyBudget:   opts.MonthlyBudget,
		pricing:         opts.Pricing,
		maxOutputTokens: opts.MaxOutputTokens,
		loc:             opts.Location,
		now:             opts.Now,
	}
}

func (g *Guard) dateKey() string {
	return g.now().In(g.loc).Format("2006-01-02")
}

func (g *Guard) periodKey() string {
	return g.now().In(g.loc).Format("2006-01")
}

// AssertDailyLimit consumes one question from today's quota.
func (g *Guard) AssertDailyLimit(ctx context.Context, userID string) error {
	ok, err := g.store.IncrementDaily(ctx, userID, g.dateKey(), g.dailyLimit)
	if err != nil {
		return fmt.Errorf("failed to check daily limit: %w", err)
	}
	if !ok {
		metrics.QuotaRejections.Inc()
		logger.Info("Daily quota exceeded", zap.String("user_id", userID), zap.Int("limit", g.dailyLimit))
		return ErrQuotaExceeded
	}
	return nil
}

func (g *Guard) DailyUsage(ctx context.Context, userID string) (*DailyUsage, error) {
	date := g.dateKey()
	count, err := g.store.DailyCount(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily usage: %w", err)
	}
	remaining := g.dailyLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return &DailyUsage{Date: date, Count: count, Limit: g.dailyLimit, Remaining: remaining}, nil
}

func (g *Guard) MonthlyUsage(ctx context.Context) (*models.UsageCounter, error) {
	usage, err := g.store.MonthlyUsage(ctx, g.periodKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read monthly usage: %w", err)
	}
	return usage, nil
}

// EnsureMonthlyBudget returns the budget left this month.
func (g *Guard) EnsureMonthlyBudget(ctx context.Context) (float64, error) {
	usage, err := g.MonthlyUsage(ctx)
	if err != nil {
		return 0, err
	}
	remaining := g.monthlyBudget - usage.TotalCost
	if remaining <= 0 {
		metrics.BudgetRejections.Inc()
		return 0, ErrBudgetExhausted
	}
	return remaining, nil
}

func (g *Guard) EstimateTokens(text string) int {
	return g.pricing.EstimateTokens(text)
}

func (g *Guard) EstimateCost(inputTokens, outputTokens int) float64 {
	return g.pricing.EstimateCost(inputTokens, outputTokens)
}

// CheckCallBudget rejects a call whose worst case, the prompt at input price
// plus the full output allowance at output price, exceeds remaining.
// Concurrent calls may each pass against the same remaining amount, so the
// overspend is bounded by their estimates.
//
// The estimate covers one provider call. The LLM client retries transient
// failures, so one Complete can reach the provider up to llm.maxAttempts
// times and the worst-case spend per question is that many estimates. Every
// answered attempt is still recorded at its reported usage.
func (g *Guard) CheckCallBudget(promptChars int, remaining float64) (float64, error) {
	estimate := g.pricing.EstimateCost(g.pricing.TokensForChars(promptChars), g.maxOutputTokens)
	if estimate > remaining {
		metrics.BudgetRejections.Inc()
		logger.Warn("Call estimate exceeds remaining budget",
			zap.Float64("estimate", estimate),
			zap.Float64("remaining", remaining),
		)
		return estimate, ErrBudgetExhausted
	}
	return estimate, nil
}

// RecordUsage adds the provider-reported usage to this month's counters.
func (g *Guard) RecordUsage(ctx context.Context, usage llm.Usage) error {
	in, out := usage.PromptTokens, usage.CompletionTokens
	if in < 0 {
		in = 0
	}
	if out < 0 {
		out = 0
	}
	cost := g.pricing.EstimateCost(in, out)

	if err := g.store.AddMonthlyUsage(ctx, g.periodKey(), int64(in), int64(out), cost); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	metrics.LLMTokensUsed.WithLabelValues(usage.Model, "input").Add(float64(in))
	metrics.LLMTokensUsed.WithLabelValues(usage.Model, "output").Add(float64(out))
	metrics.LLMCost.WithLabelValues(usage.Model).Add(cost)
	return nil
}
