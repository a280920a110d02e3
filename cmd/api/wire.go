package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/cache/redis"
	"github.com/stockdesk/backend/internal/conversation"
	"github.com/stockdesk/backend/internal/facts"
	"github.com/stockdesk/backend/internal/guard"
	"github.com/stockdesk/backend/internal/llm"
	"github.com/stockdesk/backend/internal/query"
	"github.com/stockdesk/backend/internal/router"
	"github.com/stockdesk/backend/internal/storage/sqlite"
	"github.com/stockdesk/backend/pkg/config"
	appLogger "github.com/stockdesk/backend/pkg/logger"
)

type services struct {
	db            *sqlite.Client
	redis         *redis.Client
	guard         *guard.Guard
	router        *router.Router
	facts         *facts.Assembler
	conversations *conversation.Service
	engine        *query.Engine
}

func buildServices(cfg *config.Config) (*services, error) {
	s := &services{}

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite client: %w", err)
	}
	s.db = db

	if err := db.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = rc
	}

	var counters guard.CounterStore = db
	if cfg.Assistant.CounterBackend == "redis" {
		counters = s.redis
	}

	loc, err := cfg.Assistant.Location()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", config.ErrMisconfigured, err)
	}

	s.guard = guard.New(counters, guard.Options{
		DailyLimit:    cfg.Assistant.DailyLimit,
		MonthlyBudget: cfg.Assistant.MonthlyBudget,
		Pricing: guard.Pricing{
			InputPerMillion:  cfg.Assistant.InputPricePerMillion,
			OutputPerMillion: cfg.Assistant.OutputPricePerMillion,
			CharsPerToken:    cfg.Assistant.CharsPerToken,
		},
		MaxOutputTokens: cfg.LLM.MaxTokens,
		Location:        loc,
	})

	llmClient, err := llm.NewClient(llm.OptionsFromConfig(cfg), s.guard)
	if err != nil {
		s.Close()
		return nil, err
	}

	var routerOpts []router.Option
	if s.redis != nil {
		routerOpts = append(routerOpts, router.WithCache(s.redis, cfg.Assistant.RouteCacheTTL()))
	}

	s.router = router.NewRouter(llmClient, cfg.Assistant.MinRouteConfidence, routerOpts...)
	s.facts = facts.NewAssembler(db)
	s.conversations = conversation.NewService(db, cfg.Assistant.ConversationTTL())
	s.engine = query.NewEngine(query.Deps{
		Router:        s.router,
		Facts:         s.facts,
		Guard:         s.guard,
		Gateway:       llmClient,
		Conversations: s.conversations,
		Feedback:      db,
	}, query.Options{
		MaxQuestionLength: cfg.Assistant.MaxQuestionLength,
		HistoryWindow:     cfg.Assistant.HistoryWindow,
	})

	appLogger.Info("Assistant wired",
		zap.String("model", llmClient.Model()),
		zap.String("counter_backend", cfg.Assistant.CounterBackend),
		zap.Bool("route_cache", s.redis != nil),
	)

	return s, nil
}

// Ready reports whether the backing stores answer.
func (s *services) Ready(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (s *services) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			appLogger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			appLogger.Warn("Failed to close sqlite", zap.Error(err))
		}
	}
}
