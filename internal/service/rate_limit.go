package service

import (
	"context"
	"time"

	"room_chat/internal/config"
	"room_chat/internal/repository"
	"room_chat/pkg/logger"
)

// RateDecision is the outcome of one counted request.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

type RateLimitService interface {
	// Allow counts one request against key within the configured window.
	Allow(ctx context.Context, key string) (RateDecision, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	cfg           config.RateLimitConfig
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, cfg config.RateLimitConfig, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		cfg:           cfg,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string) (RateDecision, error) {
	count, resetIn, err := s.rateLimitRepo.Hit(ctx, key, s.cfg.Window)
	if err != nil {
		return RateDecision{}, err
	}

	remaining := s.cfg.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{
		Allowed:   int(count) <= s.cfg.Requests,
		Limit:     s.cfg.Requests,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}
