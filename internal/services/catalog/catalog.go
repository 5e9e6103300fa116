// Package catalog отдаёт каталог тарифов: ключ тарифа ↔ идентификатор цены биллинга ↔ отображение.
// Чтения идут через кэш Redis; ошибки кэша логируются и не мешают чтению из хранилища.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// PlanRepository определяет методы чтения тарифов из хранилища.
type PlanRepository interface {
	ListPlans(ctx context.Context) ([]*models.Plan, error)
	GetPlanByKey(ctx context.Context, key string) (*models.Plan, error)
	GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

const (
	listKey    = "plans:all"
	keyPrefix  = "plans:key:"
	pricePrefx = "plans:price:"
)

// Service каталог тарифов.
type Service struct {
	log   *slog.Logger
	repo  PlanRepository
	cache Cache
	ttl   time.Duration
}

// New создаёт каталог. cache может быть nil.
func New(log *slog.Logger, repo PlanRepository, cache Cache, ttl time.Duration) *Service {
	return &Service{log: log, repo: repo, cache: cache, ttl: ttl}
}

// List возвращает все тарифы.
func (s *Service) List(ctx context.Context) ([]*models.Plan, error) {
	const op = "catalog.List"

	var cached []*models.Plan
	if s.fromCache(ctx, listKey, &cached) {
		return cached, nil
	}
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.toCache(ctx, listKey, plans)
	return plans, nil
}

// ByKey возвращает тариф по ключу. Неизвестный ключ — ошибка валидации.
func (s *Service) ByKey(ctx context.Context, key string) (*models.Plan, error) {
	const op = "catalog.ByKey"
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%s: %w: plan is required", op, errs.ErrValidation)
	}
	return s.lookup(ctx, op, keyPrefix+key, key, s.repo.GetPlanByKey)
}

// ByPriceID возвращает тариф по идентификатору цены биллинга.
func (s *Service) ByPriceID(ctx context.Context, priceID string) (*models.Plan, error) {
	const op = "catalog.ByPriceID"
	if priceID == "" {
		return nil, fmt.Errorf("%s: %w: price id is required", op, errs.ErrValidation)
	}
	return s.lookup(ctx, op, pricePrefx+priceID, priceID, s.repo.GetPlanByPriceID)
}

// Invalidate сбрасывает кэш каталога.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, listKey); err != nil {
		s.log.Warn("failed to invalidate plan cache", sl.Err(err))
	}
}

func (s *Service) lookup(ctx context.Context, op, cacheKey, value string,
	get func(ctx context.Context, v string) (*models.Plan, error)) (*models.Plan, error) {
	var cached models.Plan
	if s.fromCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}
	p, err := get(ctx, value)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w: unknown plan %q", op, errs.ErrValidation, value)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.toCache(ctx, cacheKey, p)
	return p, nil
}

func (s *Service) fromCache(ctx context.Context, key string, result any) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.Get(ctx, key, result)
	if err != nil {
		s.log.Warn("plan cache read failed", slog.String("key", key), sl.Err(err))
		return false
	}
	return found
}

func (s *Service) toCache(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.log.Warn("plan cache write failed", slog.String("key", key), sl.Err(err))
	}
}
