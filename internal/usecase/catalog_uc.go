package usecase

import (
	"context"

	"settlement-service/internal/provider"

	"go.uber.org/zap"
)

const (
	cacheKeyOperators = "catalog:operators"
	cacheKeyBanks     = "catalog:banks"
)

// CatalogCache is the read-through cache for gateway catalog payloads.
type CatalogCache interface {
	Get(ctx context.Context, key string, v interface{}) (bool, error)
	Set(ctx context.Context, key string, v interface{}) error
}

// CatalogUsecase serves the supported-operator and supported-bank lists and
// the platform's gateway balance. Catalogs change rarely, so they are served
// from cache and refreshed from the gateway on miss.
type CatalogUsecase struct {
	gateway provider.Gateway
	cache   CatalogCache
	logger  *zap.Logger
}

func NewCatalogUsecase(gateway provider.Gateway, cache CatalogCache, logger *zap.Logger) *CatalogUsecase {
	return &CatalogUsecase{gateway: gateway, cache: cache, logger: logger}
}

func (uc *CatalogUsecase) Operators(ctx context.Context) ([]provider.Operator, error) {
	var cached []provider.Operator
	if hit, err := uc.cache.Get(ctx, cacheKeyOperators, &cached); err != nil {
		uc.logger.Warn("operator cache read failed", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	operators, err := uc.gateway.ListOperators(ctx)
	if err != nil {
		return nil, err
	}

	if err := uc.cache.Set(ctx, cacheKeyOperators, operators); err != nil {
		uc.logger.Warn("operator cache write failed", zap.Error(err))
	}
	return operators, nil
}

func (uc *CatalogUsecase) Banks(ctx context.Context) ([]provider.Bank, error) {
	var cached []provider.Bank
	if hit, err := uc.cache.Get(ctx, cacheKeyBanks, &cached); err != nil {
		uc.logger.Warn("bank cache read failed", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	banks, err := uc.gateway.ListBanks(ctx)
	if err != nil {
		return nil, err
	}

	if err := uc.cache.Set(ctx, cacheKeyBanks, banks); err != nil {
		uc.logger.Warn("bank cache write failed", zap.Error(err))
	}
	return banks, nil
}

func (uc *CatalogUsecase) PlatformBalance(ctx context.Context) ([]provider.Balance, error) {
	return uc.gateway.AccountBalance(ctx)
}
