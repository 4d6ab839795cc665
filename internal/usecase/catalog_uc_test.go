package usecase

import (
	"context"
	"testing"

	"settlement-service/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCatalogOperators(t *testing.T) {
	ctx := context.Background()

	gatewayCalls := 0
	gateway := &fakeGateway{
		listOperators: func(ctx context.Context) ([]provider.Operator, error) {
			gatewayCalls++
			return []provider.Operator{
				{RefID: "op-airtel", Name: "Airtel Money", ShortCode: "AIRTEL"},
				{RefID: "op-tnm", Name: "TNM Mpamba", ShortCode: "TNM"},
			}, nil
		},
	}
	cache := newFakeCache()
	uc := NewCatalogUsecase(gateway, cache, zap.NewNop())

	first, err := uc.Operators(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, gatewayCalls)
	assert.Equal(t, 1, cache.sets)

	// Second read is served from cache.
	second, err := uc.Operators(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, gatewayCalls)
}

func TestCatalogBanks(t *testing.T) {
	ctx := context.Background()

	gatewayCalls := 0
	gateway := &fakeGateway{
		listBanks: func(ctx context.Context) ([]provider.Bank, error) {
			gatewayCalls++
			return []provider.Bank{{Code: "bank-uuid-1", Name: "National Bank"}}, nil
		},
	}
	cache := newFakeCache()
	uc := NewCatalogUsecase(gateway, cache, zap.NewNop())

	banks, err := uc.Banks(ctx)
	require.NoError(t, err)
	require.Len(t, banks, 1)

	banks, err = uc.Banks(ctx)
	require.NoError(t, err)
	require.Len(t, banks, 1)
	assert.Equal(t, 1, gatewayCalls)
}

func TestCatalogGatewayFailurePropagates(t *testing.T) {
	ctx := context.Background()

	gateway := &fakeGateway{
		listOperators: func(ctx context.Context) ([]provider.Operator, error) {
			return nil, &provider.GatewayError{Code: "http_503", Message: "unavailable"}
		},
	}
	uc := NewCatalogUsecase(gateway, newFakeCache(), zap.NewNop())

	_, err := uc.Operators(ctx)
	require.Error(t, err)

	var gerr *provider.GatewayError
	assert.ErrorAs(t, err, &gerr)
}
