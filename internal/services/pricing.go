package services

import (
	"context"
	"time"

	"village_market/internal/repository"
)

// salePrices maps product id to the lowest running flash-sale price.
func salePrices(ctx context.Context, sales repository.FlashSaleRepository, productIDs []uint, at time.Time) (map[uint]int64, error) {
	prices := make(map[uint]int64)
	if sales == nil || len(productIDs) == 0 {
		return prices, nil
	}
	active, err := sales.GetActiveForProducts(ctx, productIDs, at)
	if err != nil {
		return nil, err
	}
	for _, sale := range active {
		if cur, ok := prices[sale.ProductID]; !ok || sale.SalePrice < cur {
			prices[sale.ProductID] = sale.SalePrice
		}
	}
	return prices, nil
}
