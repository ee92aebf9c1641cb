package catalog

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pricing is the catalog price of one product at snapshot time.
type Pricing struct {
	ProductID       uuid.UUID
	Name            string
	PricePaise      int64
	DiscountPercent decimal.Decimal
	TaxRatePercent  decimal.Decimal
}

// Service exposes product pricing lookups.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Pricing, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Pricing, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Pricing, error) {
	prices, err := s.GetProducts(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	p := prices[id]
	return &p, nil
}

// GetProducts returns pricing for every id or fails if any product is unknown or inactive.
func (s *service) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Pricing, error) {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	rows, err := s.repo.FindProducts(ctx, unique)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	out := make(map[uuid.UUID]Pricing, len(rows))
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		out[row.ID] = Pricing{
			ProductID:       row.ID,
			Name:            row.Name,
			PricePaise:      row.PricePaise,
			DiscountPercent: row.DiscountPercent,
			TaxRatePercent:  row.TaxRatePercent,
		}
	}
	for _, id := range unique {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"productId": id})
		}
	}
	return out, nil
}
