// Package addresses reads the customer's saved address book. Orders copy the
// returned snapshot.
package addresses

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrAddressRequired is returned when checkout has no usable delivery address.
var ErrAddressRequired = pkgerrors.New(pkgerrors.CodeValidation, "a delivery address is required")

// Repository reads address rows.
type Repository interface {
	FindByUser(ctx context.Context, userID, addressID uuid.UUID) (*models.Address, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByUser(ctx context.Context, userID, addressID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", addressID, userID).
		First(&addr).Error
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// Service resolves address snapshots for checkout.
type Service interface {
	GetAddress(ctx context.Context, userID, addressID uuid.UUID) (types.Address, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetAddress(ctx context.Context, userID, addressID uuid.UUID) (types.Address, error) {
	if addressID == uuid.Nil {
		return types.Address{}, ErrAddressRequired
	}
	row, err := s.repo.FindByUser(ctx, userID, addressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Address{}, ErrAddressRequired
		}
		return types.Address{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}

	snapshot := types.Address{
		Name:       row.Name,
		Phone:      row.Phone,
		Line1:      row.Line1,
		Line2:      row.Line2,
		City:       row.City,
		State:      row.State,
		PostalCode: row.PostalCode,
		Country:    row.Country,
	}
	if err := snapshot.Validate(); err != nil {
		return types.Address{}, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrAddressRequired, err.Error())
	}
	return snapshot, nil
}
