package repository

import (
	"context"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
}

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
}
