package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const orderTracer = "order-service"

const productCacheTTL = 24 * time.Hour

type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type CreateOrderRequest struct {
	RetailerID    string               `json:"retailer_id"`
	Items         []OrderLine          `json:"items"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, consumerID string, req CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

type orderService struct {
	uow         repository.UnitOfWork
	engine      *ledger.Engine
	redisClient redis.RedisClient
}

func NewOrderService(uow repository.UnitOfWork, engine *ledger.Engine, redisClient redis.RedisClient) *orderService {
	return &orderService{uow: uow, engine: engine, redisClient: redisClient}
}

// CreateOrder prices the items and stores the order. A wallet payment
// debits the consumer's dashboard wallet in the same unit as the order
// insert, so an order never exists without its payment.
func (s *orderService) CreateOrder(ctx context.Context, consumerID string, req CreateOrderRequest) (*models.Order, error) {
	ctx, span := otel.Tracer(orderTracer).Start(ctx, "CreateOrder")
	defer span.End()

	if req.RetailerID == "" || len(req.Items) == 0 {
		span.SetStatus(codes.Error, "empty order")
		return nil, fmt.Errorf("%w: retailer and items are required", pkgerrors.ErrInvalidInput)
	}
	if !req.PaymentMethod.Valid() {
		span.SetStatus(codes.Error, "invalid payment method")
		return nil, fmt.Errorf("%w: unknown payment method %q", pkgerrors.ErrInvalidInput, req.PaymentMethod)
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		ConsumerID:    consumerID,
		RetailerID:    req.RetailerID,
		Total:         decimal.Zero,
		PaymentMethod: req.PaymentMethod,
		Status:        models.OrderPending,
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", pkgerrors.ErrInvalidInput)
		}
		product, err := s.getProduct(ctx, line.ProductID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "product lookup failed")
			return nil, err
		}
		if product.RetailerID != req.RetailerID {
			return nil, fmt.Errorf("%w: product %s is not sold by retailer %s", pkgerrors.ErrInvalidInput, product.ID, req.RetailerID)
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID: product.ID,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
		order.Total = order.Total.Add(product.Price.Mul(decimal.NewFromInt32(line.Quantity)))
	}
	if req.PaymentMethod == models.PaymentWallet {
		order.Status = models.OrderCompleted
	}

	err := s.engine.Execute(ctx, func(ctx context.Context, u *ledger.Unit) error {
		if order.PaymentMethod == models.PaymentWallet && order.Total.IsPositive() {
			if _, err := s.engine.ApplyInUnit(ctx, u, ledger.Operation{
				Wallet:                 ledger.ByOwner(consumerID, models.WalletDashboard),
				Amount:                 order.Total.Neg(),
				Type:                   models.TypePurchase,
				Description:            fmt.Sprintf("order at retailer %s", order.RetailerID),
				Reference:              order.ID,
				RequireSufficientFunds: true,
			}); err != nil {
				return err
			}
		}
		return u.Orders.Create(ctx, order)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation failed")
		slog.Error("failed to create order", "consumer_id", consumerID, "retailer_id", req.RetailerID,
			"total", order.Total.String(), "error", err)
		return nil, err
	}

	slog.Info("order created", "order_id", order.ID, "consumer_id", consumerID, "total", order.Total.String(),
		"payment_method", order.PaymentMethod)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	err := s.uow.View(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		order, err = st.Orders.GetByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// getProduct reads through the Redis product cache.
func (s *orderService) getProduct(ctx context.Context, productID string) (*models.Product, error) {
	key := fmt.Sprintf("product:%s", productID)

	cached, err := s.redisClient.Get(ctx, key)
	if err == nil {
		var product models.Product
		if err := json.Unmarshal([]byte(cached), &product); err == nil {
			return &product, nil
		}
		slog.Error("failed to unmarshal cached product", "product_id", productID)
	} else if !stderrors.Is(err, redis.ErrKeyNotFound) {
		slog.Error("failed to get product from Redis", "product_id", productID, "error", err)
	}

	var product *models.Product
	err = s.uow.View(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		product, err = st.Products.GetByID(ctx, productID)
		return err
	})
	if err != nil {
		slog.Error("product not found", "product_id", productID, "error", err)
		return nil, err
	}

	productBytes, err := json.Marshal(product)
	if err != nil {
		slog.Error("failed to marshal product", "product_id", productID, "error", err)
		return product, nil
	}
	if err := s.redisClient.Set(ctx, key, string(productBytes), productCacheTTL); err != nil {
		slog.Error("failed to cache product", "product_id", productID, "error", err)
	}
	return product, nil
}
