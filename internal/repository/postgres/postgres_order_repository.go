package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const orderTracer = "order-repository"

type PostgresOrderRepository struct {
	db DBTX
}

func NewPostgresOrderRepository(db DBTX) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// Create inserts the order and its items. Callers that need the two to be
// atomic run it inside a unit of work.
func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) (err error) {
	ctx, done := instrument(ctx, orderTracer, "CreateOrder")
	defer func() { done(err) }()

	if order == nil || len(order.Items) == 0 {
		err = pkgerrors.ErrInvalidInput
		return err
	}

	query := `INSERT INTO orders (id, consumer_id, retailer_id, total, payment_method, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query,
		order.ID, order.ConsumerID, order.RetailerID, order.Total, order.PaymentMethod, order.Status,
	).Scan(&order.CreatedAt)
	if err != nil {
		err = classify(err)
		slog.Error("failed to create order", "method", "Create", "consumer_id", order.ConsumerID, "error", err)
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4)`
	for _, item := range order.Items {
		if _, err = r.db.ExecContext(ctx, itemQuery, order.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			err = classify(err)
			slog.Error("failed to create order item", "method", "Create", "order_id", order.ID, "product_id", item.ProductID, "error", err)
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	slog.Info("order created", "method", "Create", "order_id", order.ID, "consumer_id", order.ConsumerID, "total", order.Total.String(), "payment_method", order.PaymentMethod)
	return nil
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (o *models.Order, err error) {
	ctx, done := instrument(ctx, orderTracer, "GetOrderByID", attribute.String("order_id", id))
	defer func() { done(err) }()

	var order models.Order
	query := `SELECT id, consumer_id, retailer_id, total, payment_method, status, created_at FROM orders WHERE id = $1`
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID, &order.ConsumerID, &order.RetailerID, &order.Total, &order.PaymentMethod, &order.Status, &order.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrOrderNotFound
		return nil, err
	}
	if err != nil {
		err = classify(err)
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT product_id, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY product_id`, id)
	if err != nil {
		err = classify(err)
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err = rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", classify(err))
	}
	return &order, nil
}

type PostgresProductRepository struct {
	db DBTX
}

func NewPostgresProductRepository(db DBTX) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id string) (p *models.Product, err error) {
	ctx, done := instrument(ctx, "product-repository", "GetProductByID", attribute.String("product_id", id))
	defer func() { done(err) }()

	query := `
			SELECT id, retailer_id, name, price
			FROM products
			WHERE id = $1
`
	var product models.Product
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.RetailerID,
		&product.Name,
		&product.Price,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrProductNotFound
		return nil, err
	}
	if err != nil {
		err = classify(err)
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}
