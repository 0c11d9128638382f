package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID            string          `json:"id"`
	ConsumerID    string          `json:"consumer_id"`
	RetailerID    string          `json:"retailer_id"`
	Items         []OrderItem     `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type PaymentMethod string

const (
	PaymentWallet      PaymentMethod = "wallet"
	PaymentCash        PaymentMethod = "cash"
	PaymentMobileMoney PaymentMethod = "mobile_money"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentWallet || p == PaymentCash || p == PaymentMobileMoney
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

type Product struct {
	ID         string          `json:"id"`
	RetailerID string          `json:"retailer_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
}
