package payment

import (
	"time"
)

type Payment struct {
	ID                int64     `gorm:"primaryKey"`
	PaymentID         string    `gorm:"column:payment_id;not null;uniqueIndex"`
	PhoneNumber       string    `gorm:"column:phone_number;not null"`
	Amount            float64   `gorm:"column:amount;not null"`
	Status            string    `gorm:"column:status;default:pending"`
	TransactionCode   *string   `gorm:"column:transaction_code"`
	CheckoutRequestID *string   `gorm:"column:checkout_request_id;index"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
