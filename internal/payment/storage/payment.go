package storage

import (
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"

	"github.com/sokofresh/mpesa-checkout/internal/core/datamodel/payment"
	paymentpkg "github.com/sokofresh/mpesa-checkout/internal/payment"
)

// PaymentRepository persists payments through gorm; the history
// listing goes through sqlx with raw SQL over the same connection.
type PaymentRepository struct {
	db     *gorm.DB
	sqlxDB *sqlx.DB
}

func NewPaymentRepository(db *gorm.DB, sqlxDB *sqlx.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db:     db,
		sqlxDB: sqlxDB,
	}
}

func (r *PaymentRepository) Create(p *payment.Payment) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByPaymentID(paymentID string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("payment_id = ?", paymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByCheckoutRequestID(checkoutRequestID string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("checkout_request_id = ?", checkoutRequestID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) UpdateStatus(paymentID, status string) error {
	return r.db.Model(&payment.Payment{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *PaymentRepository) UpdateSuccess(paymentID, transactionCode string) error {
	return r.db.Model(&payment.Payment{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"status":           paymentpkg.StatusSuccess,
			"transaction_code": transactionCode,
			"updated_at":       time.Now().UTC(),
		}).Error
}

type paymentRow struct {
	ID                int64      `db:"id"`
	PaymentID         string     `db:"payment_id"`
	PhoneNumber       string     `db:"phone_number"`
	Amount            float64    `db:"amount"`
	Status            string     `db:"status"`
	TransactionCode   *string    `db:"transaction_code"`
	CheckoutRequestID *string    `db:"checkout_request_id"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

func (r *PaymentRepository) List(limit, offset int) ([]*payment.Payment, error) {
	var rows []paymentRow
	query := r.sqlxDB.Rebind(`
		SELECT id, payment_id, phone_number, amount, status,
		       transaction_code, checkout_request_id, created_at, updated_at
		FROM payments
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`)

	if err := r.sqlxDB.Select(&rows, query, limit, offset); err != nil {
		return nil, err
	}

	payments := make([]*payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, &payment.Payment{
			ID:                row.ID,
			PaymentID:         row.PaymentID,
			PhoneNumber:       row.PhoneNumber,
			Amount:            row.Amount,
			Status:            row.Status,
			TransactionCode:   row.TransactionCode,
			CheckoutRequestID: row.CheckoutRequestID,
			CreatedAt:         row.CreatedAt,
			UpdatedAt:         row.UpdatedAt,
		})
	}

	return payments, nil
}
