package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
// Запись платежей выполняется только внутри транзакции сверки.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func (r *paymentRepository) ListByOrder(orderID string) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, provider, reference, status, amount_minor, raw_payload, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 1)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Provider, &p.Reference,
			&p.Status, &p.AmountMinor, &p.RawPayload, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}

	return payments, nil
}

func (r *paymentRepository) GetByReference(reference, provider string) (domain.Payment, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var p domain.Payment
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, provider, reference, status, amount_minor, raw_payload, created_at
		FROM payments
		WHERE reference = $1 AND provider = $2
	`, reference, provider).Scan(&p.ID, &p.OrderID, &p.Provider, &p.Reference,
		&p.Status, &p.AmountMinor, &p.RawPayload, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, false, nil
		}
		return domain.Payment{}, false, fmt.Errorf("select payment: %w", err)
	}

	return p, true, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
