package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// reconcileStore выполняет транзакцию сверки платежа в одной SQL-транзакции:
// блокировка строки заказа, аудиторская запись платежа, условное списание
// склада по каждой позиции и перевод статуса в paid. Конкурентные дубли
// сериализуются на row lock, проигравший видит уже применённый платёж.
type reconcileStore struct {
	db *sql.DB
}

// NewReconciliationStore создаёт PostgreSQL-реализацию транзакции сверки.
func NewReconciliationStore(store *Store) domain.ReconciliationStore {
	return &reconcileStore{db: store.DB()}
}

// MarkOrderPaid — см. domain.ReconciliationStore.
func (s *reconcileStore) MarkOrderPaid(input domain.PaymentApplication) (domain.ReconcileOutcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReconcileOutcome{}, fmt.Errorf("begin tx: %w", err)
	}

	outcome, err := s.markOrderPaidTx(ctx, tx, input)
	if err != nil {
		_ = tx.Rollback()
		return domain.ReconcileOutcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.ReconcileOutcome{}, fmt.Errorf("commit reconcile: %w", err)
	}

	return outcome, nil
}

func (s *reconcileStore) markOrderPaidTx(ctx context.Context, tx *sql.Tx, input domain.PaymentApplication) (domain.ReconcileOutcome, error) {
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT status
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, input.OrderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReconcileOutcome{}, domain.ErrOrderNotFound
		}
		return domain.ReconcileOutcome{}, fmt.Errorf("lock order: %w", err)
	}

	// Дубль уведомления: платёж с этим reference уже применён ранее.
	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM payments WHERE reference = $1 AND provider = $2
	`, input.Reference, domain.ProviderPaystack).Scan(&existingID)
	if err == nil {
		return domain.ReconcileOutcome{Applied: true, AlreadyPaid: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ReconcileOutcome{}, fmt.Errorf("check payment: %w", err)
	}

	switch domain.OrderStatus(status) {
	case domain.OrderStatusPaid:
		return domain.ReconcileOutcome{Applied: true, AlreadyPaid: true}, nil
	case domain.OrderStatusFailed:
		// Повтор подтверждения по заказу, уже переведённому в failed:
		// ни заказ, ни склад не трогаются.
		return domain.ReconcileOutcome{AlreadyFailed: true}, nil
	case domain.OrderStatusPending:
	default:
		return domain.ReconcileOutcome{}, domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, provider, reference, status, amount_minor, raw_payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, uuid.NewString(), input.OrderID, domain.ProviderPaystack, input.Reference,
		input.Status, input.AmountMinor, input.RawPayload, now)
	if err != nil {
		if isUniqueViolation(err) {
			// Гонка на unique(reference, provider) вне row lock невозможна,
			// но нарушение читаем как уже применённый платёж.
			return domain.ReconcileOutcome{Applied: true, AlreadyPaid: true}, nil
		}
		return domain.ReconcileOutcome{}, fmt.Errorf("insert payment: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, qty FROM order_items WHERE order_id = $1 ORDER BY product_id
	`, input.OrderID)
	if err != nil {
		return domain.ReconcileOutcome{}, fmt.Errorf("load order items: %w", err)
	}

	type line struct {
		productID int64
		qty       int32
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return domain.ReconcileOutcome{}, fmt.Errorf("scan order item: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return domain.ReconcileOutcome{}, fmt.Errorf("iterate order items: %w", err)
	}
	rows.Close()

	// Условное списание: UPDATE затрагивает строку только при достаточном
	// остатке. Нулевой rows affected означает нехватку, вся транзакция
	// откатывается вызывающим.
	for _, l := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET inventory = inventory - $1,
			    updated_at = $2
			WHERE id = $3
			  AND inventory >= $1
		`, l.qty, now, l.productID)
		if err != nil {
			return domain.ReconcileOutcome{}, fmt.Errorf("decrement inventory: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.ReconcileOutcome{}, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ReconcileOutcome{}, domain.ErrInventoryUnavailable
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
	`, string(domain.OrderStatusPaid), now, input.OrderID); err != nil {
		return domain.ReconcileOutcome{}, fmt.Errorf("mark order paid: %w", err)
	}

	return domain.ReconcileOutcome{Applied: true}, nil
}

var _ domain.ReconciliationStore = (*reconcileStore)(nil)
