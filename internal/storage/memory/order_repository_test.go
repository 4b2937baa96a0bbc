package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func newOrder(id string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            id,
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Buyer",
		Status:        domain.OrderStatusPending,
		AmountMinor:   500,
		Items: []domain.OrderLineItem{
			{ID: "item-" + id, ProductID: 1, Qty: 5, PriceMinor: 100, TitleSnapshot: "Demo", SKUSnapshot: "sku-1", CreatedAt: now},
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	order := newOrder("order-1")

	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, stored.ID)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListByCustomer(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	order := newOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	orders, err := repo.ListByCustomer(order.CustomerEmail, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}

	orders, err = repo.ListByCustomer("stranger@example.com", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders for stranger, got %d", len(orders))
	}
}

func TestOrderRepository_AttachReference(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	first := newOrder("order-1")
	second := newOrder("order-2")
	if err := repo.Create(first); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(second); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.AttachReference(first.ID, "ref-1"); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	// Повторная привязка того же значения идемпотентна.
	if err := repo.AttachReference(first.ID, "ref-1"); err != nil {
		t.Fatalf("repeated attach must be idempotent: %v", err)
	}

	// Чужой reference и смена уже выставленного — конфликт.
	if err := repo.AttachReference(second.ID, "ref-1"); !errors.Is(err, domain.ErrReferenceConflict) {
		t.Fatalf("expected ErrReferenceConflict, got %v", err)
	}
	if err := repo.AttachReference(first.ID, "ref-2"); !errors.Is(err, domain.ErrReferenceConflict) {
		t.Fatalf("expected ErrReferenceConflict, got %v", err)
	}

	stored, err := repo.GetByReference("ref-1")
	if err != nil {
		t.Fatalf("get by reference failed: %v", err)
	}
	if stored.ID != first.ID {
		t.Fatalf("expected order %s, got %s", first.ID, stored.ID)
	}
	if stored.ProviderReference != "ref-1" {
		t.Fatalf("expected reference ref-1, got %s", stored.ProviderReference)
	}
}

func TestOrderRepository_TransitionStatus(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	order := newOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.TransitionStatus(order.ID, domain.OrderStatusPending, domain.OrderStatusFailed); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.OrderStatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.Version != order.Version+1 {
		t.Fatalf("expected version increment, got %d", stored.Version)
	}

	// Заказ уже не pending: повтор с тем же from — конфликт версии.
	if err := repo.TransitionStatus(order.ID, domain.OrderStatusPending, domain.OrderStatusFailed); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict, got %v", err)
	}

	// Из терминального статуса переходов нет.
	if err := repo.TransitionStatus(order.ID, domain.OrderStatusFailed, domain.OrderStatusPaid); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := repo.TransitionStatus("missing", domain.OrderStatusPending, domain.OrderStatusPaid); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
