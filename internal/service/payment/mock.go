package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockProvider — конфигурируемая заглушка PaymentProvider для тестов
// и локальной разработки без реального Paystack.
type MockProvider struct {
	mu sync.Mutex

	InitializeErr error
	VerifyErr     error
	// VerifyStatus возвращается для любого reference, если в Verifications
	// нет явного ответа.
	VerifyStatus  string
	Verifications map[string]domain.ProviderVerification

	InitializeCalls int
	VerifyCalls     int

	seq int
}

// NewMockProvider возвращает mock с успешным сценарием по умолчанию.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		VerifyStatus:  "success",
		Verifications: make(map[string]domain.ProviderVerification),
	}
}

// Initialize выдаёт детерминированный reference и фиктивный URL оплаты.
func (m *MockProvider) Initialize(_ context.Context, email string, amountMinor int64, _ string) (domain.ProviderTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InitializeCalls++
	if m.InitializeErr != nil {
		return domain.ProviderTransaction{}, m.InitializeErr
	}

	m.seq++
	reference := fmt.Sprintf("mock-ref-%d", m.seq)
	m.Verifications[reference] = domain.ProviderVerification{
		Reference:   reference,
		Status:      m.VerifyStatus,
		AmountMinor: amountMinor,
	}

	return domain.ProviderTransaction{
		Reference:        reference,
		AuthorizationURL: "https://checkout.example.com/pay/" + reference,
	}, nil
}

// Verify возвращает настроенный ответ и считает вызовы.
func (m *MockProvider) Verify(_ context.Context, reference string) (domain.ProviderVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.VerifyCalls++
	if m.VerifyErr != nil {
		return domain.ProviderVerification{}, m.VerifyErr
	}

	if v, ok := m.Verifications[reference]; ok {
		return v, nil
	}
	return domain.ProviderVerification{Reference: reference, Status: m.VerifyStatus}, nil
}

var _ domain.PaymentProvider = (*MockProvider)(nil)
