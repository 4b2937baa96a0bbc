package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status — состояние компонента либо сервиса в целом.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse: unhealthy > degraded > healthy.
func (s Status) worse(other Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[other] > rank[s] {
		return other
	}
	return s
}

// Check — результат одной проверки (хранилище, провайдер платежей и т.п.).
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Checker выполняет проверку одного компонента сервиса.
type Checker interface {
	Check() Check
}

// Response — тело ответа /healthz.
type Response struct {
	Status        Status    `json:"status"`
	Version       string    `json:"version,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
	Checks        []Check   `json:"checks,omitempty"`
}

// Handler отдаёт /healthz и /readyz. Проверки регистрируются при старте
// приложения: как минимум storage, при настроенном Paystack — провайдер.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startedAt time.Time
}

// NewHandler создаёт handler без проверок. version попадает в ответ как есть.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startedAt: time.Now(),
	}
}

// RegisterChecker добавляет проверку компонента. Повторная регистрация
// с тем же именем заменяет предыдущую.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// evaluate прогоняет все проверки и сводит общий статус к худшему из них.
func (h *Handler) evaluate() (Status, []Check) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		names = append(names, name)
		checkers[name] = checker
	}
	h.mu.RUnlock()
	sort.Strings(names)

	overall := StatusHealthy
	checks := make([]Check, 0, len(names))
	for _, name := range names {
		check := checkers[name].Check()
		if check.Name == "" {
			check.Name = name
		}
		checks = append(checks, check)
		overall = overall.worse(check.Status)
	}

	return overall, checks
}

// ServeHTTP отвечает полным отчётом: 200 для healthy/degraded, 503 для
// unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	overall, checks := h.evaluate()

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
	})
}

// ReadinessHandler отвечает коротко: ready, пока ни одна проверка
// не вернула unhealthy. degraded считается пригодным для трафика.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	overall, _ := h.evaluate()
	if overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler всегда отвечает 200: процесс жив, пока отвечает.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SimpleChecker оборачивает функцию в Checker и замеряет её длительность.
type SimpleChecker struct {
	name string
	fn   func() error
}

// NewSimpleChecker создаёт проверку из функции. Ненулевая ошибка
// означает unhealthy, её текст попадает в message.
func NewSimpleChecker(name string, fn func() error) *SimpleChecker {
	return &SimpleChecker{name: name, fn: fn}
}

// Check выполняет проверку.
func (c *SimpleChecker) Check() Check {
	started := time.Now()
	err := c.fn()
	elapsed := time.Since(started)

	check := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

var _ Checker = (*SimpleChecker)(nil)
