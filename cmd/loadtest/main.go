package main

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	headerCustomerEmail     = "X-Customer-Email"
	headerIdempotencyKey    = "Idempotency-Key"
	headerPaystackSignature = "X-Paystack-Signature"

	codeTransportError = "transport_error"

	defaultQty = 1
)

type loadMode string

const (
	modeCheckout          loadMode = "checkout"
	modeCheckoutPay       loadMode = "checkout-pay"
	modeCheckoutPayVerify loadMode = "checkout-pay-verify"
)

type config struct {
	addr          string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	mode          loadMode
	verifyRate    int
	productID     int64
	quantity      int
	webhookSecret string
	customerTag   string
	outputPath    string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

func (c *collector) record(method string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.methods[method]
	if !exists {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	scenarioStats := c.methods["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.addr, "addr", "http://localhost:8080", "HTTP API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of HTTP clients")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-pay | checkout-pay-verify")
	flag.IntVar(&cfg.verifyRate, "verify-rate", 0, "verify probability in percent for checkout-pay mode (0..100)")
	flag.Int64Var(&cfg.productID, "product-id", 1, "catalog product id used for checkout items")
	flag.IntVar(&cfg.quantity, "quantity", defaultQty, "item quantity per order")
	flag.StringVar(&cfg.webhookSecret, "webhook-secret", "", "shared secret for webhook signatures (required for pay modes)")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer email prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.productID <= 0 {
		return cfg, errors.New("product-id must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if cfg.verifyRate < 0 || cfg.verifyRate > 100 {
		return cfg, errors.New("verify-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}
	if cfg.mode != modeCheckout && strings.TrimSpace(cfg.webhookSecret) == "" {
		return cfg, errors.New("webhook-secret is required for pay modes")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeCheckoutPay:
		return modeCheckoutPay, nil
	case modeCheckoutPayVerify:
		return modeCheckoutPayVerify, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	clients := make([]*resty.Client, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		clients = append(clients, newHTTPClient(cfg))
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		client := clients[workerID%len(clients)]
		go func(cli *resty.Client) {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(cli, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(client)
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func newHTTPClient(cfg config) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(cfg.addr, "/")).
		SetTimeout(cfg.timeout).
		SetHeader("Content-Type", "application/json").
		SetRedirectPolicy(resty.NoRedirectPolicy())
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type checkoutResponse struct {
	OrderID     string `json:"order_id"`
	Reference   string `json:"reference"`
	AmountMinor int64  `json:"amount_minor"`
}

func runScenario(
	client *resty.Client,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioOK := true
	defer func() {
		code := "ok"
		if !scenarioOK {
			code = "failed"
		}
		col.record("scenario", time.Since(scenarioStart), code, scenarioOK)
	}()

	email := fmt.Sprintf("%s-%s-%d@load.example.com", cfg.customerTag, runID, index)

	order, err := callCheckout(client, cfg, email, fmt.Sprintf("lt-checkout-%s-%d", runID, index), col)
	if err != nil {
		scenarioOK = false
		return err
	}
	if order.Reference == "" {
		scenarioOK = false
		return errors.New("checkout response returned empty reference")
	}

	if cfg.mode == modeCheckout {
		return nil
	}

	if err := callWebhook(client, cfg, order, col); err != nil {
		scenarioOK = false
		return err
	}

	if cfg.mode == modeCheckoutPayVerify || (cfg.mode == modeCheckoutPay && shouldVerifyScenario(index, cfg.verifyRate)) {
		if err := callVerify(client, order.Reference, col); err != nil {
			scenarioOK = false
			return err
		}
	}

	return nil
}

func callCheckout(client *resty.Client, cfg config, email, key string, col *collector) (checkoutResponse, error) {
	var result checkoutResponse

	body := map[string]any{
		"items": []map[string]any{
			{"product_id": cfg.productID, "quantity": cfg.quantity},
		},
	}

	start := time.Now()
	resp, err := client.R().
		SetHeader(headerCustomerEmail, email).
		SetHeader(headerIdempotencyKey, key).
		SetBody(body).
		SetResult(&result).
		Post("/api/checkout")
	recordHTTP(col, "Checkout", time.Since(start), resp, err, http.StatusCreated)

	if err != nil {
		return result, err
	}
	if resp.StatusCode() != http.StatusCreated {
		return result, fmt.Errorf("checkout returned status %d", resp.StatusCode())
	}
	return result, nil
}

func callWebhook(client *resty.Client, cfg config, order checkoutResponse, col *collector) error {
	payload, err := json.Marshal(map[string]any{
		"event": "charge.success",
		"data": map[string]any{
			"reference": order.Reference,
			"status":    "success",
			"amount":    order.AmountMinor,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	mac := hmac.New(sha512.New, []byte(cfg.webhookSecret))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	start := time.Now()
	resp, respErr := client.R().
		SetHeader(headerPaystackSignature, signature).
		SetBody(payload).
		Post("/api/paystack/webhook")
	recordHTTP(col, "Webhook", time.Since(start), resp, respErr, http.StatusOK)

	if respErr != nil {
		return respErr
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// callVerify ожидает redirect на страницу результата; сам redirect не
// выполняется, поэтому успехом считается только 302.
func callVerify(client *resty.Client, reference string, col *collector) error {
	start := time.Now()
	resp, err := client.R().
		SetQueryParam("reference", reference).
		Get("/api/paystack/verify")
	latency := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	// NoRedirectPolicy возвращает ошибку вместе с первым ответом.
	if status == http.StatusFound {
		col.record("Verify", latency, strconv.Itoa(status), true)
		return nil
	}
	recordHTTP(col, "Verify", latency, resp, err, http.StatusFound)

	if err != nil {
		return err
	}
	return fmt.Errorf("verify returned status %d", status)
}

func recordHTTP(col *collector, method string, latency time.Duration, resp *resty.Response, err error, wantStatus int) {
	if err != nil && (resp == nil || resp.StatusCode() == 0) {
		col.record(method, latency, codeTransportError, false)
		return
	}

	status := resp.StatusCode()
	col.record(method, latency, strconv.Itoa(status), status == wantStatus)
}

func shouldVerifyScenario(index, verifyRate int) bool {
	if verifyRate <= 0 {
		return false
	}
	if verifyRate >= 100 {
		return true
	}
	return index%100 < verifyRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
