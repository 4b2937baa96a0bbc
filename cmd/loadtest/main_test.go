package main

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testWebhookSecret = "lt-secret"

// newCheckoutTestServer поднимает фейковый checkout API: создание заказа,
// webhook с проверкой подписи и verify с redirect.
func newCheckoutTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	var orderSeq int64
	mux := http.NewServeMux()

	mux.HandleFunc("/api/checkout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerCustomerEmail) == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Items []struct {
				ProductID int64 `json:"product_id"`
				Quantity  int   `json:"quantity"`
			} `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		id := atomic.AddInt64(&orderSeq, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order_id":     fmt.Sprintf("order-%d", id),
			"reference":    fmt.Sprintf("ref-%d", id),
			"amount_minor": 1000,
		})
	})

	mux.HandleFunc("/api/paystack/webhook", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mac := hmac.New(sha512.New, []byte(testWebhookSecret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(r.Header.Get(headerPaystackSignature))) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"received":true}`))
	})

	mux.HandleFunc("/api/paystack/verify", func(w http.ResponseWriter, r *http.Request) {
		reference := r.URL.Query().Get("reference")
		if reference == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "/checkout/result?reference="+reference+"&status=paid", http.StatusFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    loadMode
		wantErr string
	}{
		{name: "checkout", input: "checkout", want: modeCheckout},
		{name: "checkout-pay", input: "checkout-pay", want: modeCheckoutPay},
		{name: "checkout-pay-verify", input: "checkout-pay-verify", want: modeCheckoutPayVerify},
		{name: "unsupported", input: "bad", wantErr: "unsupported mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMode(tc.input)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected mode: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-addr=http://127.0.0.1:8080",
			"-mode=checkout-pay",
			"-total=12",
			"-concurrency=3",
			"-connections=2",
			"-timeout=2s",
			"-verify-rate=10",
			"-product-id=7",
			"-quantity=2",
			"-webhook-secret=secret",
			"-customer-tag=stage",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.totalSet {
				t.Fatalf("expected totalSet=true")
			}
			if cfg.duration != 0 {
				t.Fatalf("expected zero duration, got %s", cfg.duration)
			}
			if cfg.mode != modeCheckoutPay {
				t.Fatalf("unexpected mode: %s", cfg.mode)
			}
			if cfg.total != 12 || cfg.concurrency != 3 || cfg.connections != 2 {
				t.Fatalf("unexpected numeric config: %+v", cfg)
			}
			if cfg.productID != 7 || cfg.quantity != 2 {
				t.Fatalf("unexpected item config: %+v", cfg)
			}
			if cfg.timeout != 2*time.Second {
				t.Fatalf("unexpected timeout: %s", cfg.timeout)
			}
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-duration=3s",
			"-concurrency=2",
			"-connections=1",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.duration != 3*time.Second {
				t.Fatalf("unexpected duration: %s", cfg.duration)
			}
			if cfg.totalSet {
				t.Fatalf("expected totalSet=false when -total was not provided")
			}
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "parse duration"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "invalid verify rate", args: []string{"-verify-rate=101"}, wantErr: "verify-rate must be between 0 and 100"},
			{name: "empty total", args: []string{"-duration=0s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "invalid product id", args: []string{"-product-id=0"}, wantErr: "product-id must be > 0"},
			{name: "missing webhook secret", args: []string{"-mode=checkout-pay"}, wantErr: "webhook-secret is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
						t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
					}
				})
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, "ok", true)
	c.record("scenario", 20*time.Millisecond, "failed", false)
	c.record("Checkout", 15*time.Millisecond, "201", true)

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS <= 0 {
		t.Fatalf("expected positive rps, got %f", r.RPS)
	}

	checkoutStats, ok := r.Methods["Checkout"]
	if !ok {
		t.Fatalf("expected Checkout stats in report")
	}
	if checkoutStats.Codes["201"] != 1 {
		t.Fatalf("unexpected checkout codes: %+v", checkoutStats.Codes)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.P50 <= 0 || summary.P95 <= 0 || summary.Max != 40 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if p := percentile(values, 95); p <= 0 {
		t.Fatalf("unexpected percentile: %f", p)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}

	if shouldVerifyScenario(5, 0) {
		t.Fatal("zero rate must never verify")
	}
	if !shouldVerifyScenario(5, 100) {
		t.Fatal("full rate must always verify")
	}
	if !shouldVerifyScenario(5, 10) || shouldVerifyScenario(15, 10) {
		t.Fatal("partial rate must follow index modulo")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
}

func TestHTTPCallsAndRunScenario(t *testing.T) {
	server := newCheckoutTestServer(t)

	cfg := config{
		addr:          server.URL,
		timeout:       2 * time.Second,
		mode:          modeCheckoutPayVerify,
		productID:     1,
		quantity:      1,
		webhookSecret: testWebhookSecret,
		customerTag:   "load",
	}
	client := newHTTPClient(cfg)
	c := newCollector()

	order, err := callCheckout(client, cfg, "load-1@load.example.com", "key-1", c)
	if err != nil {
		t.Fatalf("callCheckout failed: %v", err)
	}
	if order.Reference == "" || order.OrderID == "" {
		t.Fatalf("unexpected checkout response: %+v", order)
	}

	if err := callWebhook(client, cfg, order, c); err != nil {
		t.Fatalf("callWebhook failed: %v", err)
	}
	if err := callVerify(client, order.Reference, c); err != nil {
		t.Fatalf("callVerify failed: %v", err)
	}

	if err := runScenario(client, cfg, 1, "run-1", c); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}

	r := c.buildReport(time.Now(), time.Second)
	for _, method := range []string{"Checkout", "Webhook", "Verify"} {
		if _, ok := r.Methods[method]; !ok {
			t.Fatalf("expected %s stats in report", method)
		}
	}

	// Неверный секрет приводит к отказу webhook и провалу сценария.
	badCfg := cfg
	badCfg.webhookSecret = "wrong-secret"
	if err := runScenario(client, badCfg, 2, "run-2", c); err == nil {
		t.Fatal("expected scenario failure for bad webhook signature")
	}
}

func TestRunScenario_CheckoutFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config{
		addr:        server.URL,
		timeout:     time.Second,
		mode:        modeCheckout,
		productID:   1,
		quantity:    1,
		customerTag: "load",
	}
	c := newCollector()

	if err := runScenario(newHTTPClient(cfg), cfg, 1, "run-1", c); err == nil {
		t.Fatal("expected scenario failure for 500 response")
	}
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			"scenario": {Calls: 2, Success: 2},
			"Checkout": {Calls: 2, Success: 2},
		},
	}

	out := captureStdout(t, func() {
		printReport(r, config{mode: modeCheckout, total: 2})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "Checkout") {
		t.Fatalf("expected method section, got: %s", out)
	}
}

func TestMainSmoke(t *testing.T) {
	server := newCheckoutTestServer(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "main-report.json")

	withCLIArgs(t, []string{
		"-addr=" + server.URL,
		"-mode=checkout",
		"-total=5",
		"-concurrency=2",
		"-connections=1",
		"-timeout=2s",
		"-output=" + outPath,
	}, func() {
		main()
	})

	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected report file from main: %v", err)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
