package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

// dlqEnvelopeJSON собирает DLQ-сообщение в том виде, в котором его публикует
// outbox worker: envelope с вложенным dead-letter record и исходным событием.
func dlqEnvelopeJSON(t *testing.T, orderID, eventType string) []byte {
	t.Helper()

	envelope := map[string]any{
		"id":             "outbox-1",
		"aggregate_type": "order",
		"aggregate_id":   orderID,
		"event_type":     eventType,
		"payload": map[string]any{
			"outbox_id":      "outbox-1",
			"aggregate_type": "order",
			"aggregate_id":   orderID,
			"event_type":     eventType,
			"payload": map[string]any{
				"event_type": eventType,
				"order_id":   orderID,
				"status":     "paid",
			},
			"publish_error": "kafka: timeout",
		},
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}
	return raw
}

func replayAllConfig() config {
	return config{
		sourceTopic: "checkout.dlq",
		targetTopic: "checkout.order.events",
		idleTimeout: 20 * time.Millisecond,
	}
}

func TestSplitList(t *testing.T) {
	items := splitList(" broker-1:9092, ,broker-2:9092 ")
	if len(items) != 2 {
		t.Fatalf("unexpected items count: got=%d want=2", len(items))
	}
	if items[0] != "broker-1:9092" || items[1] != "broker-2:9092" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if got := splitList("  ,  "); len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}

func TestConfigWantsEvent(t *testing.T) {
	open := config{}
	if !open.wantsEvent("order.paid") || !open.wantsEvent("whatever") {
		t.Fatal("empty filter must pass everything")
	}

	filtered := config{eventTypes: map[string]struct{}{"order.paid": {}, "order.failed": {}}}
	if !filtered.wantsEvent("order.paid") {
		t.Fatal("expected order.paid to pass the filter")
	}
	if filtered.wantsEvent("order.created") {
		t.Fatal("expected order.created to be filtered out")
	}
}

func TestBuildReplay_DeadLetterRecord(t *testing.T) {
	message := &sarama.ConsumerMessage{Value: dlqEnvelopeJSON(t, "order-1", "order.paid")}

	got, eventType, ok, err := buildReplay(message, replayAllConfig())
	if err != nil {
		t.Fatalf("buildReplay failed: %v", err)
	}
	if !ok {
		t.Fatal("expected replay candidate")
	}
	if eventType != "order.paid" {
		t.Fatalf("unexpected event type: %s", eventType)
	}
	if got.topic != "checkout.order.events" {
		t.Fatalf("unexpected topic: %s", got.topic)
	}
	if got.key != "order-1" {
		t.Fatalf("unexpected key: %s", got.key)
	}

	var replay replayEnvelope
	if err := json.Unmarshal(got.value, &replay); err != nil {
		t.Fatalf("decode replay envelope failed: %v", err)
	}
	if replay.EventType != "order.paid" {
		t.Fatalf("unexpected replay event type: %s", replay.EventType)
	}
	if replay.AggregateID != "order-1" {
		t.Fatalf("unexpected aggregate id: %s", replay.AggregateID)
	}
	if replay.PublishedAt.IsZero() {
		t.Fatal("published_at must be set")
	}
}

func TestBuildReplay_EventTypeFilter(t *testing.T) {
	cfg := replayAllConfig()
	cfg.eventTypes = map[string]struct{}{"order.failed": {}}

	message := &sarama.ConsumerMessage{Value: dlqEnvelopeJSON(t, "order-1", "order.paid")}

	_, eventType, ok, err := buildReplay(message, cfg)
	if err != nil {
		t.Fatalf("buildReplay failed: %v", err)
	}
	if ok {
		t.Fatal("expected order.paid to be filtered out")
	}
	if eventType != "order.paid" {
		t.Fatalf("filtered event must still report its type, got %q", eventType)
	}
}

func TestBuildReplay_MissingNestedPayload(t *testing.T) {
	envelope := map[string]any{
		"id":             "outbox-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     "order.paid",
		"payload": map[string]any{
			"outbox_id":      "outbox-1",
			"aggregate_type": "order",
			"aggregate_id":   "order-1",
			"event_type":     "order.paid",
			// вложенный payload опущен, чтобы сработала ветка валидации
		},
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}

	_, _, ok, err := buildReplay(&sarama.ConsumerMessage{Value: raw}, replayAllConfig())
	if err == nil {
		t.Fatal("expected error for missing nested payload")
	}
	if ok {
		t.Fatal("expected no replay candidate")
	}
}

func TestBuildReplay_UnknownPayload(t *testing.T) {
	message := &sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}

	_, _, ok, err := buildReplay(message, replayAllConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected message to be skipped")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("unexpected first non-empty value: %q", got)
	}
	if got := firstNonEmpty("", " "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestReadConfig_FromFlags(t *testing.T) {
	withFlagArgs(t, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=checkout.dlq",
		"-target-topic=checkout.order.events",
		"-event-types=order.paid,order.failed",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, func() {
		cfg, err := readConfig()
		if err != nil {
			t.Fatalf("readConfig failed: %v", err)
		}
		if len(cfg.brokers) != 2 {
			t.Fatalf("unexpected brokers count: %d", len(cfg.brokers))
		}
		if cfg.limit != 10 {
			t.Fatalf("unexpected limit: %d", cfg.limit)
		}
		if !cfg.execute {
			t.Fatal("expected execute=true")
		}
		if !cfg.fromNewest {
			t.Fatal("expected fromNewest=true")
		}
		if cfg.idleTimeout.Seconds() != 3 {
			t.Fatalf("unexpected idle-timeout: %s", cfg.idleTimeout)
		}
		if len(cfg.eventTypes) != 2 || !cfg.wantsEvent("order.failed") || cfg.wantsEvent("order.created") {
			t.Fatalf("unexpected event type filter: %+v", cfg.eventTypes)
		}
	})
}

func TestReadConfig_DefaultEventTypes(t *testing.T) {
	withFlagArgs(t, []string{"-brokers=broker:9092"}, func() {
		cfg, err := readConfig()
		if err != nil {
			t.Fatalf("readConfig failed: %v", err)
		}
		for _, eventType := range []string{"order.created", "order.paid", "order.failed", "order.retried"} {
			if !cfg.wantsEvent(eventType) {
				t.Fatalf("expected %s in the default filter", eventType)
			}
		}
		if cfg.wantsEvent("payment.settled") {
			t.Fatal("expected unknown event type to be filtered out by default")
		}
	})
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	withFlagArgs(t, []string{"-brokers="}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "kafka brokers are required") {
			t.Fatalf("expected brokers validation error, got: %v", err)
		}
	})

	withFlagArgs(t, []string{"-brokers=broker:9092", "-source-topic="}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "source-topic is required") {
			t.Fatalf("expected source-topic validation error, got: %v", err)
		}
	})

	withFlagArgs(t, []string{"-brokers=broker:9092", "-target-topic="}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "target-topic is required") {
			t.Fatalf("expected target-topic validation error, got: %v", err)
		}
	})

	withFlagArgs(t, []string{"-brokers=broker:9092", "-limit=0"}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "limit must be > 0") {
			t.Fatalf("expected limit validation error, got: %v", err)
		}
	})

	withFlagArgs(t, []string{"-brokers=broker:9092", "-idle-timeout=0s"}, func() {
		_, err := readConfig()
		if err == nil || !strings.Contains(err.Error(), "idle-timeout must be > 0") {
			t.Fatalf("expected idle-timeout validation error, got: %v", err)
		}
	})
}

func TestPublishReplay(t *testing.T) {
	if err := publishReplay(nil, replayMessage{}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &stubReplayProducer{}
	err := publishReplay(producer, replayMessage{topic: "topic", key: "key", value: []byte(`{"x":1}`)})
	if err != nil {
		t.Fatalf("publishReplay failed: %v", err)
	}
	if producer.calls != 1 {
		t.Fatalf("unexpected producer calls: %d", producer.calls)
	}
	if producer.lastMsg == nil || producer.lastMsg.Topic != "topic" {
		t.Fatalf("unexpected last message: %+v", producer.lastMsg)
	}

	producer.sendErr = errors.New("send failed")
	err = publishReplay(producer, replayMessage{topic: "topic", key: "key", value: []byte(`{"x":1}`)})
	if err == nil {
		t.Fatal("expected publishReplay error")
	}
}

func TestScanPartition_DryRun(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqEnvelopeJSON(t, "order-1", "order.paid"),
			}}),
		},
	}

	r := &replayer{cfg: replayAllConfig(), client: client, consumer: consumer}

	stats, err := r.scanPartition(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("scanPartition failed: %v", err)
	}
	if stats.scanned != 1 || stats.replayed != 1 || stats.skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.byType["order.paid"] != 1 {
		t.Fatalf("expected per-type count for order.paid, got %+v", stats.byType)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 0 {
		t.Fatalf("unexpected consume calls: %+v", consumer.calls)
	}
}

func TestScanPartition_Execute(t *testing.T) {
	client := &stubOffsetClient{
		offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqEnvelopeJSON(t, "order-1", "order.paid"),
			}}),
		},
	}
	producer := &stubReplayProducer{}

	cfg := replayAllConfig()
	cfg.execute = true
	r := &replayer{cfg: cfg, client: client, consumer: consumer, producer: producer}

	stats, err := r.scanPartition(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("scanPartition failed: %v", err)
	}
	if stats.replayed != 1 {
		t.Fatalf("expected replayed=1, got %+v", stats)
	}
	if producer.calls != 1 {
		t.Fatalf("expected one producer call, got %d", producer.calls)
	}
}

func TestScanPartition_FilteredEventCountsAsSkipped(t *testing.T) {
	client := &stubOffsetClient{
		offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqEnvelopeJSON(t, "order-1", "order.created"),
			}}),
		},
	}

	cfg := replayAllConfig()
	cfg.eventTypes = map[string]struct{}{"order.paid": {}}
	r := &replayer{cfg: cfg, client: client, consumer: consumer}

	stats, err := r.scanPartition(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("scanPartition failed: %v", err)
	}
	if stats.scanned != 1 || stats.replayed != 0 || stats.skipped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestScanPartition_ErrorBranches(t *testing.T) {
	cfg := replayAllConfig()
	cfg.execute = true

	clientOffsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	r := &replayer{cfg: cfg, client: clientOffsetErr, consumer: &stubPartitionConsumerSource{}, producer: &stubReplayProducer{}}
	if _, err := r.scanPartition(context.Background(), 0, 1); err == nil {
		t.Fatal("expected offset error")
	}

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	r = &replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumeErr: errors.New("consume")}, producer: &stubReplayProducer{}}
	if _, err := r.scanPartition(context.Background(), 0, 1); err == nil {
		t.Fatal("expected consume error")
	}

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	close(pcWithErr.errors)
	r = &replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}, producer: &stubReplayProducer{}}
	if _, err := r.scanPartition(context.Background(), 0, 1); err == nil {
		t.Fatal("expected consumer error branch")
	}
	close(pcWithErr.messages)

	pcBadPayload := closedPartitionConsumer([]*sarama.ConsumerMessage{{
		Partition: 0,
		Offset:    0,
		Value:     []byte(`{"id":"x","payload":"not-an-object"}`),
	}})
	r = &replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcBadPayload}}, producer: &stubReplayProducer{}}
	stats, err := r.scanPartition(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("unexpected bad-payload error: %v", err)
	}
	if stats.skipped != 1 {
		t.Fatalf("expected skipped=1, got %+v", stats)
	}

	pcOK := closedPartitionConsumer([]*sarama.ConsumerMessage{{
		Partition: 0,
		Offset:    0,
		Value:     dlqEnvelopeJSON(t, "order-1", "order.paid"),
	}})
	producer := &stubReplayProducer{sendErr: errors.New("send fail")}
	r = &replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcOK}}, producer: producer}
	if _, err := r.scanPartition(context.Background(), 0, 1); err == nil {
		t.Fatal("expected producer send error")
	}
}

func TestScanPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	cfg := replayAllConfig()
	cfg.idleTimeout = 10 * time.Millisecond

	idleConsumer := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	r := &replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idleConsumer}}}

	stats, err := r.scanPartition(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("unexpected idle-timeout error: %v", err)
	}
	if stats.scanned != 0 {
		t.Fatalf("expected scanned=0, got %+v", stats)
	}
	close(idleConsumer.messages)
	close(idleConsumer.errors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	canceledPC := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	r = &replayer{cfg: cfg, client: client, consumer: &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: canceledPC}}}
	if _, err := r.scanPartition(ctx, 0, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	close(canceledPC.messages)
	close(canceledPC.errors)
}

func TestReplayerRun(t *testing.T) {
	cfg := replayAllConfig()
	cfg.limit = 1

	r := &replayer{cfg: cfg}
	if err := r.run(context.Background()); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqEnvelopeJSON(t, "order-1", "order.paid"),
			}}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 2,
				Offset:    0,
				Value:     dlqEnvelopeJSON(t, "order-2", "order.paid"),
			}}),
		},
	}

	r = &replayer{cfg: cfg, client: client, consumer: consumer}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(consumer.calls) != 1 {
		t.Fatalf("expected one partition due limit=1, got calls=%d", len(consumer.calls))
	}
	if consumer.calls[0].partition != 0 {
		t.Fatalf("expected first sorted partition=0, got %d", consumer.calls[0].partition)
	}

	executeCfg := cfg
	executeCfg.execute = true
	r = &replayer{cfg: executeCfg, client: client, consumer: consumer}
	if err := r.run(context.Background()); err == nil {
		t.Fatal("expected execute mode to require producer")
	}

	r = &replayer{cfg: cfg, client: &stubOffsetClient{partitions: nil}, consumer: consumer}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	defer func() { newReplayDependencies = oldDeps }()

	cfg := replayAllConfig()
	cfg.limit = 1

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqEnvelopeJSON(t, "order-1", "order.paid"),
			}}),
		},
	}
	producer := &stubReplayProducer{}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !consumer.closed || !producer.closed {
		t.Fatalf("expected all deps to be closed: client=%v consumer=%v producer=%v", client.closed, consumer.closed, producer.closed)
	}
}

func TestMain_SuccessWithStubbedDeps(t *testing.T) {
	oldDeps := newReplayDependencies
	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	defer func() {
		newReplayDependencies = oldDeps
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqEnvelopeJSON(t, "order-1", "order.paid"),
			}}),
		},
	}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, nil, nil
	}

	os.Args = []string{"dlq-reprocess", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	main()
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"dlq-reprocess"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
