package producer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/cmd/producer/internal/producer"
	"github.com/shubham-shewale/price-widget/cmd/producer/internal/testutils"
	"github.com/shubham-shewale/price-widget/pkg/config"
	"github.com/shubham-shewale/price-widget/pkg/models"
)

func testConfig(workers int) *config.Config {
	cfg := &config.Config{}
	cfg.Producer.NumWorkers = workers
	cfg.Producer.Timezone = "UTC"
	cfg.Producer.TimeLayout = "15:04"
	cfg.Widget.Schema = models.DefaultSchema()
	return cfg
}

func messages(updates ...models.PriceUpdate) []kafka.Message {
	var msgs []kafka.Message
	for _, u := range updates {
		val, _ := json.Marshal(u)
		msgs = append(msgs, kafka.Message{Key: []byte(u.Symbol), Value: val})
	}
	return msgs
}

// runUntil runs the producer until want writes landed or the deadline passes.
func runUntil(t *testing.T, p *producer.Producer, spy *testutils.SpyWriter, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for spy.WriteCount() < want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// Give stragglers a moment so over-counting is caught too
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
}

func TestProducer_DeduplicatesBySeqID(t *testing.T) {
	reader := &testutils.MockKafkaReader{Messages: messages(
		models.PriceUpdate{Symbol: "AAPL", Price: decimal.NewFromInt(100), SeqID: 1},
		models.PriceUpdate{Symbol: "AAPL", Price: decimal.NewFromInt(100), SeqID: 1},
		models.PriceUpdate{Symbol: "AAPL", Price: decimal.NewFromInt(101), SeqID: 2},
		models.PriceUpdate{Symbol: "TSLA", Price: decimal.NewFromInt(900), SeqID: 1},
	)}
	spy := testutils.NewSpyWriter()

	p, err := producer.NewProducer(testConfig(2), zap.NewNop(), reader, spy)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	runUntil(t, p, spy, 3)

	if got := spy.WriteCount(); got != 3 {
		t.Errorf("Expected 3 writes, got %d", got)
	}
}

func TestProducer_FiltersBySymbol(t *testing.T) {
	reader := &testutils.MockKafkaReader{Messages: messages(
		models.PriceUpdate{Symbol: "TSLA", Price: decimal.NewFromInt(900), SeqID: 1},
		models.PriceUpdate{Symbol: "btc", Price: decimal.NewFromInt(1234000), SeqID: 7},
	)}
	spy := testutils.NewSpyWriter()

	cfg := testConfig(1)
	cfg.Producer.Symbol = "BTC"
	p, err := producer.NewProducer(cfg, zap.NewNop(), reader, spy)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	runUntil(t, p, spy, 1)

	if got := spy.WriteCount(); got != 1 {
		t.Fatalf("Expected 1 write, got %d", got)
	}
	if v, _ := spy.Get(context.Background(), models.DefaultPriceKey); v != "1,234,000" {
		t.Errorf("Expected price 1,234,000, got %q", v)
	}
}

func TestProducer_WritesBothFieldsTogether(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	reader := &testutils.MockKafkaReader{Messages: messages(
		models.PriceUpdate{Symbol: "BTC", Price: decimal.NewFromInt(42000), Timestamp: ts.UnixMicro(), SeqID: 1},
	)}
	spy := testutils.NewSpyWriter()

	p, err := producer.NewProducer(testConfig(1), zap.NewNop(), reader, spy)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	runUntil(t, p, spy, 1)

	spy.Mu.Lock()
	defer spy.Mu.Unlock()
	if len(spy.Writes) != 1 {
		t.Fatalf("Expected 1 write, got %d", len(spy.Writes))
	}
	w := spy.Writes[0]
	if w[models.DefaultPriceKey] != "42,000" || w[models.DefaultAsOfKey] != "09:30" {
		t.Errorf("Unexpected write: %v", w)
	}
}

func TestProducer_SkipsInvalidJSON(t *testing.T) {
	good, _ := json.Marshal(models.PriceUpdate{Symbol: "BTC", Price: decimal.NewFromInt(1), SeqID: 1})
	reader := &testutils.MockKafkaReader{Messages: []kafka.Message{
		{Key: []byte("BTC"), Value: []byte("{not json")},
		{Key: []byte("BTC"), Value: good},
	}}
	spy := testutils.NewSpyWriter()

	p, err := producer.NewProducer(testConfig(1), zap.NewNop(), reader, spy)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	runUntil(t, p, spy, 1)

	if got := spy.WriteCount(); got != 1 {
		t.Errorf("Expected 1 write, got %d", got)
	}
}

func TestProducer_FailedWriteDoesNotAdvanceSeq(t *testing.T) {
	// The redelivered tick must still be written after the first attempt failed
	reader := &testutils.MockKafkaReader{Messages: messages(
		models.PriceUpdate{Symbol: "BTC", Price: decimal.NewFromInt(5), SeqID: 5},
		models.PriceUpdate{Symbol: "BTC", Price: decimal.NewFromInt(5), SeqID: 5},
	)}
	spy := testutils.NewSpyWriter()
	spy.FailFirst = 1

	p, err := producer.NewProducer(testConfig(1), zap.NewNop(), reader, spy)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	runUntil(t, p, spy, 1)

	if got := spy.WriteCount(); got != 1 {
		t.Errorf("Expected 1 successful write, got %d", got)
	}
}

func TestNewProducer_RejectsBadConfig(t *testing.T) {
	cfg := testConfig(1)
	cfg.Producer.Timezone = "Not/AZone"
	if _, err := producer.NewProducer(cfg, zap.NewNop(), &testutils.MockKafkaReader{}, testutils.NewSpyWriter()); err == nil {
		t.Error("Expected error for unknown timezone")
	}

	cfg = testConfig(1)
	cfg.Widget.Schema.AsOfKey = cfg.Widget.Schema.PriceKey
	if _, err := producer.NewProducer(cfg, zap.NewNop(), &testutils.MockKafkaReader{}, testutils.NewSpyWriter()); err == nil {
		t.Error("Expected error for duplicate schema keys")
	}
}

func TestFormatter_Price(t *testing.T) {
	tests := []struct {
		name     string
		decimals int32
		price    decimal.Decimal
		want     string
	}{
		{"grouping", 0, decimal.NewFromInt(1234000), "1,234,000"},
		{"short", 0, decimal.NewFromInt(999), "999"},
		{"exact thousand", 0, decimal.NewFromInt(1000), "1,000"},
		{"fraction padded", 2, decimal.RequireFromString("1234.5"), "1,234.50"},
		{"rounded", 2, decimal.RequireFromString("-1234567.891"), "-1,234,567.89"},
		{"zero", 0, decimal.Zero, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := producer.NewFormatter(tt.decimals, "UTC", "")
			if err != nil {
				t.Fatalf("NewFormatter: %v", err)
			}
			if got := f.Price(tt.price); got != tt.want {
				t.Errorf("Price(%s) = %q, want %q", tt.price, got, tt.want)
			}
		})
	}
}

func TestFormatter_RecordTimezoneAndLayout(t *testing.T) {
	f, err := producer.NewFormatter(0, "Asia/Tokyo", "Jan 2 15:04")
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	ts := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)

	rec := f.Record(models.PriceUpdate{Price: decimal.NewFromInt(10), Timestamp: ts.UnixMicro()})
	if rec.AsOfText.Value != "Jan 3 00:04" {
		t.Errorf("Expected as-of in Tokyo time, got %q", rec.AsOfText.Value)
	}

	rec = f.Record(models.PriceUpdate{Price: decimal.NewFromInt(10)})
	if rec.AsOfText.Valid {
		t.Errorf("Expected absent as-of for zero timestamp, got %q", rec.AsOfText.Value)
	}
}

func TestNewFormatter_NegativeDecimals(t *testing.T) {
	if _, err := producer.NewFormatter(-1, "UTC", ""); err == nil {
		t.Error("Expected error for negative decimals")
	}
}

func TestTopicCreator_CreatesMissingTopic(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{}
	clock := &testutils.MockClock{}
	tc := producer.NewTopicCreator(zap.NewNop(), dialer, clock)

	if err := tc.Ensure(context.Background(), []string{"localhost:9092"}, "price-ticks"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(dialer.ConnSpy.CreatedTopics) != 1 || dialer.ConnSpy.CreatedTopics[0] != "price-ticks" {
		t.Errorf("Expected price-ticks to be created, got %v", dialer.ConnSpy.CreatedTopics)
	}
}

func TestTopicCreator_ExistingTopicIsLeftAlone(t *testing.T) {
	conn := &testutils.MockKafkaConn{Existing: map[string]bool{"price-ticks": true}}
	dialer := &testutils.MockKafkaDialer{ConnSpy: conn}
	tc := producer.NewTopicCreator(zap.NewNop(), dialer, &testutils.MockClock{})

	if err := tc.Ensure(context.Background(), []string{"localhost:9092"}, "price-ticks"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(conn.CreatedTopics) != 0 {
		t.Errorf("Expected no creation, got %v", conn.CreatedTopics)
	}
	if dialer.Dials != 1 {
		t.Errorf("Expected a single dial, got %d", dialer.Dials)
	}
}

func TestTopicCreator_UnreachableBrokers(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{Fail: true}
	tc := producer.NewTopicCreator(zap.NewNop(), dialer, &testutils.MockClock{})

	if err := tc.Ensure(context.Background(), []string{"a:9092", "b:9092"}, "price-ticks"); err == nil {
		t.Fatal("Expected error when no broker is reachable")
	}
	if dialer.Dials != 2 {
		t.Errorf("Expected every broker to be tried, got %d dials", dialer.Dials)
	}
}
