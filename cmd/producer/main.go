package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/cmd/producer/internal/producer"
	"github.com/shubham-shewale/price-widget/pkg/config"
	"github.com/shubham-shewale/price-widget/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}

	dialer := &producer.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}}
	topics := producer.NewTopicCreator(logger, dialer, producer.RealClock{})
	if err := topics.Ensure(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
		// The consumer group still works once someone else creates the topic
		logger.Warn("Could not ensure topic", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 200,
		MaxBytes: 10e6,
		MaxWait:  200 * time.Millisecond,
		// Auto-commit is safe because workers dedupe by SeqID
		CommitInterval:    1,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})

	prod, err := producer.NewProducer(cfg, logger, reader, st)
	if err != nil {
		logger.Fatal("Invalid producer configuration", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		prod.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping producer...")
	cancel()
	<-done

	logger.Info("Closing Kafka Reader...")
	if err := reader.Close(); err != nil {
		logger.Error("Error closing reader", zap.Error(err))
	}

	logger.Info("Closing store...")
	if err := st.Close(); err != nil {
		logger.Error("Error closing store", zap.Error(err))
	}

	logger.Info("Producer exited cleanly")
}
