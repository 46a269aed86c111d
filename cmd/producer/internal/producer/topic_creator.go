package producer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	topicPartitions = 4
	readyAttempts   = 5
	readyBackoff    = 200 * time.Millisecond
)

// TopicCreator makes sure the tick topic exists before the consumer group joins it.
type TopicCreator struct {
	logger Logger
	dialer KafkaDialer
	clock  Clock
}

func NewTopicCreator(logger Logger, dialer KafkaDialer, clock Clock) *TopicCreator {
	return &TopicCreator{
		logger: logger,
		dialer: dialer,
		clock:  clock,
	}
}

// Ensure creates topic through the cluster controller if it is missing and waits
// until its partitions are visible.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, topic string) error {
	var conn KafkaConn
	var err error
	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if conn == nil {
		return fmt.Errorf("dial brokers %v: %w", brokers, err)
	}
	defer conn.Close()

	if tc.ready(conn, topic, 1) {
		tc.logger.Debug("Topic already present", zap.String("topic", topic))
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     topicPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		// Another producer may have won the race
		tc.logger.Info("Topic creation finished (might already exist)", zap.Error(err))
	} else {
		tc.logger.Info("Topic creation request sent", zap.String("topic", topic))
	}

	if !tc.ready(conn, topic, readyAttempts) {
		return fmt.Errorf("topic %s not ready after %d attempts", topic, readyAttempts)
	}
	return nil
}

func (tc *TopicCreator) ready(conn KafkaConn, topic string, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if i > 0 {
			tc.clock.Sleep(readyBackoff)
		}
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return true
		}
	}
	return false
}
