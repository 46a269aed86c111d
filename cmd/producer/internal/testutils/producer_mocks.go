package testutils

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/price-widget/cmd/producer/internal/producer"
	"github.com/shubham-shewale/price-widget/pkg/store"
)

type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Closed simulates a closed connection or end of stream
	Closed bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}

	if m.Index >= len(m.Messages) {
		// Returning DeadlineExceeded is a clean way to stop the producer loop in tests
		return kafka.Message{}, context.DeadlineExceeded
	}

	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// SpyWriter wraps a MemoryStore and records every atomic write
type SpyWriter struct {
	*store.MemoryStore

	Writes []map[string]string
	// FailFirst makes the first N writes fail
	FailFirst int
	Attempts  int
	Mu        sync.Mutex
}

func NewSpyWriter() *SpyWriter {
	return &SpyWriter{MemoryStore: store.NewMemoryStore()}
}

func (s *SpyWriter) SetMany(ctx context.Context, fields map[string]string) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Attempts++
	if s.Attempts <= s.FailFirst {
		return errors.New("store unavailable")
	}
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	s.Writes = append(s.Writes, cp)
	return s.MemoryStore.SetMany(ctx, fields)
}

func (s *SpyWriter) WriteCount() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return len(s.Writes)
}

type MockClock struct {
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time        { return m.CurrentTime }
func (m *MockClock) Sleep(d time.Duration) { m.CurrentTime = m.CurrentTime.Add(d) }

type MockKafkaConn struct {
	CreatedTopics []string
	// Existing topics report partitions immediately
	Existing map[string]bool
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
		if m.Existing == nil {
			m.Existing = make(map[string]bool)
		}
		m.Existing[t.Topic] = true
	}
	return nil
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	for _, t := range topics {
		if !m.Existing[t] {
			return nil, errors.New("unknown topic")
		}
	}
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Fail    bool
	Dials   int
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (producer.KafkaConn, error) {
	m.Dials++
	if m.Fail {
		return nil, errors.New("connection refused")
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
