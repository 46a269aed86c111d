package producer

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/pkg/config"
	"github.com/shubham-shewale/price-widget/pkg/models"
	"github.com/shubham-shewale/price-widget/pkg/store"
)

// Producer consumes price ticks and keeps the shared display record current.
// It is the only writer of the store.
type Producer struct {
	logger     Logger
	reader     KafkaReader
	writer     store.Writer
	schema     models.Schema
	format     *Formatter
	symbol     string
	numWorkers int
}

func NewProducer(cfg *config.Config, logger Logger, reader KafkaReader, writer store.Writer) (*Producer, error) {
	format, err := NewFormatter(cfg.Producer.PriceDecimals, cfg.Producer.Timezone, cfg.Producer.TimeLayout)
	if err != nil {
		return nil, err
	}
	if err := cfg.Widget.Schema.Validate(); err != nil {
		return nil, err
	}
	numWorkers := cfg.Producer.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Producer{
		logger:     logger,
		reader:     reader,
		writer:     writer,
		schema:     cfg.Widget.Schema,
		format:     format,
		symbol:     strings.ToUpper(strings.TrimSpace(cfg.Producer.Symbol)),
		numWorkers: numWorkers,
	}, nil
}

func (p *Producer) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Producer Started", zap.Int("workers", p.numWorkers), zap.String("symbol", p.symbol))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Deterministic Sharding: Same symbol always goes to same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// Latest is better than all: a newer tick repaints the widget anyway
				p.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping producer...")

	// Workers' channels may only close once nothing can send on them
	<-readerDone
	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Producer) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background() // Background context prevents cancellation mid-write

	// Local state for deduplication (only works because of deterministic sharding)
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		var update models.PriceUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}

		symbol := strings.ToUpper(update.Symbol)
		if p.symbol != "" && symbol != p.symbol {
			p.logger.Debug("Ignoring symbol", zap.String("symbol", update.Symbol))
			continue
		}

		if update.SeqID <= lastSeq[symbol] {
			p.logger.Debug("Skipping duplicate update", zap.String("symbol", symbol), zap.Int64("seq_id", update.SeqID))
			continue
		}

		rec := p.format.Record(update)
		if err := store.WriteRecord(ctx, p.writer, p.schema, rec); err != nil {
			p.logger.Error("Store Write Error", zap.Error(err), zap.String("symbol", symbol))
			continue
		}

		p.logger.Debug("Processed",
			zap.String("symbol", symbol),
			zap.Int("worker_id", id),
			zap.String("price_text", rec.PriceText.Value),
		)
		lastSeq[symbol] = update.SeqID
	}
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
