// Package audit records order-lifecycle events. Records are batched by a
// worker pool and handed to pluggable processors; the interesting one writes
// them to the outbox table that feeds Kafka.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"
)

type Record struct {
	Timestamp time.Time `json:"timestamp"`
	OrderID   string    `json:"order_id,omitempty"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Request   string    `json:"request,omitempty"`
	Message   string    `json:"message"`
}

type PoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

type Processor interface {
	Process(batch []Record) error
}

// StdoutProcessor prints records, optionally only those whose message
// contains Filter.
type StdoutProcessor struct {
	Filter string
}

func (p *StdoutProcessor) Process(batch []Record) error {
	for _, rec := range batch {
		if p.Filter != "" &&
			!strings.Contains(strings.ToLower(rec.Message), strings.ToLower(p.Filter)) {
			continue
		}
		log.Printf("audit: %s | order=%s | %s -> %s | %s",
			rec.Timestamp.Format(time.RFC3339), rec.OrderID, rec.OldStatus, rec.NewStatus, rec.Message)
	}
	return nil
}

// TaskCreator is the outbox write side, satisfied by the task repository.
type TaskCreator interface {
	CreateTask(ctx context.Context, payload []byte) error
}

// OutboxProcessor persists each record as a pending outbox task; the task
// processor later publishes them to Kafka.
type OutboxProcessor struct {
	Tasks TaskCreator
}

func (p *OutboxProcessor) Process(batch []Record) error {
	ctx := context.Background()
	for _, rec := range batch {
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := p.Tasks.CreateTask(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

type WorkerPool struct {
	inputCh    chan Record
	processors []Processor
	batchSize  int
	timeout    time.Duration

	wg sync.WaitGroup
}

func NewWorkerPool(cfg PoolConfig, processors ...Processor) *WorkerPool {
	return &WorkerPool{
		inputCh:    make(chan Record, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
	}
}

func (p *WorkerPool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

func (p *WorkerPool) worker(ctx context.Context) {
	var batch []Record
	timer := time.NewTimer(p.timeout)
	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				p.processBatch(batch)
			}
			return
		case rec := <-p.inputCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				if !timer.Stop() {
					<-timer.C
				}
				p.processBatch(batch)
				batch = nil
				timer.Reset(p.timeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

func (p *WorkerPool) processBatch(batch []Record) {
	for _, proc := range p.processors {
		if err := proc.Process(batch); err != nil {
			log.Printf("audit: batch processing error: %v", err)
		}
	}
}

// Log enqueues a record, dropping it if the channel is saturated; audit must
// never block a request.
func (p *WorkerPool) Log(record Record) {
	select {
	case p.inputCh <- record:
	default:
		log.Println("audit: channel full, dropping record")
	}
}

func (p *WorkerPool) Shutdown(cancel context.CancelFunc) {
	cancel()
	p.wg.Wait()
}
