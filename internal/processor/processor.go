// Package taskprocessor drains the outbox: pending audit tasks are published
// to Kafka and deleted, with bounded retries on broker failure.
package taskprocessor

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"pharmago/internal/audit"
	"pharmago/internal/kafka"
	"pharmago/internal/repository"
)

type TaskProcessor struct {
	repo         repository.Tasks
	producer     *kafka.Producer
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
}

func NewTaskProcessor(repo repository.Tasks, producer *kafka.Producer, pollInterval time.Duration, limit int) *TaskProcessor {
	return &TaskProcessor{
		repo:         repo,
		producer:     producer,
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
	}
}

func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processPendingTasks(ctx)
		}
	}
}

func (p *TaskProcessor) processPendingTasks(ctx context.Context) {
	tasks, err := p.repo.GetPendingTasks(ctx, p.limit)
	if err != nil {
		log.Printf("outbox: error fetching pending tasks: %v", err)
		return
	}
	for _, task := range tasks {
		if err := p.repo.MarkTaskProcessing(ctx, task.ID); err != nil {
			log.Printf("outbox: error marking task %d processing: %v", task.ID, err)
			continue
		}

		var rec audit.Record
		if err := json.Unmarshal(task.Payload, &rec); err != nil {
			p.recordFailure(ctx, task, err)
			continue
		}
		if err := p.producer.PublishRecord(rec); err != nil {
			p.recordFailure(ctx, task, err)
			continue
		}
		if err := p.repo.DeleteTask(ctx, task.ID); err != nil {
			log.Printf("outbox: error deleting task %d after publish: %v", task.ID, err)
		}
	}
}

func (p *TaskProcessor) recordFailure(ctx context.Context, task *repository.Task, err error) {
	newAttempt := task.AttemptCount + 1
	newStatus := repository.TaskStatusFailed
	if newAttempt >= p.maxAttempts {
		newStatus = repository.TaskStatusNoAttemptsLeft
	}
	nextAttempt := time.Now().Add(p.retryDelay)
	if errUpd := p.repo.UpdateTaskFailure(ctx, task.ID, newAttempt, newStatus, nextAttempt); errUpd != nil {
		log.Printf("outbox: error updating task %d on failure: %v", task.ID, errUpd)
	}
	log.Printf("outbox: failed to publish task %d: %v", task.ID, err)
}
