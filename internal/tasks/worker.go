package tasks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"log/slog"

	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

type WorkerPool struct {
	repo        repository.TaskRepo
	handlers    map[string]Handler
	logger      *slog.Logger
	workerCount int
	stop        chan struct{}
	wg          sync.WaitGroup
}

func NewWorkerPool(repo repository.TaskRepo, handlers map[string]Handler, logger *slog.Logger, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{repo: repo, handlers: handlers, logger: logger, workerCount: workerCount, stop: make(chan struct{})}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them.
func (p *WorkerPool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Info("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Info("context canceled, worker exiting", "id", id)
			return
		default:
			task, err := p.repo.FetchNext(ctx)
			if err != nil {
				p.logger.Error("fetch task", "err", err)
				time.Sleep(1 * time.Second)
				continue
			}
			if task == nil {
				// nothing to do
				time.Sleep(500 * time.Millisecond)
				continue
			}
			h, ok := p.handlers[task.Type]
			if !ok {
				task.Status = "failed"
				task.LastError = "no handler"
				_ = p.repo.MoveToDeadLetter(ctx, task)
				continue
			}
			err = h(ctx, task)
			if err == nil {
				task.Status = "done"
				_ = p.repo.UpdateTask(ctx, task)
				continue
			}
			// handler returned error
			task.Attempts++
			task.LastError = err.Error()
			if task.Attempts >= task.MaxAttempts {
				task.Status = "failed"
				if mvErr := p.repo.MoveToDeadLetter(ctx, task); mvErr != nil {
					p.logger.Error("move to dead letter", "err", mvErr)
				}
				continue
			}
			// schedule retry with backoff
			backoff := BackoffDuration(task.Attempts)
			t := time.Now().Add(backoff)
			task.NextTryAt = &t
			task.Status = "retry"
			if upErr := p.repo.UpdateTask(ctx, task); upErr != nil {
				p.logger.Error("update task for retry", "err", upErr)
			}
		}
	}
}

// Enqueue convenience helper that creates a task and persists it.
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	t := &models.Task{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}
	return p.repo.Enqueue(ctx, t)
}
