package smtp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-taskpulse/internal/domain"
	"github.com/go-taskpulse/internal/infrastructure/metrics"
)

const (
	jobTimeout   = 30 * time.Second
	drainTimeout = 10 * time.Second
)

type composer interface {
	Compose(ctx context.Context, job domain.EmailJob) (*domain.Email, error)
}

type sender interface {
	Send(ctx context.Context, e domain.Email) error
}

// Queue buffers email jobs and sends them on a fixed set of workers.
// Enqueue never blocks; failures are logged and counted, never retried.
type Queue struct {
	jobs     chan domain.EmailJob
	workers  int
	composer composer
	sender   sender
	logger   *slog.Logger
}

func NewQueue(size, workers int, c composer, s sender, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:     make(chan domain.EmailJob, size),
		workers:  workers,
		composer: c,
		sender:   s,
		logger:   logger.With("component", "mail-queue"),
	}
}

// Enqueue adds job to the queue. It reports false when the queue is full.
func (q *Queue) Enqueue(job domain.EmailJob) bool {
	select {
	case q.jobs <- job:
		metrics.MailQueueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		metrics.MailQueueRejected.Inc()
		return false
	}
}

// Serve runs the workers until ctx is cancelled, then makes a bounded
// attempt to send what is still queued.
func (q *Queue) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.jobs:
					q.process(context.WithoutCancel(ctx), job)
				}
			}
		}()
	}
	wg.Wait()

	q.drain(context.WithoutCancel(ctx))
	return ctx.Err()
}

func (q *Queue) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			if n := len(q.jobs); n > 0 {
				q.logger.Warn("mail queue drain timed out", "dropped", n)
			}
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		default:
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, job domain.EmailJob) {
	metrics.MailQueueDepth.Set(float64(len(q.jobs)))
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	email, err := q.composer.Compose(ctx, job)
	if err != nil {
		q.logger.Warn("email not composed", "user_id", job.RecipientID, "category", job.Category, "err", err)
		return
	}
	if err := q.sender.Send(ctx, *email); err != nil {
		q.logger.Warn("email not sent", "user_id", job.RecipientID, "category", job.Category,
			"custom_smtp", email.Override != nil, "err", err)
		return
	}
	q.logger.Debug("email sent", "user_id", job.RecipientID, "category", job.Category)
}

func (q *Queue) String() string { return "mail-queue" }
