package blob

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Job is one pending object write held by the write-behind queue.
type Job struct {
	Name        string
	ContentType string
	Payload     []byte
}

// DeadLetter records a queued upload that exhausted its retry budget. The
// payload is not retained.
type DeadLetter struct {
	Name     string
	Attempts int
	LastErr  string
	FailedAt time.Time
}

// QueueStats is a point-in-time snapshot of queue activity.
type QueueStats struct {
	Enqueued     int
	Completed    int
	DeadLettered int
	Depth        int
}

type QueueConfig struct {
	// Put performs the actual object write for one job.
	Put func(ctx context.Context, job Job) error

	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	PutTimeout  time.Duration
	Logger      *slog.Logger
}

const (
	defaultQueueWorkers    = 2
	defaultQueueSize       = 64
	defaultMaxAttempts     = 3
	defaultRetryDelay      = 500 * time.Millisecond
	defaultQueuePutTimeout = 30 * time.Second
)

// Queue drains pending object writes through a fixed worker pool, retrying
// each job up to MaxAttempts before moving it to the dead-letter list. A job
// accepted by Enqueue is never silently dropped: it either completes or
// becomes a dead letter. Jobs sharing an object name are serialized, never
// discarded.
type Queue struct {
	put         func(ctx context.Context, job Job) error
	workers     int
	maxAttempts int
	retryDelay  time.Duration
	putTimeout  time.Duration
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	queue chan Job
	wg    sync.WaitGroup

	mu        sync.Mutex
	cond      *sync.Cond
	started   bool
	inFlight  map[string]struct{}
	dead      []DeadLetter
	enqueued  int
	completed int
}

func NewQueue(cfg QueueConfig) *Queue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultQueueWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	putTimeout := cfg.PutTimeout
	if putTimeout <= 0 {
		putTimeout = defaultQueuePutTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		put:         cfg.Put,
		workers:     workers,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		putTimeout:  putTimeout,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan Job, queueSize),
		inFlight:    make(map[string]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Start() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Shutdown stops the workers and waits for in-flight jobs, bounded by ctx.
// Jobs still sitting in the channel are recorded as dead letters so nothing
// vanishes without trace.
func (q *Queue) Shutdown(ctx context.Context) error {
	if q == nil {
		return nil
	}
	q.cancel()
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		select {
		case job := <-q.queue:
			q.recordDeadLetter(job, 0, "queue shut down before the upload ran")
		default:
			return nil
		}
	}
}

// Enqueue accepts a job for background transfer. It reports false when the
// queue is full or shutting down; the caller decides how to surface that.
func (q *Queue) Enqueue(job Job) bool {
	if q == nil || strings.TrimSpace(job.Name) == "" {
		return false
	}
	select {
	case <-q.ctx.Done():
		return false
	default:
	}
	select {
	case q.queue <- job:
		q.mu.Lock()
		q.enqueued++
		q.mu.Unlock()
		return true
	default:
		return false
	}
}

func (q *Queue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out
}

func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Enqueued:     q.enqueued,
		Completed:    q.completed,
		DeadLettered: len(q.dead),
		Depth:        len(q.queue),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.queue:
			if !q.beginWork(job.Name) {
				q.recordDeadLetter(job, 0, "queue shut down before the upload ran")
				continue
			}
			q.process(job)
			q.finishWork(job.Name)
		}
	}
}

// beginWork claims the name for this worker. When another job with the same
// name is in flight the caller waits for it to clear rather than dropping
// the later job. Returns false only when the queue is shutting down.
func (q *Queue) beginWork(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.ctx.Err() != nil {
			return false
		}
		if _, exists := q.inFlight[name]; !exists {
			q.inFlight[name] = struct{}{}
			return true
		}
		q.cond.Wait()
	}
}

func (q *Queue) finishWork(name string) {
	q.mu.Lock()
	delete(q.inFlight, name)
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *Queue) process(job Job) {
	var lastErr error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(q.ctx, q.putTimeout)
		err := q.put(ctx, job)
		cancel()
		if err == nil {
			q.mu.Lock()
			q.completed++
			q.mu.Unlock()
			if attempt > 1 {
				q.logger.Info("queued upload completed after retry", "name", job.Name, "attempts", attempt)
			}
			return
		}
		lastErr = err
		q.logger.Warn("queued upload attempt failed", "name", job.Name, "attempt", attempt, "error", err)
		if attempt == q.maxAttempts {
			break
		}

		select {
		case <-q.ctx.Done():
			q.recordDeadLetter(job, attempt, lastErr.Error())
			return
		case <-time.After(q.retryDelay):
		}
	}
	q.recordDeadLetter(job, q.maxAttempts, lastErr.Error())
	q.logger.Error("queued upload exhausted retries", "name", job.Name, "attempts", q.maxAttempts, "error", lastErr)
}

func (q *Queue) recordDeadLetter(job Job, attempts int, message string) {
	q.mu.Lock()
	q.dead = append(q.dead, DeadLetter{
		Name:     job.Name,
		Attempts: attempts,
		LastErr:  message,
		FailedAt: time.Now().UTC(),
	})
	q.mu.Unlock()
}
