package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DispatchInProcess = "inprocess"
	DispatchQStash    = "qstash"
)

var errDispatcherClosed = errors.New("dispatcher is closed")

// Dispatcher hands a job off for processing without blocking the webhook.
type Dispatcher interface {
	Dispatch(ctx context.Context, job TurnJob) error
}

type jobProcessor interface {
	Process(ctx context.Context, job TurnJob)
}

// InProcessDispatcher runs each job on its own goroutine, detached from the
// request that produced it.
type InProcessDispatcher struct {
	processor jobProcessor
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewInProcessDispatcher(processor jobProcessor, timeout time.Duration) *InProcessDispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &InProcessDispatcher{processor: processor, timeout: timeout}
}

func (d *InProcessDispatcher) Dispatch(_ context.Context, job TurnJob) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.processor.Process(ctx, job)
	}()
	return nil
}

// Shutdown stops accepting jobs and waits for running ones or ctx.
func (d *InProcessDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publisher enqueues a payload for delivery to a URL.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) (string, error)
}

// QueueDispatcher publishes jobs to QStash, which calls back the job URL.
// When publishing fails the job falls back to the in-process dispatcher.
type QueueDispatcher struct {
	publisher Publisher
	jobURL    string
	fallback  Dispatcher
}

func NewQueueDispatcher(publisher Publisher, jobURL string, fallback Dispatcher) (*QueueDispatcher, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if strings.TrimSpace(jobURL) == "" {
		return nil, errors.New("job url is required for queued dispatch")
	}
	return &QueueDispatcher{publisher: publisher, jobURL: strings.TrimSpace(jobURL), fallback: fallback}, nil
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job TurnJob) error {
	id, err := d.publisher.Publish(ctx, d.jobURL, job)
	if err == nil {
		log.Debug().Str("user_id", job.UserID).Str("message_id", id).Msg("job queued")
		return nil
	}

	log.Warn().Err(err).Str("user_id", job.UserID).Msg("queue publish failed; processing in-process")
	if d.fallback == nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return d.fallback.Dispatch(ctx, job)
}
