package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"waterwise/internal/logger"
	"waterwise/internal/metrics"
	"waterwise/internal/models"
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("sequencer closed")

// Writer is the durable store behind the sequencer.
type Writer interface {
	InsertTest(ctx context.Context, rec models.Record) (int64, error)
}

// Config sizes the queue and bounds each write.
type Config struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// Sequencer writes records after the caller has been answered. Writes are
// at-most-once and best effort: failures and drops are logged and counted,
// never reported back to the submitter.
type Sequencer struct {
	w       Writer
	cfg     Config
	queue   chan models.Record
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
}

func New(w Writer, cfg Config) *Sequencer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Sequencer{w: w, cfg: cfg, queue: make(chan models.Record, cfg.QueueSize)}
}

// Start launches the workers. Records enqueued before Start wait in the queue.
func (s *Sequencer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Enqueue hands rec off without blocking. It reports false when rec was dropped.
func (s *Sequencer) Enqueue(rec models.Record) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(rec, "sequencer closed")
		return false
	}

	select {
	case s.queue <- rec:
		metrics.PersistenceQueueDepth.Set(float64(len(s.queue)))
		return true
	default:
		s.drop(rec, "queue full")
		return false
	}
}

// Close stops intake and waits for queued records to be written or ctx to expire.
func (s *Sequencer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.queue)
	if !s.started {
		s.started = true
		s.wg.Add(1)
		go s.worker()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("persistence drain interrupted", map[string]interface{}{
			"pending": len(s.queue),
		})
		return ctx.Err()
	}
}

func (s *Sequencer) worker() {
	defer s.wg.Done()
	for rec := range s.queue {
		metrics.PersistenceQueueDepth.Set(float64(len(s.queue)))
		s.write(rec)
	}
}

func (s *Sequencer) write(rec models.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	id, err := s.w.InsertTest(ctx, rec)
	if err != nil {
		metrics.PersistenceWritesTotal.WithLabelValues("failed").Inc()
		logger.Error("failed to persist water test", map[string]interface{}{
			"error":      err.Error(),
			"request_id": rec.RequestID,
			"subject_id": rec.SubjectID,
			"prediction": rec.Prediction,
		})
		return
	}

	metrics.PersistenceWritesTotal.WithLabelValues("persisted").Inc()
	logger.Info("water test persisted", map[string]interface{}{
		"id":         id,
		"request_id": rec.RequestID,
		"subject_id": rec.SubjectID,
		"prediction": rec.Prediction,
	})
}

func (s *Sequencer) drop(rec models.Record, reason string) {
	metrics.PersistenceDroppedTotal.Inc()
	logger.Error("water test dropped before persistence", map[string]interface{}{
		"reason":     reason,
		"request_id": rec.RequestID,
		"subject_id": rec.SubjectID,
	})
}
