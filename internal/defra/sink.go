package defra

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OpType selects the mutation a queued write performs.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// WriteOp is one queued write. Creates carry Document; updates carry
// DocID plus Document; deletes carry DocID only.
type WriteOp struct {
	Collection string
	DocID      string
	Document   map[string]any
	Op         OpType
}

// SinkConfig configures the write sink.
type SinkConfig struct {
	Client        *Client
	BatchSize     int           // flush after this many queued ops (default 100)
	FlushInterval time.Duration // flush at least this often (default 5s)
	QueueSize     int           // queue buffer (default 1000)
	Logger        *slog.Logger
}

// Sink batches fire-and-forget writes to DefraDB so request paths never
// block on telemetry rows. Failed writes are logged and dropped; call
// history is best-effort by design of the recording path.
type Sink struct {
	client        *Client
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	queue chan WriteOp
	kick  chan struct{}

	mu      sync.Mutex
	pending []WriteOp

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewSink creates a sink over client. Start must be called before Send.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sink{
		client:        cfg.Client,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan WriteOp, cfg.QueueSize),
		kick:          make(chan struct{}, 1),
		pending:       make([]WriteOp, 0, cfg.BatchSize),
		done:          make(chan struct{}),
	}
}

// Start launches the background writer.
func (s *Sink) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.run()
}

// Stop closes the queue, drains everything still pending, and returns
// once the writer has exited. Safe to call more than once.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sink, draining pending writes")
		close(s.queue)
		<-s.done
		s.cancel()
		s.logger.Info("sink stopped")
	})
}

// Send queues a write without waiting for it. Ops sent after Stop are
// dropped with a warning.
func (s *Sink) Send(op WriteOp) {
	defer func() {
		// Send on the closed queue after Stop.
		if recover() != nil {
			s.logger.Warn("sink closed, dropping write",
				"collection", op.Collection, "op", op.Op)
		}
	}()

	select {
	case s.queue <- op:
	case <-s.ctx.Done():
		s.logger.Warn("sink stopped, dropping write",
			"collection", op.Collection, "op", op.Op)
	}
}

// Flush asks the writer to flush the current batch now.
func (s *Sink) Flush() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Sink) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case op, ok := <-s.queue:
			if !ok {
				s.flush()
				return
			}
			s.enqueue(op)
		case <-ticker.C:
			s.flush()
		case <-s.kick:
			s.flush()
		}
	}
}

func (s *Sink) enqueue(op WriteOp) {
	s.mu.Lock()
	s.pending = append(s.pending, op)
	full := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
}

// flush applies the current batch in arrival order. DefraDB's HTTP API
// has no multi-document mutation, so each op is one request.
func (s *Sink) flush() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = make([]WriteOp, 0, s.batchSize)
	s.mu.Unlock()

	s.logger.Debug("flushing writes", "count", len(batch))
	for _, op := range batch {
		if err := s.apply(op); err != nil {
			s.logger.Error("sink write failed",
				"collection", op.Collection, "op", op.Op,
				"docID", op.DocID, "error", err)
		}
	}
}

func (s *Sink) apply(op WriteOp) error {
	switch op.Op {
	case OpUpdate:
		return s.client.Update(s.ctx, op.Collection, op.DocID, op.Document)
	case OpDelete:
		return s.client.Delete(s.ctx, op.Collection, op.DocID)
	default:
		_, err := s.client.Create(s.ctx, op.Collection, op.Document)
		return err
	}
}
