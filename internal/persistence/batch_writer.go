package persistence

import (
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// WriteOp is one statement to run inside a batch.
type WriteOp struct {
	Query string
	Args  []any
}

// BatchWriter batches journal writes into transactions. Batches commit in
// the order their operations were written.
type BatchWriter struct {
	db          *sql.DB
	log         *zap.Logger
	buffer      []WriteOp
	mu          sync.Mutex
	flushMu     sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	totalWrites  atomic.Uint64
	totalBatches atomic.Uint64
	totalErrors  atomic.Uint64
	lastSize     atomic.Int64
	lastFlush    atomic.Int64
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchWriter creates a batch writer.
// maxSize: max operations before auto-flush
// interval: time-based flush interval
func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration, log *zap.Logger) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}

	bw := &BatchWriter{
		db:          db,
		log:         log.Named("batch_writer"),
		buffer:      make([]WriteOp, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write adds a write operation to the batch.
func (bw *BatchWriter) Write(op WriteOp) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, op)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		_ = bw.Flush()
	}
}

// WriteQuery is a convenience method for simple queries.
func (bw *BatchWriter) WriteQuery(query string, args ...any) {
	bw.Write(WriteOp{Query: query, Args: args})
}

// Flush immediately writes all buffered operations to the database.
func (bw *BatchWriter) Flush() error {
	bw.flushMu.Lock()
	defer bw.flushMu.Unlock()

	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]WriteOp, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(ops)
}

// executeBatch runs a batch of operations in a transaction.
func (bw *BatchWriter) executeBatch(ops []WriteOp) error {
	bw.totalWrites.Add(uint64(len(ops)))
	bw.totalBatches.Add(1)
	bw.lastSize.Store(int64(len(ops)))
	bw.lastFlush.Store(time.Now().UnixNano())

	tx, err := bw.db.Begin()
	if err != nil {
		bw.totalErrors.Add(1)
		bw.log.Error("begin transaction failed", zap.Error(err))
		return err
	}

	for _, op := range ops {
		if _, err := tx.Exec(op.Query, op.Args...); err != nil {
			_ = tx.Rollback()
			bw.totalErrors.Add(1)
			bw.log.Error("query failed, rolling back", zap.Int("ops", len(ops)), zap.Error(err))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		bw.totalErrors.Add(1)
		bw.log.Error("commit failed", zap.Error(err))
		return err
	}

	bw.log.Debug("flushed", zap.Int("ops", len(ops)))
	return nil
}

// backgroundFlush periodically flushes the buffer.
func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = bw.Flush()
		case <-bw.done:
			// Final flush before shutdown
			_ = bw.Flush()
			return
		}
	}
}

// Pending returns the number of pending operations.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// GetMetrics returns the current metrics for the batch writer.
func (bw *BatchWriter) GetMetrics() BatchWriterMetrics {
	m := BatchWriterMetrics{
		TotalWrites:   bw.totalWrites.Load(),
		TotalBatches:  bw.totalBatches.Load(),
		TotalErrors:   bw.totalErrors.Load(),
		LastBatchSize: int(bw.lastSize.Load()),
	}
	if ns := bw.lastFlush.Load(); ns > 0 {
		m.LastFlushTime = time.Unix(0, ns)
	}
	return m
}

// Close stops the background loop after a final flush.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() { close(bw.done) })
	bw.wg.Wait()
	return nil
}
