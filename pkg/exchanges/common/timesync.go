package common

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeSync tracks the offset between the exchange clock and the local clock.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	log           *zap.Logger

	mu       sync.RWMutex
	offset   int64 // milliseconds, server - local
	lastSync time.Time
}

// NewTimeSync creates a time synchronizer around a server-time query.
func NewTimeSync(getServerTime func(ctx context.Context) (int64, error), log *zap.Logger) *TimeSync {
	if log == nil {
		log = zap.NewNop()
	}
	return &TimeSync{getServerTime: getServerTime, log: log}
}

// Sync measures the offset once, assuming symmetric network latency.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = time.Now()
	offset := ts.offset
	ts.mu.Unlock()

	ts.log.Debug("time synced", zap.Int64("offset_ms", offset), zap.Int64("server_ms", serverTime))
	return nil
}

// Now returns the current time in milliseconds adjusted by the offset.
func (ts *TimeSync) Now() int64 {
	if ts == nil {
		return time.Now().UnixMilli()
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the measured offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// LastSync returns when the offset was last measured.
func (ts *TimeSync) LastSync() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.lastSync
}
