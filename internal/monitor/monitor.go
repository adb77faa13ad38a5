package monitor

import (
	"context"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"mexc-gateway/internal/events"
)

const monitorBuffer = 512

// Monitor counts bus traffic and forwards error notices to an AlertSink.
type Monitor struct {
	Bus     *events.Bus
	Metrics *SystemMetrics
	Sink    AlertSink
	Log     *zap.Logger

	wg conc.WaitGroup
}

// Start consumes ticks, trades and notices until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Metrics == nil {
		if m.Log != nil {
			m.Log.Warn("monitor not fully configured; skipping")
		}
		return
	}
	ticks, unsubTicks := m.Bus.Subscribe(events.EventTick, monitorBuffer)
	trades, unsubTrades := m.Bus.Subscribe(events.EventTrade, monitorBuffer)
	notices, unsubNotices := m.Bus.Subscribe(events.EventLog, monitorBuffer)

	m.wg.Go(func() {
		defer unsubTicks()
		defer unsubTrades()
		defer unsubNotices()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				m.Metrics.IncrementTicks()
			case _, ok := <-trades:
				if !ok {
					return
				}
				m.Metrics.IncrementTrades()
			case payload, ok := <-notices:
				if !ok {
					return
				}
				m.handleNotice(payload)
			}
		}
	})
}

func (m *Monitor) handleNotice(payload any) {
	notice, ok := payload.(events.LogMessage)
	if !ok || notice.Level != "error" {
		return
	}
	m.Metrics.IncrementAlerts()
	if m.Sink == nil {
		return
	}
	if err := m.Sink.Send(notice.Msg); err != nil && m.Log != nil {
		m.Log.Warn("alert delivery failed", zap.Error(err))
	}
}

// Wait blocks until the consumer started by Start has returned.
func (m *Monitor) Wait() { m.wg.Wait() }
