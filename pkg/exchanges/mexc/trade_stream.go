package mexc

import (
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"mexc-gateway/pkg/exchanges/common"
)

// TradeStream is the private channel. It logs in on every connect and
// routes personal pushes to the sink.
type TradeStream struct {
	*stream
	apiKey string
	secret string
	sink   Sink
	now    func() time.Time
}

// NewTradeStream builds the private stream.
func NewTradeStream(cfg StreamConfig, apiKey, secret string, sink Sink, log *zap.Logger) (*TradeStream, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &TradeStream{apiKey: apiKey, secret: secret, sink: sink, now: time.Now}
	s, err := newStream("mexc-trade", cfg, true, t, log)
	if err != nil {
		return nil, err
	}
	t.stream = s
	return t, nil
}

// loginFrame signs apiKey+reqTime, reqTime in seconds.
func (t *TradeStream) loginFrame() (map[string]any, error) {
	reqTime := strconv.FormatInt(t.now().Unix(), 10)
	sig, err := Sign(t.secret, t.apiKey, reqTime, "")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"method": "login",
		"param": map[string]string{
			"apiKey":    t.apiKey,
			"reqTime":   reqTime,
			"signature": sig,
		},
	}, nil
}

func (t *TradeStream) onConnected() {
	msg, err := t.loginFrame()
	if err != nil {
		t.log.Error("login not sent", zap.Error(err))
		return
	}
	if err := t.send(msg); err != nil {
		t.log.Error("login not sent", zap.Error(err))
	}
}

// Personal topics are pushed automatically after login. Catching up on
// pushes missed while disconnected is left to the OnReady hook.
func (t *TradeStream) onLogin() {}

func (t *TradeStream) onDisconnected() {}

func (t *TradeStream) onData(f frame) {
	if t.sink == nil {
		return
	}
	var err error
	switch f.Channel {
	case channelOrder:
		var p regularOrder
		if err = decodePush(f, &p); err == nil {
			err = t.applyOrder(p.toUpdate())
		}
	case channelPlanOrder:
		var p planOrder
		if err = decodePush(f, &p); err == nil {
			err = t.applyOrder(p.toUpdate())
		}
	case channelStopPlan:
		var p stopPlanOrder
		if err = decodePush(f, &p); err == nil {
			err = t.applyOrder(p.toUpdate())
		}
	case channelPosition:
		var p positionPush
		if err = decodePush(f, &p); err == nil {
			var pos common.Position
			if pos, err = p.toPosition(t.now()); err == nil {
				t.sink.ApplyPosition(pos)
			}
		}
	case channelAsset:
		var p assetEntry
		if err = decodePush(f, &p); err == nil {
			if p.Currency == "" {
				err = &ReconcileWarning{Channel: f.Channel, Reason: "missing currency"}
			} else {
				t.sink.ApplyAccount(p.toAccount(t.now()))
			}
		}
	default:
		t.log.Debug("unhandled channel", zap.String("channel", f.Channel))
		return
	}
	if err != nil {
		t.log.Warn("drop push", zap.String("channel", f.Channel), zap.Error(err))
	}
}

func (t *TradeStream) applyOrder(u common.OrderUpdate, err error) error {
	if err != nil {
		return err
	}
	t.sink.ApplyOrder(u)
	return nil
}

func decodePush(f frame, v any) error {
	if len(f.Data) == 0 {
		return &ReconcileWarning{Channel: f.Channel, Reason: "empty data"}
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return &ReconcileWarning{Channel: f.Channel, Reason: err.Error()}
	}
	return nil
}
