package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"mexc-gateway/pkg/exchanges/common"
)

// DefaultURL is where the order-placement service listens by default.
const DefaultURL = "http://localhost:5102"

// unsetPrice marks take-profit and stop-loss prices as not requested.
const unsetPrice = -1

// ErrInvalidOrder is returned for requests rejected before any placement
// call is made.
var ErrInvalidOrder = errors.New("invalid order")

// ExecutionFailure means an order may or may not have been placed: the
// proxy was unreachable, answered non-2xx, or returned an unusable body.
type ExecutionFailure struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *ExecutionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("execution %s status %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

// Proxy places orders through the external placement service.
type Proxy struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewProxy creates a proxy client for baseURL.
func NewProxy(baseURL string, timeout time.Duration, log *zap.Logger) *Proxy {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Proxy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("execution"),
	}
}

type limitOrder struct {
	Direction string  `json:"direction"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
}

type marketOrder struct {
	Direction string  `json:"direction"`
	Quantity  float64 `json:"quantity"`
}

type stopOrder struct {
	Direction       string  `json:"direction"`
	TriggerPrice    float64 `json:"trigger_price"`
	Quantity        float64 `json:"quantity"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
}

func direction(d common.Direction) (string, error) {
	switch d {
	case common.DirectionLong:
		return "long", nil
	case common.DirectionShort:
		return "short", nil
	}
	return "", fmt.Errorf("unsupported direction %q: %w", d, ErrInvalidOrder)
}

// Validate checks req against what the placement service accepts.
func Validate(req common.OrderRequest) error {
	if _, err := direction(req.Direction); err != nil {
		return err
	}
	switch req.Type {
	case common.OrderTypeLimit, common.OrderTypeStop:
		if req.Price <= 0 {
			return fmt.Errorf("%s order price %v: %w", req.Type, req.Price, ErrInvalidOrder)
		}
	case common.OrderTypeMarket:
	default:
		return fmt.Errorf("unsupported order type %q: %w", req.Type, ErrInvalidOrder)
	}
	if req.Volume <= 0 {
		return fmt.Errorf("volume %v: %w", req.Volume, ErrInvalidOrder)
	}
	return nil
}

// Place routes req to the endpoint of its order type and returns the
// exchange order id. Invalid requests fail with ErrInvalidOrder and never
// reach the service.
func (p *Proxy) Place(ctx context.Context, req common.OrderRequest) (string, error) {
	if err := Validate(req); err != nil {
		return "", err
	}
	dir, _ := direction(req.Direction)
	switch req.Type {
	case common.OrderTypeLimit:
		return p.call(ctx, "/place_limit_order", limitOrder{Direction: dir, Price: req.Price, Quantity: req.Volume}, orderIDField)
	case common.OrderTypeMarket:
		return p.call(ctx, "/place_market_order", marketOrder{Direction: dir, Quantity: req.Volume}, orderIDField)
	case common.OrderTypeStop:
		return p.call(ctx, "/place_stop_order", stopOrder{
			Direction:       dir,
			TriggerPrice:    req.Price,
			Quantity:        req.Volume,
			TakeProfitPrice: unsetPrice,
			StopLossPrice:   unsetPrice,
		}, wholeData)
	}
	return "", fmt.Errorf("unsupported order type %q: %w", req.Type, ErrInvalidOrder)
}

type idExtractor func(data json.RawMessage) (string, error)

func orderIDField(data json.RawMessage) (string, error) {
	var d struct {
		OrderID json.RawMessage `json:"orderId"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return "", err
	}
	return scalarID(d.OrderID)
}

func wholeData(data json.RawMessage) (string, error) {
	return scalarID(data)
}

// scalarID accepts a quoted or bare id.
func scalarID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing order id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if s == "" {
			return "", fmt.Errorf("empty order id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("order id %s: %w", raw, err)
	}
	return n.String(), nil
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope unwraps a body that is either the envelope itself or a
// JSON string containing it.
func decodeEnvelope(body []byte) (envelope, error) {
	var env envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return env, err
		}
		trimmed = []byte(inner)
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, err
	}
	return env, nil
}

func (p *Proxy) call(ctx context.Context, path string, payload any, extract idExtractor) (string, error) {
	endpoint := p.baseURL + path
	b, err := json.Marshal(payload)
	if err != nil {
		return "", &ExecutionFailure{Endpoint: path, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", &ExecutionFailure{Endpoint: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return "", &ExecutionFailure{Endpoint: path, Err: err}
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode/100 != 2 {
		return "", &ExecutionFailure{Endpoint: path, Status: res.StatusCode, Body: string(body)}
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return "", &ExecutionFailure{Endpoint: path, Status: res.StatusCode, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	if !env.Success {
		return "", &ExecutionFailure{Endpoint: path, Status: res.StatusCode, Body: string(body), Err: fmt.Errorf("code %d: %s", env.Code, env.Message)}
	}
	id, err := extract(env.Data)
	if err != nil {
		return "", &ExecutionFailure{Endpoint: path, Status: res.StatusCode, Body: string(body), Err: err}
	}
	p.log.Info("order placed", zap.String("endpoint", path), zap.String("order_id", id))
	return id, nil
}
