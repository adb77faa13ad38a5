package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting         string
	ConfigLoaded     string
	UsingDBPath      string
	ServerListening  string
	ShuttingDown     string
	ConfigLoadFailed string
	DBInitFailed     string
	APIServerError   string

	// Gateway
	RestStarted        string
	ContractsLoaded    string
	AccountQueried     string
	OpenOrdersQueried  string
	MarketStreamStart  string
	TradeStreamStart   string
	GatewayConnectFail string
	GatewayClosed      string

	// Orders
	OrderSubmitted   string
	OrderPlaceFailed string
	CancelAllIssued  string
	CancelFailed     string
	UnknownOrder     string
	OrderRejected    string

	// Market
	Subscribed        string
	SubscribeRejected string
	Resubscribing     string
	HistoryLoaded     string

	// Private channel
	PrivateResync string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	Starting:         "Starting MEXC gateway",
	ConfigLoaded:     "Configuration loaded",
	UsingDBPath:      "Using journal database",
	ServerListening:  "API server listening",
	ShuttingDown:     "Shutting down",
	ConfigLoadFailed: "Failed to load configuration",
	DBInitFailed:     "Failed to open journal database",
	APIServerError:   "API server error",

	RestStarted:        "REST API started",
	ContractsLoaded:    "Contract metadata loaded",
	AccountQueried:     "Account balances queried",
	OpenOrdersQueried:  "Open orders queried",
	MarketStreamStart:  "Market websocket started",
	TradeStreamStart:   "Trade websocket started",
	GatewayConnectFail: "Gateway connect failed",
	GatewayClosed:      "Gateway closed",

	OrderSubmitted:   "Order submitted",
	OrderPlaceFailed: "Order placement failed, cancelling all open orders",
	CancelAllIssued:  "Cancel-all issued for regular and plan orders",
	CancelFailed:     "Cancel request failed",
	UnknownOrder:     "Order not found",
	OrderRejected:    "Order request rejected",

	Subscribed:        "Market data subscribed",
	SubscribeRejected: "Symbol not found, subscription rejected",
	Resubscribing:     "Market websocket reconnected, resubscribing",
	HistoryLoaded:     "Historical bars loaded",

	PrivateResync: "Trade websocket logged in again, querying open orders and balances",
}

// Chinese messages
var messagesZH = Messages{
	Starting:         "正在启动MEXC交易接口",
	ConfigLoaded:     "配置已加载",
	UsingDBPath:      "使用日志数据库",
	ServerListening:  "API服务监听中",
	ShuttingDown:     "正在关闭",
	ConfigLoadFailed: "配置加载失败",
	DBInitFailed:     "日志数据库打开失败",
	APIServerError:   "API服务错误",

	RestStarted:        "REST API启动成功",
	ContractsLoaded:    "合约信息查询成功",
	AccountQueried:     "账户资金查询成功",
	OpenOrdersQueried:  "当前委托信息查询成功",
	MarketStreamStart:  "行情Websocket API启动",
	TradeStreamStart:   "交易Websocket API启动",
	GatewayConnectFail: "交易接口连接失败",
	GatewayClosed:      "交易接口已关闭",

	OrderSubmitted:   "委托已提交",
	OrderPlaceFailed: "委托失败，撤销全部委托",
	CancelAllIssued:  "已撤销全部普通及计划委托",
	CancelFailed:     "撤单失败",
	UnknownOrder:     "找不到该委托",
	OrderRejected:    "委托请求被拒绝",

	Subscribed:        "行情订阅成功",
	SubscribeRejected: "找不到该合约代码，订阅被拒绝",
	Resubscribing:     "行情Websocket重连，重新订阅",
	HistoryLoaded:     "获取历史数据成功",

	PrivateResync: "交易Websocket重新登录，查询委托及资金",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns a message by field name, or the key itself when unknown.
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
