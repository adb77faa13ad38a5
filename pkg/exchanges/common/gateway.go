package common

import "context"

// Gateway is what a host application drives.
type Gateway interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, req SubscribeRequest) error
	SendOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, req CancelRequest) error
	QueryHistory(ctx context.Context, req HistoryRequest) []Bar
	OnTimer()
	Close() error
}
