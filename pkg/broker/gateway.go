package broker

import "context"

// Gateway abstracts the brokerage API consumed by the execution core.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderByID(ctx context.Context, orderID string) (Order, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetAllPositions(ctx context.Context) ([]Position, error)
	GetAccount(ctx context.Context) (Account, error)
}
