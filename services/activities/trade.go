package activities

import (
	"context"

	"github.com/google/uuid"

	"go.uber.org/zap"

	"quanttrade/services/workflow"
)

// TradeExecutor submits one order and reports the outcome. The production
// implementation would talk to a broker; PaperExecutor fills everything
// instantly at the requested price.
type TradeExecutor interface {
	Execute(ctx context.Context, in workflow.ExecuteTradeInput) (workflow.ExecuteTradeResult, error)
}

// PaperExecutor is the simulated broker used for live-trading rehearsals and
// rebalancing dry runs. Every order fills and gets a fresh order ID.
type PaperExecutor struct {
	logger *zap.Logger
}

func NewPaperExecutor(logger *zap.Logger) *PaperExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperExecutor{logger: logger.Named("paper_executor")}
}

func (p *PaperExecutor) Execute(_ context.Context, in workflow.ExecuteTradeInput) (workflow.ExecuteTradeResult, error) {
	orderID := uuid.NewString()
	p.logger.Info("paper order filled",
		zap.String("order_id", orderID),
		zap.String("account_id", in.AccountID),
		zap.String("symbol", in.Symbol),
		zap.String("side", in.Side),
		zap.String("quantity", in.Quantity.String()),
		zap.String("price", in.Price.String()),
		zap.String("notional", in.Notional.String()),
	)
	return workflow.ExecuteTradeResult{
		Status:  "filled",
		OrderID: orderID,
		Symbol:  in.Symbol,
	}, nil
}
