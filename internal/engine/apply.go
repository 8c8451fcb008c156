package engine

import (
	"context"
	"fmt"

	"gopherdex.com/internal/dex"
	"gopherdex.com/pkg/xerr"
)

// apply 把一条命令交给市场状态机；actor 和回放走同一个入口
func apply(ctx context.Context, p *dex.Processor, op dex.Op, cmd Command) (Result, error) {
	var (
		res Result
		err error
	)
	switch cmd.Type {
	case CmdInitMarket:
		if cmd.Params == nil {
			return res, fmt.Errorf("%w: init without params", ErrBadCommand)
		}
		res.Market, err = p.InitializeMarket(ctx, op, dex.InitMarketRequest{Payer: cmd.Signer, Params: *cmd.Params})
		return res, err
	case CmdNewOrder:
		res.OrderID, err = p.NewLimitOrder(ctx, op, dex.NewOrderRequest{
			Owner:    cmd.Signer,
			Side:     cmd.Side,
			Price:    cmd.Price,
			Quantity: cmd.Qty,
			PostOnly: cmd.PostOnly,
		})
	case CmdCancel:
		err = p.CancelLimitOrder(ctx, op, dex.CancelRequest{Owner: cmd.Signer, OrderID: cmd.OrderID})
	case CmdMatch:
		res.Matched, err = p.MatchOrders(ctx, op, dex.MatchRequest{Limit: int(cmd.Limit), Accounts: cmd.Accounts})
	case CmdSettle:
		res.Settlement, err = p.SettleFunds(ctx, op, cmd.Signer)
	case CmdCloseOpenOrders:
		err = p.CloseOpenOrders(ctx, op, cmd.Signer, cmd.Destination)
	case CmdSetFees:
		err = p.SetFees(ctx, op, cmd.Signer, cmd.MakerFeeBps, cmd.TakerFeeBps)
	case CmdSetPause:
		err = p.SetPause(ctx, op, cmd.Signer, cmd.Paused)
	default:
		return res, fmt.Errorf("%w: type %d", ErrBadCommand, cmd.Type)
	}
	if err != nil {
		return res, err
	}
	res.Market, _ = p.Market()
	return res, nil
}

// rejectCode 写进 WAL/事件的错误码；非业务错误记成 500
func rejectCode(err error) uint32 {
	if ce, ok := xerr.As(err); ok {
		return uint32(ce.Code)
	}
	return xerr.ServerCommonError
}

// rejectEvent 拒单事件带上能定位的字段
func rejectEvent(market string, cmd Command) dex.Event {
	ev := dex.Event{Owner: cmd.Signer, OrderID: cmd.OrderID, Side: cmd.Side, Price: cmd.Price, Quantity: cmd.Qty}
	if k, err := parseKey(market); err == nil {
		ev.Market = k
	}
	return ev
}
