package strategy

import (
	"github.com/shopspring/decimal"
)

// Action 对单个持仓的处理结论
type Action int

const (
	Hold Action = iota
	TakeProfit
	StopLoss
)

func (a Action) String() string {
	switch a {
	case TakeProfit:
		return "take_profit"
	case StopLoss:
		return "stop_loss"
	default:
		return "hold"
	}
}

// ShouldSell 止盈或止损都需要卖出
func (a Action) ShouldSell() bool { return a != Hold }

type Decision struct {
	Action          Action
	ProfitThreshold decimal.Decimal
	LossThreshold   decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Evaluate 比较当前价格与买入价的止盈/止损阈值。
// profit = bought*(1+tp/100), loss = bought*(1-sl/100)；两者同时满足时止盈优先。
func Evaluate(bought, current, takeProfitPct, stopLossPct decimal.Decimal) Decision {
	one := decimal.NewFromInt(1)
	d := Decision{
		ProfitThreshold: bought.Mul(one.Add(takeProfitPct.Div(hundred))),
		LossThreshold:   bought.Mul(one.Sub(stopLossPct.Div(hundred))),
	}
	switch {
	case current.GreaterThanOrEqual(d.ProfitThreshold):
		d.Action = TakeProfit
	case current.LessThanOrEqual(d.LossThreshold):
		d.Action = StopLoss
	default:
		d.Action = Hold
	}
	return d
}
