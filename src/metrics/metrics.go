package metrics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/model"
)

// RoundTurn carries the derived financials of a trace. Nil fields mean "not
// yet known"; a zero here is always a real zero.
type RoundTurn struct {
	AvgEntry        *float64
	AvgExit         *float64
	Pnl             *float64
	DurationSeconds *int64
}

// contractMultipliers maps futures root symbols to their dollar-per-point
// multiplier. Unknown tickers fall back to 1.
var contractMultipliers = map[string]decimal.Decimal{
	"MES": decimal.NewFromInt(5),
	"MSE": decimal.NewFromInt(5),
	"MGC": decimal.NewFromInt(10),
	"SIL": decimal.NewFromInt(1000),
	"MBT": decimal.RequireFromString("0.1"),
}

// ContractMultiplier resolves the multiplier for a ticker, tolerating
// continuous-contract suffixes like "MES1!".
func ContractMultiplier(ticker string) decimal.Decimal {
	root := strings.ToUpper(strings.TrimSpace(ticker))
	root = strings.TrimSuffix(root, "!")
	root = strings.TrimRight(root, "0123456789")
	if m, ok := contractMultipliers[root]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// SplitLegs partitions fills into entry and exit legs using only the trace
// action and the fill side: for a long trace buys open and sells close, for
// a short trace the mapping inverts. Every fill lands in exactly one leg.
func SplitLegs(action string, fills []model.Fill) (entry, exit []model.Fill) {
	long := strings.EqualFold(action, model.ActionLong)
	for _, f := range fills {
		opens := f.Side == model.SideBuy
		if !long {
			opens = f.Side == model.SideSell
		}
		if opens {
			entry = append(entry, f)
		} else {
			exit = append(exit, f)
		}
	}
	return entry, exit
}

// Derive computes average entry/exit price, realized P&L and duration for a
// trace from its fill sequence. A trace with zero fills reports everything
// as unknown, never as zero.
func Derive(trace model.Trace, fills []model.Fill) RoundTurn {
	var rt RoundTurn

	entryLeg, exitLeg := SplitLegs(trace.Action, fills)

	if avg, ok := meanPrice(entryLeg); ok {
		rt.AvgEntry = floatPtr(avg)
	}
	if avg, ok := meanPrice(exitLeg); ok {
		rt.AvgExit = floatPtr(avg)
	}

	if rt.AvgEntry != nil && rt.AvgExit != nil {
		mult := ContractMultiplier(trace.Ticker)
		pnl := decimal.NewFromFloat(*rt.AvgExit).
			Sub(decimal.NewFromFloat(*rt.AvgEntry)).
			Mul(mult)
		if !strings.EqualFold(trace.Action, model.ActionLong) {
			pnl = pnl.Neg()
		}
		rt.Pnl = floatPtr(pnl)
	}

	// Duration freezes on the first terminal trade status and runs from the
	// alert to the last exit fill. Without either, it stays unknown.
	if trace.TradovateStatus.Terminal() && len(exitLeg) > 0 {
		last := exitLeg[0].FillTime.Time
		for _, f := range exitLeg[1:] {
			if f.FillTime.Time.After(last) {
				last = f.FillTime.Time
			}
		}
		if !trace.AlertReceivedAt.IsZero() && !last.Before(trace.AlertReceivedAt.Time) {
			secs := int64(last.Sub(trace.AlertReceivedAt.Time) / time.Second)
			rt.DurationSeconds = &secs
		}
	}

	logger.WithFields(map[string]interface{}{
		"component":   "metrics",
		"trace_id":    trace.TraceID,
		"fills":       len(fills),
		"entry_fills": len(entryLeg),
		"exit_fills":  len(exitLeg),
		"pnl_known":   rt.Pnl != nil,
	}).Debug("Derived round turn metrics")

	return rt
}

func meanPrice(fills []model.Fill) (decimal.Decimal, bool) {
	if len(fills) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, f := range fills {
		sum = sum.Add(decimal.NewFromFloat(f.Price))
	}
	return sum.Div(decimal.NewFromInt(int64(len(fills)))), true
}

func floatPtr(d decimal.Decimal) *float64 {
	f, _ := d.Float64()
	return &f
}

// ExitWarning flags a still-working trade that has been open past the
// configured warn time while its exit progress is below the warn ratio.
// Zero warn time disables the check.
func ExitWarning(trace model.Trace, fills []model.Fill, settings model.Settings, now time.Time) bool {
	if settings.GhostExitWarnTimeSec <= 0 {
		return false
	}
	if trace.TradovateStatus != model.TradeWorking {
		return false
	}
	if trace.AlertReceivedAt.IsZero() {
		return false
	}
	open := now.Sub(trace.AlertReceivedAt.Time)
	if open < time.Duration(settings.GhostExitWarnTimeSec)*time.Second {
		return false
	}

	entryLeg, exitLeg := SplitLegs(trace.Action, fills)
	if len(entryLeg) == 0 {
		return true // past the warn window with nothing even opened
	}
	progress := float64(len(exitLeg)) / float64(len(entryLeg))
	return progress < settings.GhostExitWarnRatio
}
