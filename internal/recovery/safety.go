package recovery

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Absolute, non-configurable safety limits for live trading. These
// values are intentionally hard-coded; they are not wired to the YAML
// config surface and must not be overridable at runtime.
const (
	AbsoluteMaxTradeUSD        = "25"
	AbsoluteMaxDailyLossUSD    = "20"
	AbsoluteMinCapitalUSD      = "50"
	AbsoluteMaxTradesPerHour   = 30
)

var (
	absoluteMaxTrade     = decimal.RequireFromString(AbsoluteMaxTradeUSD)
	absoluteMaxDailyLoss = decimal.RequireFromString(AbsoluteMaxDailyLossUSD)
	absoluteMinCapital   = decimal.RequireFromString(AbsoluteMinCapitalUSD)
)

// SafetyViolationRule names which absolute limit was breached.
type SafetyViolationRule string

const (
	RuleMaxTradeUSD      SafetyViolationRule = "max_trade_usd"
	RuleMaxDailyLoss     SafetyViolationRule = "max_daily_loss"
	RuleMinCapital       SafetyViolationRule = "min_capital"
	RuleMaxTradesPerHour SafetyViolationRule = "max_trades_per_hour"
)

// SafetyCheck runs the final absolute-limits gate, evaluated after
// every other admission check. It never consults configuration; every
// threshold is a compile-time constant.
func SafetyCheck(tradeUSD, dailyLossUSD, totalCapitalUSD decimal.Decimal, tradesThisHour int) (bool, SafetyViolationRule, string) {
	if tradeUSD.GreaterThan(absoluteMaxTrade) {
		return false, RuleMaxTradeUSD, fmt.Sprintf("trade $%s exceeds absolute max $%s", tradeUSD.StringFixed(2), absoluteMaxTrade.String())
	}
	if dailyLossUSD.LessThanOrEqual(absoluteMaxDailyLoss.Neg()) {
		return false, RuleMaxDailyLoss, "absolute daily loss limit reached"
	}
	if totalCapitalUSD.LessThan(absoluteMinCapital) {
		return false, RuleMinCapital, fmt.Sprintf("capital $%s below minimum $%s", totalCapitalUSD.StringFixed(2), absoluteMinCapital.String())
	}
	if tradesThisHour >= AbsoluteMaxTradesPerHour {
		return false, RuleMaxTradesPerHour, "absolute hourly trade limit reached"
	}
	return true, "", "OK"
}
