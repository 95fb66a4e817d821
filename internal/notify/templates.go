package notify

import (
	"fmt"
	"strconv"
	"strings"
)

// TradeOpenMessage renders a trade-opened notification. sl/tp/price/score
// are pointers so "not applicable" can be distinguished from zero.
func TradeOpenMessage(symbol, side string, volume float64, price, sl, tp *float64, strategy string, score *float64) string {
	parts := []string{
		"Trade OPEN",
		"Symbol: " + symbol,
		"Side: " + side,
		"Volume: " + formatFloat(volume),
		"Strategy: " + strategy,
	}
	if score != nil {
		parts = append(parts, fmt.Sprintf("Rank score: %.3f", *score))
	}
	if price != nil {
		parts = append(parts, "Price: "+formatFloat(*price))
	}
	if sl != nil {
		parts = append(parts, "SL: "+formatFloat(*sl))
	}
	if tp != nil {
		parts = append(parts, "TP: "+formatFloat(*tp))
	}
	return strings.Join(parts, "\n")
}

// TradeCloseMessage renders a trade-closed notification.
func TradeCloseMessage(symbol, side string, volume float64, profit *float64, reason string) string {
	parts := []string{"Trade CLOSE", "Symbol: " + symbol, "Side: " + side, "Volume: " + formatFloat(volume)}
	if profit != nil {
		parts = append(parts, "Profit: "+formatFloat(*profit))
	}
	if reason != "" {
		parts = append(parts, "Reason: "+reason)
	}
	return strings.Join(parts, "\n")
}

// RiskPauseMessage renders a trading-paused notification.
func RiskPauseMessage(reason string) string {
	return "Trading PAUSED\nReason: " + reason
}

// RiskUnpauseMessage renders a trading-resumed notification.
func RiskUnpauseMessage() string {
	return "Trading UNPAUSED"
}

// ErrorMessage renders an error-burst notification.
func ErrorMessage(message, cycleID string) string {
	if cycleID != "" {
		return fmt.Sprintf("Error (cycle %s)\n%s", cycleID, message)
	}
	return "Error\n" + message
}

// DailySummaryMessage renders the end-of-day summary.
func DailySummaryMessage(date string, pnl *float64, wins, losses int, equity *float64) string {
	parts := []string{"Daily Summary (" + date + ")"}
	if pnl != nil {
		parts = append(parts, "PnL: "+formatFloat(*pnl))
	}
	parts = append(parts, fmt.Sprintf("Wins: %d  Losses: %d", wins, losses))
	if equity != nil {
		parts = append(parts, "Equity: "+formatFloat(*equity))
	}
	return strings.Join(parts, "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
