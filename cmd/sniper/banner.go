package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/nadsniper/pkg/config"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// renderBanner 启动横幅：关键交易参数一目了然
func renderBanner(cfg config.Config, runID string) string {
	rows := [][2]string{
		{"run", runID},
		{"rpc", cfg.Chain.RPCURL},
		{"chain", fmt.Sprintf("%d (%s)", cfg.Chain.ChainID, cfg.Chain.Symbol)},
		{"router", cfg.Contracts.Router},
		{"amount", fmt.Sprintf("%s %s / trade", cfg.Trading.PurchaseAmount, cfg.Chain.Symbol)},
		{"tp / sl", fmt.Sprintf("+%g%% / -%g%%", cfg.Trading.TakeProfitPct, cfg.Trading.StopLossPct)},
		{"max age", fmt.Sprintf("%ds", cfg.Monitoring.MaxTokenAgeSec)},
		{"ledger", fmt.Sprintf("%s (%s)", cfg.Ledger.Path, cfg.Ledger.Driver)},
	}
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, titleStyle.Render("Nadfun Token Sniper"))
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("%-8s", r[0]))+" "+r[1])
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// lowBalance 余额不足两次买入时告警
func lowBalance(balance, purchase *big.Int) bool {
	need := new(big.Int).Mul(purchase, big.NewInt(2))
	return balance.Cmp(need) < 0
}
