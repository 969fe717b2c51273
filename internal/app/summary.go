package app

import (
	"fmt"
	"io"
	"strings"

	"tradesim/internal/backtest"
	"tradesim/internal/logger"
	"tradesim/internal/risk"
)

// StartupSummary 汇总启动时生效的配置。
type StartupSummary struct {
	Env         string
	HTTPAddr    string
	Strategies  []string
	Risk        risk.Parameters
	Backtest    backtest.Options
	CandleRoot  string
	ResultsPath string
	Source      string
}

// Log 逐行写入日志，日志重定向到文件时摘要也会落盘。
func (s *StartupSummary) Log() {
	logger.InfoBlock(s.String())
}

func (s *StartupSummary) String() string {
	var sb strings.Builder
	s.Fprint(&sb)
	return sb.String()
}

func (s *StartupSummary) Fprint(w io.Writer) {
	line := strings.Repeat("=", 80)
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, line)

	fmt.Fprintln(w, "[运行环境 (APP)]")
	fmt.Fprintf(w, "  环境: %s\n", s.Env)
	fmt.Fprintf(w, "  HTTP: %s\n", s.HTTPAddr)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[风控常量 (RISK)]")
	fmt.Fprintf(w, "  单笔风险上限: %.2f%%\n", s.Risk.MaxRiskPercent*100)
	fmt.Fprintf(w, "  最小仓位: %.2f USD\n", s.Risk.MinPositionUSD)
	fmt.Fprintf(w, "  止损/止盈比上限: %.2f\n", s.Risk.StopLossMaxRatio)
	fmt.Fprintf(w, "  最小止盈: %.2f%%\n", s.Risk.MinTakeProfitPercent*100)
	fmt.Fprintf(w, "  情绪阈值: ±%v (范围 [%v, %v])\n", s.Risk.SentimentMinThreshold, s.Risk.SentimentMin, s.Risk.SentimentMax)
	fmt.Fprintf(w, "  开仓间隔: %ds\n", s.Risk.MinSecondsBetweenTrades)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[回测 (BACKTEST)]")
	fmt.Fprintf(w, "  初始资金: %.2f\n", s.Backtest.InitialCapital)
	fmt.Fprintf(w, "  窗口长度: %d\n", s.Backtest.WindowSize)
	gate := "关闭"
	if s.Backtest.EnforceRiskGate {
		gate = fmt.Sprintf("开启 (sentiment=%v)", s.Backtest.Sentiment)
	}
	fmt.Fprintf(w, "  风控闸门: %s\n", gate)
	fmt.Fprintf(w, "  策略: %s\n", formatList(s.Strategies))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[数据 (DATA)]")
	fmt.Fprintf(w, "  K线目录: %s\n", s.CandleRoot)
	fmt.Fprintf(w, "  结果库: %s\n", s.ResultsPath)
	fmt.Fprintf(w, "  数据源: %s\n", s.Source)
	fmt.Fprintln(w, line)
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
