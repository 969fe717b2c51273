package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"tradesim/internal/app"
	"tradesim/internal/backtest"
	"tradesim/internal/config"
	"tradesim/internal/market"
	"tradesim/internal/strategy"

	"github.com/tidwall/pretty"
)

// runFlags 是 run/batch 共用的参数。
type runFlags struct {
	strategy  string
	rules     string
	data      string
	symbol    string
	timeframe string
	start     string
	end       string
	capital   float64
	window    int
	gate      bool
	sentiment float64
	asJSON    bool
	trades    bool
}

func (f *runFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.rules, "rules", "", "strategy file (yaml/json) instead of the configured registry")
	fs.StringVar(&f.data, "data", "", "candle file (csv/json)")
	fs.StringVar(&f.symbol, "symbol", "", "symbol in the local candle store, e.g. BTCUSDT")
	fs.StringVar(&f.timeframe, "tf", "", "timeframe in the local candle store, e.g. 1h")
	fs.StringVar(&f.start, "start", "", "start time (unix or YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "end time (unix or YYYY-MM-DD)")
	fs.Float64Var(&f.capital, "capital", 0, "initial capital override")
	fs.IntVar(&f.window, "window", 0, "history window override")
	fs.BoolVar(&f.gate, "gate", false, "apply core risk rules before every entry")
	fs.Float64Var(&f.sentiment, "sentiment", 0, "sentiment used by the risk gate")
	fs.BoolVar(&f.asJSON, "json", false, "print JSON")
}

// request 根据已解析的参数构造请求；只有显式传入的 -gate/-sentiment 才覆盖配置。
func (f *runFlags) request(fs *flag.FlagSet) (backtest.RunRequest, error) {
	req := backtest.RunRequest{
		Strategy:       strings.TrimSpace(f.strategy),
		Symbol:         f.symbol,
		Timeframe:      f.timeframe,
		DataFile:       f.data,
		InitialCapital: f.capital,
		WindowSize:     f.window,
	}
	var err error
	if f.start != "" {
		if req.StartTS, err = market.ParseTimestamp(f.start); err != nil {
			return req, fmt.Errorf("-start: %w", err)
		}
	}
	if f.end != "" {
		if req.EndTS, err = market.ParseTimestamp(f.end); err != nil {
			return req, fmt.Errorf("-end: %w", err)
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "gate":
			gate := f.gate
			req.EnforceRiskGate = &gate
		case "sentiment":
			s := f.sentiment
			req.Sentiment = &s
		}
	})
	return req, nil
}

// fileDocuments 读取 -rules 指定的策略文件。
func (f *runFlags) fileDocuments() ([]strategy.Document, error) {
	if f.rules == "" {
		return nil, nil
	}
	return strategy.LoadFile(f.rules)
}

func runCommand(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var rf runFlags
	rf.register(fs)
	fs.StringVar(&rf.strategy, "strategy", "", "strategy name")
	fs.BoolVar(&rf.trades, "trades", false, "list every trade")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := rf.request(fs)
	if err != nil {
		return err
	}
	docs, err := rf.fileDocuments()
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		doc, err := pickDocument(docs, req.Strategy)
		if err != nil {
			return err
		}
		req.Rules = &doc
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	run, res, err := a.Service().Run(ctx, req)
	if err != nil {
		return err
	}
	if rf.asJSON {
		return writeJSON(out, map[string]any{"run": run, "trades": res.Trades})
	}
	printReport(out, run, res.Report)
	if rf.trades {
		printTrades(out, res.Trades)
	}
	return nil
}

func batchCommand(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	var rf runFlags
	rf.register(fs)
	fs.StringVar(&rf.strategy, "strategies", "", "comma separated strategy names (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	base, err := rf.request(fs)
	if err != nil {
		return err
	}
	docs, err := rf.fileDocuments()
	if err != nil {
		return err
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	reqs, err := batchRequests(base, splitNames(rf.strategy), docs, a.Registry().Names())
	if err != nil {
		return err
	}
	items, batchErr := a.Service().RunBatch(ctx, reqs)
	if rf.asJSON {
		runs := make([]backtest.Run, 0, len(items))
		for _, item := range items {
			runs = append(runs, item.Run)
		}
		if err := writeJSON(out, map[string]any{"runs": runs}); err != nil {
			return err
		}
		return batchErr
	}
	printBatch(out, items)
	return batchErr
}

// batchRequests 为每个策略复制一份基础请求；文件中的策略优先于注册表。
func batchRequests(base backtest.RunRequest, names []string, docs []strategy.Document, registered []string) ([]backtest.RunRequest, error) {
	var reqs []backtest.RunRequest
	if len(docs) > 0 {
		for _, doc := range docs {
			if len(names) > 0 && !slices.Contains(names, doc.Name) {
				continue
			}
			req := base
			d := doc
			req.Rules = &d
			reqs = append(reqs, req)
		}
	} else {
		if len(names) == 0 {
			names = registered
		}
		for _, name := range names {
			req := base
			req.Strategy = name
			reqs = append(reqs, req)
		}
	}
	if len(reqs) == 0 {
		return nil, errors.New("no strategies selected")
	}
	return reqs, nil
}

func fetchCommand(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "symbol, e.g. BTCUSDT")
	tf := fs.String("tf", "1h", "timeframe")
	start := fs.String("start", "", "start time (unix or YYYY-MM-DD)")
	end := fs.String("end", "", "end time (default: now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symbol == "" || *start == "" {
		return errors.New("-symbol 与 -start 必填")
	}
	req := backtest.FetchRequest{Symbol: *symbol, Timeframe: *tf}
	ms, err := market.ParseTimestamp(*start)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	req.Start = time.UnixMilli(ms).UTC()
	if *end != "" {
		ms, err := market.ParseTimestamp(*end)
		if err != nil {
			return fmt.Errorf("-end: %w", err)
		}
		req.End = time.UnixMilli(ms).UTC()
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Service().Fetch(ctx, req)
	if err != nil {
		return err
	}
	info, err := a.Service().Manifest(ctx, *symbol, *tf)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "fetched %d candles for %s %s; store now has %d rows [%s, %s]\n",
		n, info.Symbol, info.Timeframe, info.Rows, formatMillis(info.MinTime), formatMillis(info.MaxTime))
	return nil
}

func serveCommand(ctx context.Context, cfg *config.Config) error {
	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

func checkCommand(cfg *config.Config, out io.Writer) error {
	if err := cfg.Risk.Parameters().Check(); err != nil {
		return err
	}
	docs, err := strategy.LoadFile(cfg.Strategies.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config ok; %d strategies in %s\n", len(docs), cfg.Strategies.Path)
	for _, doc := range docs {
		fmt.Fprintf(out, "  - %s (%s, size=%g%% sl=%g%% tp=%g%%)\n",
			doc.Name, strings.ToUpper(doc.Direction), doc.PositionSizePercent, doc.StopLossPercent, doc.TakeProfitPercent)
	}
	return nil
}

func pickDocument(docs []strategy.Document, name string) (strategy.Document, error) {
	if name == "" {
		if len(docs) == 1 {
			return docs[0], nil
		}
		names := make([]string, 0, len(docs))
		for _, d := range docs {
			names = append(names, d.Name)
		}
		return strategy.Document{}, fmt.Errorf("file defines %d strategies, pick one with -strategy: %s", len(docs), strings.Join(names, ", "))
	}
	for _, d := range docs {
		if d.Name == name {
			return d, nil
		}
	}
	return strategy.Document{}, fmt.Errorf("strategy %q not found in file", name)
}

func printReport(w io.Writer, run backtest.Run, r backtest.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", run.ID)
	fmt.Fprintf(tw, "strategy\t%s\n", run.Strategy)
	fmt.Fprintf(tw, "data\t%s (%d candles)\n", run.DataSource, r.Candles)
	fmt.Fprintf(tw, "trades\t%d (win %d / loss %d, win rate %.2f%%)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate)
	fmt.Fprintf(tw, "capital\t%.2f -> %.2f\n", r.InitialCapital, r.FinalCapital)
	fmt.Fprintf(tw, "total profit\t%.4f (%.4f%%)\n", r.TotalProfit, r.TotalReturnPct)
	fmt.Fprintf(tw, "avg win / loss\t%.4f / %.4f\n", r.AvgWin, r.AvgLoss)
	fmt.Fprintf(tw, "profit factor\t%.4f\n", r.ProfitFactor)
	fmt.Fprintf(tw, "max drawdown\t%.4f%%\n", r.MaxDrawdownPct)
	fmt.Fprintf(tw, "sharpe\t%.4f\n", r.SharpeRatio)
	fmt.Fprintf(tw, "avg duration\t%.2fh\n", r.AvgTradeDurationHours)
	if run.Options.EnforceRiskGate {
		fmt.Fprintf(tw, "rejected entries\t%d\n", r.RejectedEntries)
	}
	if len(r.ExitReasons) > 0 {
		reasons := make([]string, 0, len(r.ExitReasons))
		for reason, n := range r.ExitReasons {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
		}
		sort.Strings(reasons)
		fmt.Fprintf(tw, "exits\t%s\n", strings.Join(reasons, " "))
	}
	fmt.Fprintf(tw, "profitable\t%t\n", r.Profitable)
	_ = tw.Flush()
}

func printTrades(w io.Writer, trades []backtest.Trade) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tdir\tentry\tprice\texit\tprice\treason\tprofit")
	for _, t := range trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%s\t%.4f\t%s\t%.4f\n",
			t.ID, t.Direction, t.EntryTime.Format(time.DateTime), t.EntryPrice,
			t.ExitTime.Format(time.DateTime), t.ExitPrice, t.ExitReason, t.Profit)
	}
	_ = tw.Flush()
}

func printBatch(w io.Writer, items []backtest.BatchItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "strategy\tstatus\ttrades\twin%\treturn%\tdrawdown%\tsharpe")
	for _, item := range items {
		r := item.Run.Report
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.4f\t%.4f\t%.4f\n",
			item.Run.Strategy, item.Run.Status, r.TotalTrades, r.WinRate, r.TotalReturnPct, r.MaxDrawdownPct, r.SharpeRatio)
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	raw = pretty.Pretty(raw)
	if f, ok := w.(*os.File); ok && f == os.Stdout {
		raw = pretty.Color(raw, nil)
	}
	_, err = w.Write(raw)
	return err
}

func splitNames(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.DateTime)
}
