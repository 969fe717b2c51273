package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradesim/internal/backtest"
	storemodel "tradesim/internal/store/model"
	"tradesim/internal/strategy"
	"tradesim/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type (
	runModel    = storemodel.RunModel
	tradeModel  = storemodel.TradeModel
	equityModel = storemodel.EquityModel
)

// ErrRunNotFound 表示 run ID 不存在。
var ErrRunNotFound = errors.New("run not found")

const insertBatchSize = 500

// ResultStore 使用 Gorm + SQLite 保存回测结果。
type ResultStore struct {
	db *gorm.DB
}

var _ backtest.ResultSink = (*ResultStore)(nil)

// NewResultStore 打开（或创建）结果库并迁移表结构。
func NewResultStore(path string) (*ResultStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("result store: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &equityModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：HTTP 读与批量写少量并行即可。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 在一个事务里写入 run、交易与权益曲线；重复保存同一 ID 会覆盖旧数据。
func (s *ResultStore) SaveRun(ctx context.Context, run backtest.Run, res backtest.Result) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("result store 未初始化")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id 必填")
	}
	rm, err := newRunModel(run)
	if err != nil {
		return err
	}
	trades := make([]tradeModel, 0, len(res.Trades))
	for _, t := range res.Trades {
		trades = append(trades, newTradeModel(run.ID, t))
	}
	equity := make([]equityModel, 0, len(res.Equity))
	for _, p := range res.Equity {
		equity = append(equity, equityModel{RunID: run.ID, TS: p.Time.UnixMilli(), Equity: p.Equity})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&rm).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&tradeModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&equityModel{}).Error; err != nil {
			return err
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(&trades, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(equity) > 0 {
			if err := tx.CreateInBatches(&equity, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRuns 按创建时间倒序返回最近的 run。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]backtest.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("result store 未初始化")
	}
	if limit <= 0 {
		limit = 50
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.Run, 0, len(models))
	for _, m := range models {
		run, err := runModelToRun(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (backtest.Run, error) {
	if s == nil || s.db == nil {
		return backtest.Run{}, fmt.Errorf("result store 未初始化")
	}
	var m runModel
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backtest.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return backtest.Run{}, err
	}
	return runModelToRun(m)
}

// ListTrades 返回 run 的全部交易（按序号）。
func (s *ResultStore) ListTrades(ctx context.Context, runID string) ([]backtest.Trade, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	var models []tradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.Trade, 0, len(models))
	for _, m := range models {
		out = append(out, tradeModelToTrade(m))
	}
	return out, nil
}

// ListEquity 返回 run 的权益曲线（按时间）。
func (s *ResultStore) ListEquity(ctx context.Context, runID string) ([]backtest.EquityPoint, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	var models []equityModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("ts ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.EquityPoint, 0, len(models))
	for _, m := range models {
		out = append(out, backtest.EquityPoint{Time: time.UnixMilli(m.TS).UTC(), Equity: m.Equity})
	}
	return out, nil
}

// --------------------------- Model Helpers ------------------------------

func newRunModel(run backtest.Run) (runModel, error) {
	report, err := json.Marshal(run.Report)
	if err != nil {
		return runModel{}, err
	}
	rules, err := json.Marshal(run.Rules)
	if err != nil {
		return runModel{}, err
	}
	opts, err := json.Marshal(run.Options)
	if err != nil {
		return runModel{}, err
	}
	return runModel{
		ID:              run.ID,
		Strategy:        run.Strategy,
		Symbol:          run.Symbol,
		Timeframe:       run.Timeframe,
		DataSource:      run.DataSource,
		Status:          run.Status,
		Message:         run.Message,
		TotalTrades:     run.Report.TotalTrades,
		TotalProfit:     run.Report.TotalProfit,
		TotalReturnPct:  run.Report.TotalReturnPct,
		WinRate:         run.Report.WinRate,
		MaxDrawdownPct:  run.Report.MaxDrawdownPct,
		SharpeRatio:     run.Report.SharpeRatio,
		ReportJSON:      datatypes.JSON(report),
		RulesJSON:       datatypes.JSON(rules),
		OptionsJSON:     datatypes.JSON(opts),
		CreatedAtUnix:   unixMilliOrZero(run.CreatedAt),
		CompletedAtUnix: unixMilliOrZero(run.CompletedAt),
	}, nil
}

func runModelToRun(m runModel) (backtest.Run, error) {
	run := backtest.Run{
		ID:          m.ID,
		Strategy:    m.Strategy,
		Symbol:      m.Symbol,
		Timeframe:   m.Timeframe,
		DataSource:  m.DataSource,
		Status:      m.Status,
		Message:     m.Message,
		CreatedAt:   timeOrZero(m.CreatedAtUnix),
		CompletedAt: timeOrZero(m.CompletedAtUnix),
	}
	if err := unmarshalJSON(m.ReportJSON, &run.Report); err != nil {
		return backtest.Run{}, fmt.Errorf("decode report of run %s: %w", m.ID, err)
	}
	var rules strategy.Document
	if err := unmarshalJSON(m.RulesJSON, &rules); err != nil {
		return backtest.Run{}, fmt.Errorf("decode rules of run %s: %w", m.ID, err)
	}
	run.Rules = rules
	if err := unmarshalJSON(m.OptionsJSON, &run.Options); err != nil {
		return backtest.Run{}, fmt.Errorf("decode options of run %s: %w", m.ID, err)
	}
	return run, nil
}

func newTradeModel(runID string, t backtest.Trade) tradeModel {
	return tradeModel{
		RunID:         runID,
		Seq:           t.ID,
		Direction:     t.Direction.String(),
		EntryTime:     unixMilliOrZero(t.EntryTime),
		EntryPrice:    t.EntryPrice,
		Quantity:      t.Quantity,
		Notional:      t.Notional,
		StopLoss:      t.StopLoss,
		TakeProfit:    t.TakeProfit,
		ExitTime:      unixMilliOrZero(t.ExitTime),
		ExitPrice:     t.ExitPrice,
		ExitReason:    string(t.ExitReason),
		Profit:        t.Profit,
		ProfitPercent: t.ProfitPercent,
		DurationMs:    t.Duration.Milliseconds(),
	}
}

func tradeModelToTrade(m tradeModel) backtest.Trade {
	return backtest.Trade{
		ID:            m.Seq,
		Direction:     types.Direction(m.Direction),
		Status:        backtest.TradeClosed,
		EntryTime:     timeOrZero(m.EntryTime),
		EntryPrice:    m.EntryPrice,
		Quantity:      m.Quantity,
		Notional:      m.Notional,
		StopLoss:      m.StopLoss,
		TakeProfit:    m.TakeProfit,
		ExitTime:      timeOrZero(m.ExitTime),
		ExitPrice:     m.ExitPrice,
		ExitReason:    backtest.ExitReason(m.ExitReason),
		Profit:        m.Profit,
		ProfitPercent: m.ProfitPercent,
		Duration:      time.Duration(m.DurationMs) * time.Millisecond,
	}
}

func unmarshalJSON(data datatypes.JSON, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOrZero(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
