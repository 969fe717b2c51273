package backtesthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tradesim/internal/backtest"
	"tradesim/internal/logger"
	"tradesim/internal/market"
	"tradesim/internal/risk"
	"tradesim/internal/store/gormstore"
	"tradesim/internal/strategy"
	"tradesim/internal/types"

	"github.com/gin-gonic/gin"
)

// RunReader 读取已保存的回测结果。
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]backtest.Run, error)
	GetRun(ctx context.Context, id string) (backtest.Run, error)
	ListTrades(ctx context.Context, runID string) ([]backtest.Trade, error)
	ListEquity(ctx context.Context, runID string) ([]backtest.EquityPoint, error)
}

// Server 提供回测与风控相关的 HTTP API。
type Server struct {
	addr      string
	svc       *backtest.Service
	results   RunReader
	validator *risk.Validator
	sizer     *risk.Sizer
	router    *gin.Engine
}

// Config 描述回测 HTTP Server 的依赖。
type Config struct {
	Addr    string
	Svc     *backtest.Service
	Results RunReader
	Params  risk.Parameters
}

// NewServer 构建回测 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Svc == nil {
		return nil, errors.New("service 不能为空")
	}
	if err := cfg.Params.Check(); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:      cfg.Addr,
		svc:       cfg.Svc,
		results:   cfg.Results,
		validator: risk.NewValidator(cfg.Params),
		sizer:     risk.NewSizer(cfg.Params),
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.router.Group("/api/backtest")
	api.GET("/strategies", s.handleStrategies)
	api.GET("/data", s.handleManifest)
	api.POST("/runs", s.handleRunStart)
	api.POST("/runs/batch", s.handleRunBatch)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/equity", s.handleRunEquity)

	rk := s.router.Group("/api/risk")
	rk.GET("/params", s.handleRiskParams)
	rk.POST("/validate", s.handleRiskValidate)
	rk.POST("/size", s.handleRiskSize)
}

// Handler 返回底层 http.Handler，便于测试或挂载。
func (s *Server) Handler() http.Handler { return s.router }

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.svc.Strategies()})
}

func (s *Server) handleManifest(c *gin.Context) {
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe 必填"})
		return
	}
	info, err := s.svc.Manifest(c.Request.Context(), symbol, tf)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req backtest.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, res, err := s.svc.Run(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "run": run})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "trades": res.Trades, "equity": res.Equity})
}

func (s *Server) handleRunBatch(c *gin.Context) {
	var req struct {
		Runs []backtest.RunRequest `json:"runs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, err := s.svc.RunBatch(c.Request.Context(), req.Runs)
	runs := make([]gin.H, 0, len(items))
	for _, item := range items {
		entry := gin.H{"run": item.Run}
		if item.Err != nil {
			entry["error"] = item.Err.Error()
		}
		runs = append(runs, entry)
	}
	body := gin.H{"runs": runs}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRunList(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunEquity(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	equity, err := s.results.ListEquity(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": equity})
}

func (s *Server) handleRiskParams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"params": s.validator.Parameters()})
}

func (s *Server) handleRiskValidate(c *gin.Context) {
	var req risk.Proposal
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if dir, err := types.ParseDirection(string(req.Direction)); err == nil {
		req.Direction = dir
	}
	if v := s.validator.Validate(req); v != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "violation": v})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleRiskSize(c *gin.Context) {
	var req struct {
		Capital           float64 `json:"capital" binding:"required"`
		RiskPercent       float64 `json:"risk_percent"`
		EntryPrice        float64 `json:"entry_price"`
		TakeProfitPercent float64 `json:"take_profit_percent"` // 百分数，2 = 2%
		Direction         string  `json:"direction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Capital <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "capital 必须大于 0"})
		return
	}
	size := s.sizer.Size(req.Capital, req.RiskPercent)
	body := gin.H{"position_usd": size}
	if req.EntryPrice > 0 && req.TakeProfitPercent > 0 {
		dir, err := types.ParseDirection(req.Direction)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tp := risk.TakeProfitPrice(req.EntryPrice, req.TakeProfitPercent, dir)
		body["take_profit"] = tp
		body["stop_loss"] = s.sizer.StopLoss(req.EntryPrice, tp, dir)
		body["quantity"] = risk.Quantity(size, req.EntryPrice)
	}
	c.JSON(http.StatusOK, body)
}

// statusFor 将领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, strategy.ErrConfig), errors.Is(err, market.ErrData):
		return http.StatusBadRequest
	case errors.Is(err, gormstore.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Infof("[http] listening on %s", s.addr)
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
