package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantsignal/internal/backtest"
	"quantsignal/internal/logger"
	"quantsignal/internal/monitor"
	"quantsignal/internal/store/strategystore"
	"quantsignal/internal/strategy"
)

const DefaultAddr = ":9991"

// StrategyStore 是 HTTP 层需要的策略持久化能力。
type StrategyStore interface {
	List(ctx context.Context) ([]strategystore.Strategy, error)
	Get(ctx context.Context, id string) (strategystore.Strategy, bool, error)
	Add(ctx context.Context, name, description, code string) (string, error)
	Delete(ctx context.Context, id string) (bool, error)
	SetStatus(ctx context.Context, id string, status strategystore.Status) (bool, error)
}

// Generator turns a natural-language description into a strategy document.
type Generator interface {
	Enabled() bool
	Generate(ctx context.Context, description string) (string, error)
}

type Backtester interface {
	RunBacktest(ctx context.Context, instrument, name string, eval strategy.Evaluator, days int) (*backtest.Result, error)
	Scan(ctx context.Context, instruments []string, name, summary string, eval strategy.Evaluator, days int) (*backtest.ScanReport, error)
}

type RunRecorder interface {
	Record(ctx context.Context, instrument, strategyID, strategyName string, days int, res *backtest.Result) (backtest.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]backtest.RunRecord, error)
	GetRun(ctx context.Context, id string) (backtest.RunRecord, error)
}

// MonitorControl 暴露监控循环的只读状态与 reload 请求。
type MonitorControl interface {
	Status() monitor.Status
	RequestReload()
}

// Config 描述 HTTP Server 的依赖；除 Strategies 外均可为空，对应路由返回 503。
type Config struct {
	Addr        string
	Strategies  StrategyStore
	Synth       Generator
	Backtests   Backtester
	Runs        RunRecorder
	Monitor     MonitorControl
	Gatherer    prometheus.Gatherer
	Instruments []string
}

// Server 提供策略管理、回测与监控控制的 REST 接口。
type Server struct {
	cfg    Config
	router *gin.Engine
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Strategies == nil {
		return nil, errors.New("http server requires a strategy store")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, router: router}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.cfg.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	strategies := api.Group("/strategies")
	strategies.GET("", s.handleStrategyList)
	strategies.POST("", s.handleStrategyCreate)
	strategies.POST("/generate", s.handleStrategyGenerate)
	strategies.GET("/:id", s.handleStrategyDetail)
	strategies.DELETE("/:id", s.handleStrategyDelete)
	strategies.PATCH("/:id/status", s.handleStrategyStatus)

	api.POST("/backtest", s.handleBacktest)
	api.POST("/scan", s.handleScan)
	api.GET("/backtests", s.handleRunList)
	api.GET("/backtests/:id", s.handleRunDetail)

	api.GET("/monitor/status", s.handleMonitorStatus)
	api.POST("/monitor/reload", s.handleMonitorReload)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.cfg.Addr
}

// requestLogger 记录每个接口调用的状态与耗时。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http api listening on %s", s.cfg.Addr)

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
