package apihttp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"quantsignal/internal/analysis/visual"
	"quantsignal/internal/logger"
	"quantsignal/internal/pkg/symbol"
	"quantsignal/internal/strategy"
)

// backtestRequest 二选一：strategy_id 引用已存策略，或直接提交 code。
type backtestRequest struct {
	Instrument string `json:"instrument" binding:"required"`
	StrategyID string `json:"strategy_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Days       int    `json:"days"`
	Save       bool   `json:"save"`
}

type resolvedStrategy struct {
	ID       string
	Name     string
	Compiled *strategy.Compiled
}

func (s *Server) resolveStrategy(ctx context.Context, id, code, name string) (resolvedStrategy, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		st, ok, err := s.cfg.Strategies.Get(ctx, id)
		if err != nil {
			return resolvedStrategy{}, err
		}
		if !ok {
			return resolvedStrategy{}, fmt.Errorf("strategy %s: %w", id, errNotFound)
		}
		code = st.Code
		if strings.TrimSpace(name) == "" {
			name = st.Name
		}
	}
	compiled, err := strategy.Compile(code)
	if err != nil {
		return resolvedStrategy{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = compiled.Summary
	}
	return resolvedStrategy{ID: id, Name: name, Compiled: compiled}, nil
}

// handleBacktest 运行单个回测；?format=html 返回权益曲线页面。
func (s *Server) handleBacktest(c *gin.Context) {
	if s.cfg.Backtests == nil {
		unavailable(c, "回测")
		return
	}
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StrategyID == "" && strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategy_id 或 code 必填"})
		return
	}
	inst := symbol.Normalize(req.Instrument)
	if !symbol.IsValid(inst) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid instrument %q", req.Instrument)})
		return
	}
	ctx := c.Request.Context()
	st, err := s.resolveStrategy(ctx, req.StrategyID, req.Code, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := s.cfg.Backtests.RunBacktest(ctx, inst, st.Name, st.Compiled, req.Days)
	if err != nil {
		writeError(c, err)
		return
	}
	logger.Infof("[api] backtest ip=%s instrument=%s strategy=%s total=%.4f sharpe=%.2f", c.ClientIP(), inst, st.Name, res.Stats.TotalReturn, res.Stats.SharpeRatio)

	if strings.EqualFold(c.Query("format"), "html") {
		var buf bytes.Buffer
		if err := visual.RenderEquityHTML(&buf, inst+" "+st.Name, res); err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
		return
	}

	resp := gin.H{"instrument": inst, "strategy": st.Name, "stats": res.Stats, "options": res.Options}
	if req.Save && s.cfg.Runs != nil {
		rec, err := s.cfg.Runs.Record(ctx, inst, st.ID, st.Name, req.Days, res)
		if err != nil {
			writeError(c, err)
			return
		}
		resp["run"] = rec
	}
	if c.Query("frame") == "1" {
		resp["frame"] = res.Frame
	}
	c.JSON(http.StatusOK, resp)
}

type scanRequest struct {
	Instruments []string `json:"instruments"`
	StrategyID  string   `json:"strategy_id"`
	Code        string   `json:"code"`
	Days        int      `json:"days"`
}

type scanRow struct {
	Instrument  string          `json:"instrument"`
	LastSignal  strategy.Signal `json:"last_signal"`
	TotalReturn float64         `json:"total_return"`
	SharpeRatio float64         `json:"sharpe_ratio"`
	MaxDrawdown float64         `json:"max_drawdown"`
	Error       string          `json:"error,omitempty"`
}

func (s *Server) handleScan(c *gin.Context) {
	if s.cfg.Backtests == nil {
		unavailable(c, "回测")
		return
	}
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, raw := range req.Instruments {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) != "" && symbol.Normalize(part) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid instrument %q", part)})
				return
			}
		}
	}
	instruments := symbol.NormalizeList(req.Instruments)
	if len(instruments) == 0 {
		instruments = s.cfg.Instruments
	}
	if len(instruments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instruments 必填"})
		return
	}
	ctx := c.Request.Context()
	st, err := s.resolveStrategy(ctx, req.StrategyID, req.Code, "")
	if err != nil {
		writeError(c, err)
		return
	}
	report, err := s.cfg.Backtests.Scan(ctx, instruments, st.Name, st.Compiled.Summary, st.Compiled, req.Days)
	if err != nil {
		writeError(c, err)
		return
	}
	rows := make([]scanRow, 0, len(report.Items))
	for _, it := range report.Items {
		row := scanRow{Instrument: it.Instrument}
		if it.Err != nil {
			row.Error = it.Err.Error()
		} else if it.Result != nil {
			row.LastSignal = it.Result.Stats.LastSignal
			row.TotalReturn = it.Result.Stats.TotalReturn
			row.SharpeRatio = it.Result.Stats.SharpeRatio
			row.MaxDrawdown = it.Result.Stats.MaxDrawdown
		}
		rows = append(rows, row)
	}
	hits := make([]string, 0)
	for _, it := range report.Hits() {
		hits = append(hits, it.Instrument)
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy":     report.Strategy,
		"summary":      report.Summary,
		"days":         report.Days,
		"generated_at": report.GeneratedAt,
		"items":        rows,
		"hits":         hits,
	})
}

func (s *Server) handleRunList(c *gin.Context) {
	if s.cfg.Runs == nil {
		unavailable(c, "结果存储")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.cfg.Runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if s.cfg.Runs == nil {
		unavailable(c, "结果存储")
		return
	}
	run, err := s.cfg.Runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}
