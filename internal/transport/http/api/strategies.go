package apihttp

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quantsignal/internal/logger"
	"quantsignal/internal/store/strategystore"
	"quantsignal/internal/strategy"
)

type strategyView struct {
	strategystore.Strategy
	Summary      string `json:"summary"`
	CompileError string `json:"compile_error,omitempty"`
}

func viewOf(st strategystore.Strategy) strategyView {
	v := strategyView{Strategy: st}
	compiled, err := strategy.Compile(st.Code)
	if err != nil {
		v.CompileError = err.Error()
		return v
	}
	v.Summary = compiled.Summary
	return v
}

func (s *Server) handleStrategyList(c *gin.Context) {
	list, err := s.cfg.Strategies.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	views := make([]strategyView, 0, len(list))
	for _, st := range list {
		if status != "" && string(st.Status) != status {
			continue
		}
		views = append(views, viewOf(st))
	}
	c.JSON(http.StatusOK, gin.H{"strategies": views})
}

func (s *Server) handleStrategyDetail(c *gin.Context) {
	st, ok, err := s.cfg.Strategies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeError(c, fmt.Errorf("strategy %s: %w", c.Param("id"), errNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": viewOf(st)})
}

type createStrategyRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Code        string `json:"code" binding:"required"`
}

// handleStrategyCreate 只接受能编译的文档，存入后请求监控 reload。
func (s *Server) handleStrategyCreate(c *gin.Context) {
	var req createStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	compiled, err := strategy.Compile(req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := s.cfg.Strategies.Add(c.Request.Context(), req.Name, req.Description, req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	s.requestReload()
	logger.Infof("[api] strategy created ip=%s id=%s name=%s kind=%s", c.ClientIP(), id, req.Name, compiled.Kind)
	c.JSON(http.StatusCreated, gin.H{"id": id, "summary": compiled.Summary})
}

type generateRequest struct {
	Description string `json:"description" binding:"required"`
	Name        string `json:"name"`
	Save        bool   `json:"save"`
}

func (s *Server) handleStrategyGenerate(c *gin.Context) {
	if s.cfg.Synth == nil || !s.cfg.Synth.Enabled() {
		unavailable(c, "策略生成")
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	code, err := s.cfg.Synth.Generate(c.Request.Context(), req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"code": code, "summary": strategy.Describe(code)}
	if req.Save {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = req.Description
		}
		id, err := s.cfg.Strategies.Add(c.Request.Context(), name, req.Description, code)
		if err != nil {
			writeError(c, err)
			return
		}
		s.requestReload()
		resp["id"] = id
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStrategyDelete(c *gin.Context) {
	id := c.Param("id")
	ok, err := s.cfg.Strategies.Delete(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeError(c, fmt.Errorf("strategy %s: %w", id, errNotFound))
		return
	}
	s.requestReload()
	logger.Infof("[api] strategy deleted ip=%s id=%s", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type statusRequest struct {
	Status strategystore.Status `json:"status" binding:"required"`
}

func (s *Server) handleStrategyStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	ok, err := s.cfg.Strategies.SetStatus(c.Request.Context(), id, strategystore.Status(strings.ToLower(string(req.Status))))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeError(c, fmt.Errorf("strategy %s: %w", id, errNotFound))
		return
	}
	reloaded := s.requestReload()
	logger.Infof("[api] strategy status ip=%s id=%s status=%s", c.ClientIP(), id, req.Status)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status, "reload_requested": reloaded})
}

func (s *Server) requestReload() bool {
	if s.cfg.Monitor == nil {
		return false
	}
	s.cfg.Monitor.RequestReload()
	return true
}
