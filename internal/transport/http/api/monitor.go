package apihttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quantsignal/internal/logger"
)

func (s *Server) handleMonitorStatus(c *gin.Context) {
	if s.cfg.Monitor == nil {
		unavailable(c, "监控")
		return
	}
	c.JSON(http.StatusOK, gin.H{"monitor": s.cfg.Monitor.Status()})
}

// handleMonitorReload 只设置标记，重新加载发生在下一个 tick 开始时。
func (s *Server) handleMonitorReload(c *gin.Context) {
	if s.cfg.Monitor == nil {
		unavailable(c, "监控")
		return
	}
	s.cfg.Monitor.RequestReload()
	logger.Infof("[api] monitor reload requested ip=%s", c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"reload_requested": true})
}
