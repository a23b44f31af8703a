package apihttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quantsignal/internal/backtest"
	"quantsignal/internal/gateway/synth"
	"quantsignal/internal/logger"
	"quantsignal/internal/market"
	"quantsignal/internal/store/strategystore"
	"quantsignal/internal/strategy"
)

var errNotFound = errors.New("not found")

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		compileErr *strategy.CompileError
		runtimeErr *strategy.RuntimeError
		inputErr   *backtest.InputError
		fetchErr   *market.FetchError
		persistErr *strategystore.PersistenceError
	)
	switch {
	case errors.Is(err, errNotFound), errors.Is(err, backtest.ErrRunNotFound), errors.Is(err, backtest.ErrNoHistory):
		return http.StatusNotFound
	case errors.As(err, &compileErr), errors.As(err, &inputErr), errors.As(err, &runtimeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, strategystore.ErrInvalidCode), errors.Is(err, strategystore.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, synth.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		logger.Errorf("[api] %s %s failed ip=%s err=%v", c.Request.Method, c.FullPath(), c.ClientIP(), err)
	} else {
		logger.Warnf("[api] %s %s rejected ip=%s err=%v", c.Request.Method, c.FullPath(), c.ClientIP(), err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " 未启用"})
}
