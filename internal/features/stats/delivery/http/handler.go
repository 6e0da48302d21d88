package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"adboard-backend/internal/common/config"
	apperrors "adboard-backend/internal/common/errors"
	"adboard-backend/internal/common/middleware"
	"adboard-backend/internal/features/stats/service"
)

// ChannelRefresher triggers an immediate snapshot for one channel.
// Implemented by service.Collector.
type ChannelRefresher interface {
	RefreshChannel(ctx context.Context, channelID int64) error
}

type StatsHandler struct {
	service   *service.Service
	refresher ChannelRefresher
	cfg       *config.Config
}

func NewStatsHandler(svc *service.Service, refresher ChannelRefresher, cfg *config.Config) *StatsHandler {
	return &StatsHandler{service: svc, refresher: refresher, cfg: cfg}
}

func (h *StatsHandler) RegisterRoutes(router *gin.RouterGroup) {
	channels := router.Group("/channels")
	channels.Use(middleware.TelegramAuth(h.cfg))
	{
		channels.GET("/:id/stats", h.getStats)
		channels.GET("/:id/stats/history", h.getHistory)
	}

	admin := router.Group("/channels")
	admin.Use(middleware.TelegramAuth(h.cfg), middleware.RequireOperator(h.cfg))
	{
		admin.POST("/:id/stats/refresh", h.refresh)
	}
}

func (h *StatsHandler) channelID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		middleware.Abort(c, apperrors.NewValidationError("id", "must be a numeric channel id"))
		return 0, false
	}
	return id, true
}

func (h *StatsHandler) getStats(c *gin.Context) {
	id, ok := h.channelID(c)
	if !ok {
		return
	}
	stats, err := h.service.GetChannelStats(c.Request.Context(), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *StatsHandler) getHistory(c *gin.Context) {
	id, ok := h.channelID(c)
	if !ok {
		return
	}
	history, err := h.service.GetChannelHistory(c.Request.Context(), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": history})
}

func (h *StatsHandler) refresh(c *gin.Context) {
	id, ok := h.channelID(c)
	if !ok {
		return
	}
	if err := h.refresher.RefreshChannel(c.Request.Context(), id); err != nil {
		middleware.Abort(c, err)
		return
	}
	stats, err := h.service.GetChannelStats(c.Request.Context(), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
