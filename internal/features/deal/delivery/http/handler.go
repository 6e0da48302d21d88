package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"adboard-backend/internal/common/config"
	apperrors "adboard-backend/internal/common/errors"
	"adboard-backend/internal/common/middleware"
	"adboard-backend/internal/features/deal/service"
)

type DealHandler struct {
	service *service.Service
	cfg     *config.Config
}

func NewDealHandler(svc *service.Service, cfg *config.Config) *DealHandler {
	return &DealHandler{service: svc, cfg: cfg}
}

func (h *DealHandler) RegisterRoutes(router *gin.RouterGroup) {
	deals := router.Group("/deals")
	deals.Use(middleware.TelegramAuth(h.cfg))
	{
		deals.POST("", h.createDeal)
		deals.GET("/:id", h.getDeal)
		deals.GET("/:id/timeline", h.getTimeline)
		deals.POST("/:id/accept", h.accept)
		deals.POST("/:id/reject", h.reject)
		deals.POST("/:id/cancel", h.cancel)
		deals.POST("/:id/creative", h.submitCreative)
		deals.POST("/:id/creative/approve", h.approveCreative)
		deals.POST("/:id/creative/revision", h.requestRevision)
		deals.POST("/:id/posted", h.markPosted)
		deals.POST("/:id/complete", h.confirmCompletion)
		deals.POST("/:id/dispute", h.openDispute)
	}

	admin := router.Group("/deals")
	admin.Use(middleware.TelegramAuth(h.cfg), middleware.RequireOperator(h.cfg))
	{
		admin.POST("/:id/dispute/resolve", h.resolveDispute)
	}

	// Payment processor callback; authenticated by shared secret, not init data.
	internal := router.Group("/internal")
	internal.Use(middleware.WebhookSecret(h.cfg.Ton.WebhookSecret))
	{
		internal.POST("/escrow/funding", h.escrowFunding)
	}
}

func (h *DealHandler) dealID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.Abort(c, apperrors.NewValidationError("id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

type createDealRequest struct {
	OwnerID       int64      `json:"owner_id" binding:"required"`
	ChannelID     int64      `json:"channel_id" binding:"required"`
	AdFormat      string     `json:"ad_format" binding:"required"`
	AmountNano    int64      `json:"amount_nano" binding:"required"`
	DurationHours int        `json:"duration_hours"`
	Permanent     bool       `json:"permanent"`
	Brief         string     `json:"brief" binding:"required"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	RefundAddress string     `json:"refund_address" binding:"required"`
	PayoutAddress string     `json:"payout_address" binding:"required"`
}

func (h *DealHandler) createDeal(c *gin.Context) {
	var req createDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.NewValidationError("body", err.Error()))
		return
	}

	deal, err := h.service.CreateDeal(c.Request.Context(), service.CreateDealInput{
		AdvertiserID:  middleware.UserID(c),
		OwnerID:       req.OwnerID,
		ChannelID:     req.ChannelID,
		AdFormat:      req.AdFormat,
		AmountNano:    req.AmountNano,
		DurationHours: req.DurationHours,
		Permanent:     req.Permanent,
		Brief:         req.Brief,
		ScheduledAt:   req.ScheduledAt,
		RefundAddress: req.RefundAddress,
		PayoutAddress: req.PayoutAddress,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, deal)
}

func (h *DealHandler) getDeal(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	deal, err := h.service.GetDeal(c.Request.Context(), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) getTimeline(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	timeline, err := h.service.GetTimeline(c.Request.Context(), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": timeline})
}

func (h *DealHandler) accept(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	deal, err := h.service.Accept(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) reject(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	deal, err := h.service.Reject(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) cancel(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	deal, err := h.service.Cancel(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type submitCreativeRequest struct {
	CreativeRef string `json:"creative_ref" binding:"required"`
}

func (h *DealHandler) submitCreative(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	var req submitCreativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	deal, err := h.service.SubmitCreative(c.Request.Context(), id, middleware.UserID(c), req.CreativeRef)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type approveCreativeRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (h *DealHandler) approveCreative(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	var req approveCreativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	deal, err := h.service.ApproveCreative(c.Request.Context(), id, middleware.UserID(c), req.ScheduledAt)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type revisionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *DealHandler) requestRevision(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	var req revisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	deal, err := h.service.RequestRevision(c.Request.Context(), id, middleware.UserID(c), req.Reason)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type markPostedRequest struct {
	MessageID int64 `json:"message_id" binding:"required"`
	Pinned    bool  `json:"pinned"`
}

func (h *DealHandler) markPosted(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	var req markPostedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	deal, err := h.service.MarkPosted(c.Request.Context(), id, middleware.UserID(c), req.MessageID, req.Pinned)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) confirmCompletion(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	deal, err := h.service.ConfirmCompletion(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type disputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *DealHandler) openDispute(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	deal, err := h.service.OpenDispute(c.Request.Context(), id, middleware.UserID(c), req.Reason)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type resolveDisputeRequest struct {
	OwnerAmount  int64 `json:"owner_amount"`
	RefundAmount int64 `json:"refund_amount"`
}

func (h *DealHandler) resolveDispute(c *gin.Context) {
	id, ok := h.dealID(c)
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	deal, err := h.service.ResolveDispute(c.Request.Context(), id, middleware.UserID(c), req.OwnerAmount, req.RefundAmount)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type escrowFundingRequest struct {
	DealRef string `json:"deal_ref" binding:"required"`
}

func (h *DealHandler) escrowFunding(c *gin.Context) {
	var req escrowFundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	deal, err := h.service.ConfirmFundingByRef(c.Request.Context(), req.DealRef)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}
