package handler

import (
	"context"
	"net/http"

	model "silent-auction/internal/models"
	settlement "silent-auction/internal/settlementService"
	"silent-auction/services/bidding/helpers"
	"silent-auction/utils"

	"github.com/gin-gonic/gin"
)

// SettlementHandler serves the administrator operations on an auction
type SettlementHandler struct {
	service SettlementServiceInterface
}

func NewSettlementHandler(service SettlementServiceInterface) *SettlementHandler {
	return &SettlementHandler{service: service}
}

type settleFunc func(ctx context.Context, p *model.Principal, itemID string) (settlement.Result, error)

func (h *SettlementHandler) settle(c *gin.Context, handlerName string, fn settleFunc) {
	itemID := c.Param("item_id")
	p := helpers.PrincipalFrom(c)

	res, err := fn(c.Request.Context(), p, itemID)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"item_id": itemID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, res, res.Summary)
	helpers.LogSuccess(handlerName, res.Summary, map[string]any{
		"item_id":           itemID,
		"notification_sent": res.NotificationSent,
	})
}

// CloseAuctionHandler handles POST /admin/items/:item_id/close
func (h *SettlementHandler) CloseAuctionHandler(c *gin.Context) {
	h.settle(c, "CloseAuctionHandler", h.service.CloseAuction)
}

// ReopenAuctionHandler handles POST /admin/items/:item_id/reopen
func (h *SettlementHandler) ReopenAuctionHandler(c *gin.Context) {
	h.settle(c, "ReopenAuctionHandler", h.service.ReopenAuction)
}

// PreviewWinnerHandler handles POST /admin/items/:item_id/preview
func (h *SettlementHandler) PreviewWinnerHandler(c *gin.Context) {
	h.settle(c, "PreviewWinnerHandler", h.service.ComputeWinnerPreview)
}

// ListNotificationsHandler handles GET /admin/notifications
func (h *SettlementHandler) ListNotificationsHandler(c *gin.Context) {
	notes, err := h.service.ListNotifications(c.Request.Context(), helpers.PrincipalFrom(c))
	if err != nil {
		helpers.RespondError(c, "ListNotificationsHandler", err, nil)
		return
	}
	if notes == nil {
		notes = []model.Notification{}
	}
	utils.JSONResponse(c, http.StatusOK, notes, "notifications retrieved successfully")
}

// StreamNotificationsHandler handles GET /admin/notifications/stream
func (h *SettlementHandler) StreamNotificationsHandler(c *gin.Context) {
	feed, err := h.service.WatchNotifications(c.Request.Context(), helpers.PrincipalFrom(c))
	if err != nil {
		helpers.RespondError(c, "StreamNotificationsHandler", err, nil)
		return
	}
	streamFeed(c, "StreamNotificationsHandler", "notifications", feed)
}
