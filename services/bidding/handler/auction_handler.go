package handler

import (
	"net/http"

	auction "silent-auction/internal/auctionService"
	"silent-auction/services/bidding/helpers"
	"silent-auction/utils"

	"github.com/gin-gonic/gin"
)

// AuctionHandler serves the item catalogue
type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// ListItemsHandler handles GET /items
func (h *AuctionHandler) ListItemsHandler(c *gin.Context) {
	items, err := h.service.ListItems(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "ListItemsHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, items, "items retrieved successfully")
	helpers.LogSuccess("ListItemsHandler", "items retrieved successfully", map[string]any{"count": len(items)})
}

// GetItemHandler handles GET /items/:item_id
func (h *AuctionHandler) GetItemHandler(c *gin.Context) {
	itemID := c.Param("item_id")
	item, err := h.service.GetItem(c.Request.Context(), itemID)
	if err != nil {
		helpers.RespondError(c, "GetItemHandler", err, map[string]any{"item_id": itemID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, item, "item retrieved successfully")
}

// StreamItemsHandler handles GET /items/stream
func (h *AuctionHandler) StreamItemsHandler(c *gin.Context) {
	feed, err := h.service.WatchItems(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "StreamItemsHandler", err, nil)
		return
	}
	streamFeed(c, "StreamItemsHandler", "items", feed)
}

// CreateItemHandler handles POST /admin/items
func (h *AuctionHandler) CreateItemHandler(c *gin.Context) {
	var req helpers.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateItemHandler", err)
		return
	}

	item, err := h.service.CreateItem(c.Request.Context(), helpers.PrincipalFrom(c), auction.NewItem{
		Title:       req.Title,
		Description: req.Description,
		Image:       req.Image,
	})
	if err != nil {
		helpers.RespondError(c, "CreateItemHandler", err, map[string]any{"title": req.Title})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, item, "item created successfully")
	helpers.LogSuccess("CreateItemHandler", "item created successfully", map[string]any{"item_id": item.ItemID})
}

// DeleteItemHandler handles DELETE /admin/items/:item_id
func (h *AuctionHandler) DeleteItemHandler(c *gin.Context) {
	itemID := c.Param("item_id")
	if err := h.service.DeleteItem(c.Request.Context(), helpers.PrincipalFrom(c), itemID); err != nil {
		helpers.RespondError(c, "DeleteItemHandler", err, map[string]any{"item_id": itemID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"item_id": itemID}, "item deleted successfully")
	helpers.LogSuccess("DeleteItemHandler", "item deleted successfully", map[string]any{"item_id": itemID})
}
