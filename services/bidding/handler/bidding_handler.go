package handler

import (
	"errors"
	"net/http"

	"silent-auction/internal/biddingerrors"
	model "silent-auction/internal/models"
	"silent-auction/services/bidding/helpers"
	"silent-auction/utils"

	"github.com/gin-gonic/gin"
)

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// RecordBidHandler handles POST /items/:item_id/bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	itemID := c.Param("item_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}

	// anonymous callers reach the engine, which reports missing auth after
	// checking whether bidding is closed
	bidder := helpers.IdentityFrom(c)

	bid, err := h.service.PlaceBid(c.Request.Context(), itemID, bidder, req.RawAmount())
	if err != nil {
		fields := map[string]any{"item_id": itemID, "amount": req.RawAmount()}
		if bidder != nil {
			fields["user_id"] = bidder.UserID
		}
		helpers.RespondError(c, "RecordBidHandler", err, fields)
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":  bid.BidID,
		"item_id": bid.ItemID,
		"user_id": bid.UserID,
		"amount":  bid.Amount,
	})
}

// GetBidsByItemHandler handles GET /items/:item_id/bids
func (h *BiddingHandler) GetBidsByItemHandler(c *gin.Context) {
	itemID := c.Param("item_id")
	bids, err := h.service.GetBidsForItem(c.Request.Context(), itemID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		helpers.RespondError(c, "GetBidsByItemHandler", err, map[string]any{"item_id": itemID})
		return
	}

	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByItemHandler", "bids retrieved successfully", map[string]any{
		"item_id": itemID,
		"count":   len(bids),
	})
}

// GetWinningBidHandler handles GET /items/:item_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	itemID := c.Param("item_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), itemID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"item_id": itemID})
			return
		}
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"item_id": itemID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":  bid.BidID,
		"item_id": bid.ItemID,
		"user_id": bid.UserID,
		"amount":  bid.Amount,
	})
}

// StreamBidsHandler handles GET /items/:item_id/bids/stream
func (h *BiddingHandler) StreamBidsHandler(c *gin.Context) {
	itemID := c.Param("item_id")
	feed, err := h.service.WatchBids(c.Request.Context(), itemID)
	if err != nil {
		helpers.RespondError(c, "StreamBidsHandler", err, map[string]any{"item_id": itemID})
		return
	}
	streamFeed(c, "StreamBidsHandler", "bids", feed)
}
