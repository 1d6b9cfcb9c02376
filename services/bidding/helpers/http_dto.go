package helpers

import (
	"encoding/json"
	"strconv"
	"time"

	model "silent-auction/internal/models"
)

// Request/Response DTOs

// PlaceBidRequest carries the raw amount as typed by the bidder; the engine
// parses and validates it so the rules apply in order.
type PlaceBidRequest struct {
	Amount any `json:"amount"`
}

// RawAmount renders the submitted amount as the string the engine parses
func (r PlaceBidRequest) RawAmount() string {
	switch v := r.Amount.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

type CreateItemRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	Image       string `json:"image" binding:"required"`
}

type BidResponse struct {
	BidID     string  `json:"bid_id"`
	ItemID    string  `json:"item_id"`
	UserID    string  `json:"user_id"`
	UserEmail string  `json:"user_email"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"created_at"`
}

// BidTooLowResponse tells a bidder what to resubmit
type BidTooLowResponse struct {
	MinRequired float64 `json:"min_required"`
	CurrentTop  float64 `json:"current_top"`
}

type CascadeDeleteResponse struct {
	ItemID      string `json:"item_id"`
	BidsDeleted int    `json:"bids_deleted"`
	BidsTotal   int    `json:"bids_total"`
}

func ToBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		ItemID:    bid.ItemID,
		UserID:    bid.UserID,
		UserEmail: bid.UserEmail,
		Amount:    bid.Amount,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, ToBidResponse(b))
	}
	return out
}
