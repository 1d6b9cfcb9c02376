package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrItemNotFound = errors.New("item not found")
	ErrNoBids       = errors.New("no bids found for item")
	ErrUserNotFound = errors.New("user not found")
)

// business logic errors
var (
	ErrBiddingClosed = errors.New("bidding closed")
	ErrAuthRequired  = errors.New("authentication required")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrBidTooLow     = errors.New("amount below minimum")
	ErrInvalidItem   = errors.New("invalid item")
	ErrForbidden     = errors.New("admin role required")
	ErrConflict      = errors.New("someone outbid you, refresh and retry")
)

// BidTooLowError carries the figures a bidder needs to resubmit
type BidTooLowError struct {
	MinRequired float64
	CurrentTop  float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: bid must be at least $%.2f (current top is $%.2f)", ErrBidTooLow, e.MinRequired, e.CurrentTop)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// CascadeDeleteError reports how far an item deletion got before failing
type CascadeDeleteError struct {
	ItemID      string
	BidsDeleted int
	BidsTotal   int
	Err         error
}

func (e *CascadeDeleteError) Error() string {
	return fmt.Sprintf("delete item %s: removed %d of %d bids: %v",
		e.ItemID, e.BidsDeleted, e.BidsTotal, e.Err)
}

func (e *CascadeDeleteError) Unwrap() error { return e.Err }
