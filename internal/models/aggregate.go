package models

import "time"

// NoEmail is stored on bids placed by identities without an email address
const NoEmail = "(no email)"

// BidTime returns the timestamp for a new bid on the item: now, or just after
// the item's last update when the clock has not moved past it, so bid times
// increase strictly per item.
func (i *AuctionItem) BidTime(now time.Time) time.Time {
	now = now.UTC()
	if !now.After(i.UpdatedAt) {
		return i.UpdatedAt.Add(time.Microsecond)
	}
	return now
}

// ApplyBid makes b the item's top bid
func (i *AuctionItem) ApplyBid(b Bid) {
	i.TopBidAmount = b.Amount
	i.TopBidUserID = ptr(b.UserID)
	i.TopBidUserEmail = ptr(b.UserEmail)
	i.UpdatedAt = b.CreatedAt
}

// SettleWinner records w as the item's winner and resyncs the top bid fields
// to it. A nil winner clears the winner fields and leaves the top bid alone.
func (i *AuctionItem) SettleWinner(w *Winner, now time.Time) {
	i.UpdatedAt = now
	if w == nil {
		i.clearWinner()
		return
	}
	i.WinnerUserID = ptr(w.UserID)
	i.WinnerUserEmail = ptr(w.UserEmail)
	i.WinnerAmount = ptr(w.Amount)
	i.TopBidAmount = w.Amount
	i.TopBidUserID = ptr(w.UserID)
	i.TopBidUserEmail = ptr(w.UserEmail)
}

// Close ends bidding on the item
func (i *AuctionItem) Close(now time.Time) {
	i.IsClosed = true
	i.ClosedAt = ptr(now)
	i.UpdatedAt = now
}

// Reopen resumes bidding and drops the declared winner. The ledger and the
// top bid are kept.
func (i *AuctionItem) Reopen(now time.Time) {
	i.IsClosed = false
	i.ClosedAt = nil
	i.clearWinner()
	i.UpdatedAt = now
}

func (i *AuctionItem) clearWinner() {
	i.WinnerUserID = nil
	i.WinnerUserEmail = nil
	i.WinnerAmount = nil
}

// WinnerFromBid is the winner a top bid produces
func WinnerFromBid(b Bid) *Winner {
	return &Winner{BidID: b.BidID, UserID: b.UserID, UserEmail: b.UserEmail, Amount: b.Amount}
}

func ptr[T any](v T) *T { return &v }
