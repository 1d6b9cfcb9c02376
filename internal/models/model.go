package models

import "time"

// Role is the capability a user holds in the auction
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBidder Role = "bidder"
)

// Identity is what the authentication provider returns for a signed-in user
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// User is the stored profile backing role lookups
type User struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is an identity with its role resolved once per request.
// Operations that need a capability take a Principal explicitly.
type Principal struct {
	Identity
	Role Role `json:"role"`
}

// IsAdmin reports whether the principal may run administrator operations
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// AuctionItem represents an auction item with its denormalized leaderboard
type AuctionItem struct {
	ItemID          string     `json:"item_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Image           string     `json:"image"`
	TopBidAmount    float64    `json:"top_bid_amount"`
	TopBidUserID    *string    `json:"top_bid_user_id"`
	TopBidUserEmail *string    `json:"top_bid_user_email"`
	IsClosed        bool       `json:"is_closed"`
	WinnerUserID    *string    `json:"winner_user_id"`
	WinnerUserEmail *string    `json:"winner_user_email"`
	WinnerAmount    *float64   `json:"winner_amount"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ClosedAt        *time.Time `json:"closed_at"`
}

// Bid represents a user's bid on an item
type Bid struct {
	BidID     string    `json:"bid_id"`
	ItemID    string    `json:"item_id"`
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Winner is the outcome of a winner declaration
type Winner struct {
	BidID     string  `json:"bid_id"`
	UserID    string  `json:"user_id"`
	UserEmail string  `json:"user_email"`
	Amount    float64 `json:"amount"`
}

// Notification is a write-once settlement message addressed to a winner
type Notification struct {
	NotificationID string    `json:"notification_id"`
	To             string    `json:"to"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	ItemID         string    `json:"item_id"`
	SentAt         time.Time `json:"sent_at"`
}
