package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"silent-auction/internal/biddingerrors"
	"silent-auction/internal/models"
	"silent-auction/internal/money"
	"silent-auction/internal/repository"
	"silent-auction/utils"
)

// DefaultMaxAttempts bounds how often a bid is re-validated after losing a race
const DefaultMaxAttempts = 5

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo        repository.AuctionDB
	maxAttempts int
	now         func() time.Time
}

type Option func(*BiddingService)

// WithMaxAttempts sets how many times a conflicting bid is retried
func WithMaxAttempts(n int) Option {
	return func(s *BiddingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock replaces the server clock used for bid timestamps
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:        repo,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid validates a bid against the item's current state and records it.
// The ledger append and the top bid update commit together; if another
// writer changed the item first, the bid is re-validated against the fresh
// state, up to the configured number of attempts.
func (s *BiddingService) PlaceBid(ctx context.Context, itemID string, bidder *models.Identity, rawAmount string) (models.Bid, error) {
	if itemID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty item ID", biddingerrors.ErrItemNotFound)
	}

	var placed models.Bid
	attempts := 0
	err := repository.WithRetry(ctx, s.maxAttempts, func() error {
		attempts++
		return s.repo.RunInTx(ctx, func(tx repository.AuctionTx) error {
			item, err := tx.GetItem(itemID)
			if err != nil {
				return err
			}
			amount, err := validateBid(item, bidder, rawAmount)
			if err != nil {
				return err
			}

			bid := models.Bid{
				BidID:     utils.GenerateID(),
				ItemID:    itemID,
				UserID:    bidder.UserID,
				UserEmail: bidderEmail(bidder),
				Amount:    amount,
				CreatedAt: item.BidTime(s.now()),
			}
			if err := tx.AppendBid(bid); err != nil {
				return err
			}
			item.ApplyBid(bid)
			if err := tx.PutItem(item); err != nil {
				return err
			}
			placed = bid
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, biddingerrors.ErrConflict) {
			utils.Warn("service: bid lost every retry", map[string]any{"item_id": itemID, "attempts": attempts})
		}
		return models.Bid{}, fmt.Errorf("service: failed to place bid on item %s: %w", itemID, err)
	}

	utils.Debug("service: bid placed", map[string]any{
		"item_id":  itemID,
		"bid_id":   placed.BidID,
		"amount":   placed.Amount,
		"attempts": attempts,
	})
	return placed, nil
}

// validateBid applies the acceptance rules in order; the first failure wins
func validateBid(item models.AuctionItem, bidder *models.Identity, rawAmount string) (float64, error) {
	if item.IsClosed {
		return 0, fmt.Errorf("service: %w - item %s is closed", biddingerrors.ErrBiddingClosed, item.ItemID)
	}
	if bidder == nil || strings.TrimSpace(bidder.UserID) == "" {
		return 0, fmt.Errorf("service: %w - sign in to bid", biddingerrors.ErrAuthRequired)
	}
	amount, err := money.Parse(rawAmount)
	if err != nil {
		return 0, fmt.Errorf("service: %w - %v", biddingerrors.ErrInvalidAmount, err)
	}
	if !money.MeetsIncrement(amount, item.TopBidAmount) {
		return 0, &biddingerrors.BidTooLowError{
			MinRequired: money.MinimumNextBid(item.TopBidAmount),
			CurrentTop:  item.TopBidAmount,
		}
	}
	return amount, nil
}

func bidderEmail(id *models.Identity) string {
	if email := strings.TrimSpace(id.Email); email != "" {
		return email
	}
	return models.NoEmail
}

// GetBidsForItem returns all bids for an item, newest first
func (s *BiddingService) GetBidsForItem(ctx context.Context, itemID string) ([]models.Bid, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, fmt.Errorf("service: failed to get bids for item %s: %w", itemID, err)
	}

	bids, err := s.repo.GetBidsByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for item %s: %w", itemID, err)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for an item, earliest first on ties.
// It reads the ledger only and changes nothing.
func (s *BiddingService) GetWinningBid(ctx context.Context, itemID string) (models.Bid, error) {
	if itemID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty item ID", biddingerrors.ErrItemNotFound)
	}

	winningBid, err := s.repo.GetWinningBid(ctx, itemID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for item %s: %w", itemID, err)
	}
	return winningBid, nil
}

// WatchBids streams an item's bid history until the feed is cancelled
func (s *BiddingService) WatchBids(ctx context.Context, itemID string) (*repository.Feed[[]models.Bid], error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, fmt.Errorf("service: failed to watch bids for item %s: %w", itemID, err)
	}
	feed, err := s.repo.WatchBids(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to watch bids for item %s: %w", itemID, err)
	}
	return feed, nil
}
