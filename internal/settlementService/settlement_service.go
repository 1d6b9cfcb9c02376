// Package settlement declares winners from the bid ledger and moves items
// between the open and closed states.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"silent-auction/internal/biddingerrors"
	"silent-auction/internal/models"
	"silent-auction/internal/money"
	"silent-auction/internal/repository"
	"silent-auction/utils"
)

const (
	DefaultMaxAttempts  = 5
	NotificationSubject = "You won a Silent Auction item 🎉"
)

// Result is the outcome of a settlement operation
type Result struct {
	Item             models.AuctionItem `json:"item"`
	Winner           *models.Winner     `json:"winner"`
	NotificationSent bool               `json:"notification_sent"`
	Summary          string             `json:"summary"`
}

// SettlementService runs the administrator side of an auction
type SettlementService struct {
	repo        repository.AuctionDB
	maxAttempts int
	now         func() time.Time
}

type Option func(*SettlementService)

func WithMaxAttempts(n int) Option {
	return func(s *SettlementService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *SettlementService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSettlementService(repo repository.AuctionDB, opts ...Option) *SettlementService {
	s := &SettlementService{
		repo:        repo,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireAdmin(p *models.Principal, op string) error {
	if !p.IsAdmin() {
		return fmt.Errorf("service: %w - %s", biddingerrors.ErrForbidden, op)
	}
	return nil
}

// settle reads the ledger's top bid and writes it to the item as the winner,
// resyncing the top bid fields. An empty ledger clears the winner.
func (s *SettlementService) settle(tx repository.AuctionTx, itemID string, now time.Time) (models.AuctionItem, *models.Winner, error) {
	item, err := tx.GetItem(itemID)
	if err != nil {
		return models.AuctionItem{}, nil, err
	}

	var winner *models.Winner
	top, err := tx.TopBid(itemID)
	switch {
	case err == nil:
		winner = models.WinnerFromBid(top)
	case !errors.Is(err, biddingerrors.ErrNoBids):
		return models.AuctionItem{}, nil, err
	}

	item.SettleWinner(winner, now)
	return item, winner, nil
}

// run executes fn in a transaction, retrying when a concurrent bid or
// settlement invalidated what it read
func (s *SettlementService) run(ctx context.Context, fn func(tx repository.AuctionTx) error) error {
	return repository.WithRetry(ctx, s.maxAttempts, func() error {
		return s.repo.RunInTx(ctx, fn)
	})
}

// DeclareWinner computes the winner from the ledger and records it on the
// item without changing whether bidding is open
func (s *SettlementService) DeclareWinner(ctx context.Context, p *models.Principal, itemID string) (Result, error) {
	if err := requireAdmin(p, "declare winner"); err != nil {
		return Result{}, err
	}

	var res Result
	err := s.run(ctx, func(tx repository.AuctionTx) error {
		item, winner, err := s.settle(tx, itemID, s.now())
		if err != nil {
			return err
		}
		if err := tx.PutItem(item); err != nil {
			return err
		}
		res = Result{Item: item, Winner: winner}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("service: failed to declare winner for item %s: %w", itemID, err)
	}

	if res.Winner != nil {
		res.Summary = fmt.Sprintf("Winner recomputed: %s, %s.", res.Winner.UserEmail, money.Format(res.Winner.Amount))
	} else {
		res.Summary = "No bids found for this item."
	}
	return res, nil
}

// ComputeWinnerPreview shows what closing would produce, leaving the item open or closed as it is
func (s *SettlementService) ComputeWinnerPreview(ctx context.Context, p *models.Principal, itemID string) (Result, error) {
	return s.DeclareWinner(ctx, p, itemID)
}

// CloseAuction declares the winner and closes bidding in one transaction.
// A winner with an email gets one notification per winning bid: closing again
// with the same winner, including after a reopen, creates no second one.
func (s *SettlementService) CloseAuction(ctx context.Context, p *models.Principal, itemID string) (Result, error) {
	if err := requireAdmin(p, "close auction"); err != nil {
		return Result{}, err
	}

	var res Result
	err := s.run(ctx, func(tx repository.AuctionTx) error {
		now := s.now()
		item, winner, err := s.settle(tx, itemID, now)
		if err != nil {
			return err
		}
		item.Close(now)
		if err := tx.PutItem(item); err != nil {
			return err
		}

		res = Result{Item: item, Winner: winner}
		if winner == nil || winner.UserEmail == "" || winner.UserEmail == models.NoEmail {
			return nil
		}
		sent, err := tx.AddNotification(winnerNotification(item, winner, now))
		if err != nil {
			return err
		}
		res.NotificationSent = sent
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("service: failed to close auction for item %s: %w", itemID, err)
	}

	res.Summary = closeSummary(res)
	utils.Info("service: auction closed", map[string]any{
		"item_id":           itemID,
		"has_winner":        res.Winner != nil,
		"notification_sent": res.NotificationSent,
	})
	return res, nil
}

// ReopenAuction resumes bidding and clears the declared winner. The ledger
// and the top bid stay, so the next bid must still beat the previous top.
func (s *SettlementService) ReopenAuction(ctx context.Context, p *models.Principal, itemID string) (Result, error) {
	if err := requireAdmin(p, "reopen auction"); err != nil {
		return Result{}, err
	}

	var res Result
	err := s.run(ctx, func(tx repository.AuctionTx) error {
		item, err := tx.GetItem(itemID)
		if err != nil {
			return err
		}
		item.Reopen(s.now())
		if err := tx.PutItem(item); err != nil {
			return err
		}
		res = Result{Item: item, Summary: "Auction reopened."}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("service: failed to reopen auction for item %s: %w", itemID, err)
	}

	utils.Info("service: auction reopened", map[string]any{"item_id": itemID})
	return res, nil
}

// ListNotifications returns every settlement notification, newest first
func (s *SettlementService) ListNotifications(ctx context.Context, p *models.Principal) ([]models.Notification, error) {
	if err := requireAdmin(p, "list notifications"); err != nil {
		return nil, err
	}
	list, err := s.repo.ListNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list notifications: %w", err)
	}
	return list, nil
}

// WatchNotifications streams the notification list until the feed is cancelled
func (s *SettlementService) WatchNotifications(ctx context.Context, p *models.Principal) (*repository.Feed[[]models.Notification], error) {
	if err := requireAdmin(p, "watch notifications"); err != nil {
		return nil, err
	}
	feed, err := s.repo.WatchNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to watch notifications: %w", err)
	}
	return feed, nil
}

func winnerNotification(item models.AuctionItem, w *models.Winner, now time.Time) models.Notification {
	return models.Notification{
		NotificationID: utils.DerivedID(item.ItemID, w.BidID),
		To:             w.UserEmail,
		Subject:        NotificationSubject,
		Body:           NotificationBody(item.Title, w.Amount),
		ItemID:         item.ItemID,
		SentAt:         now,
	}
}

// NotificationBody is the message sent to a winner
func NotificationBody(title string, amount float64) string {
	quoted := ""
	if title != "" {
		quoted = ` "` + title + `"`
	}
	return fmt.Sprintf("Congrats! You won%s with a bid of %s.", quoted, money.Format(amount))
}

func closeSummary(res Result) string {
	if res.Winner == nil {
		return "Auction closed. No bids were placed."
	}
	summary := fmt.Sprintf("Auction closed. Winner: %s, %s", res.Winner.UserEmail, money.Format(res.Winner.Amount))
	if res.Item.Title != "" {
		summary += fmt.Sprintf(" (%s)", res.Item.Title)
	}
	if res.NotificationSent {
		return summary + ". Notification created."
	}
	return summary + "."
}
