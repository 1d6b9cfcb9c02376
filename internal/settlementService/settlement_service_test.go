package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	bidding "silent-auction/internal/biddingService"
	"silent-auction/internal/biddingerrors"
	"silent-auction/internal/docstore"
	model "silent-auction/internal/models"
	"silent-auction/internal/repository"
)

var (
	admin  = &model.Principal{Identity: model.Identity{UserID: "admin", Email: "admin@example.com"}, Role: model.RoleAdmin}
	bidder = &model.Principal{Identity: model.Identity{UserID: "bob", Email: "bob@example.com"}, Role: model.RoleBidder}
)

func identity(id string) *model.Identity {
	return &model.Identity{UserID: id, Email: id + "@example.com"}
}

type fixture struct {
	repo   *repository.DocRepo
	bids   *bidding.BiddingService
	settle *SettlementService
	itemID string
	ctx    context.Context
}

func newFixture(t *testing.T, title string) fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewDocRepo(docstore.NewMemoryStore(nil))
	item, err := repo.CreateItem(ctx, model.AuctionItem{Title: title, Description: "d", Image: "i.png"})
	require.NoError(t, err)
	return fixture{
		repo:   repo,
		bids:   bidding.NewBiddingService(repo),
		settle: NewSettlementService(repo),
		itemID: item.ItemID,
		ctx:    ctx,
	}
}

func (f fixture) bid(t *testing.T, user, amount string) error {
	t.Helper()
	_, err := f.bids.PlaceBid(f.ctx, f.itemID, identity(user), amount)
	return err
}

func (f fixture) notifications(t *testing.T) []model.Notification {
	t.Helper()
	list, err := f.settle.ListNotifications(f.ctx, admin)
	require.NoError(t, err)
	return list
}

// The end-to-end scenario: $10 accepted, $10 rejected, $11 accepted, close
func TestSettlement_Scenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Vintage Lamp")
	require.NoError(t, f.bid(t, "alice", "10"))
	require.ErrorIs(t, f.bid(t, "bob", "10"), biddingerrors.ErrBidTooLow)
	require.NoError(t, f.bid(t, "carol", "11"))

	item, err := f.repo.GetItem(f.ctx, f.itemID)
	require.NoError(t, err)
	require.Equal(t, 11.0, item.TopBidAmount)

	res, err := f.settle.CloseAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	require.Equal(t, "carol", res.Winner.UserID)
	require.True(t, res.NotificationSent)
	require.True(t, res.Item.IsClosed)
	require.NotNil(t, res.Item.ClosedAt)
	require.Equal(t, 11.0, *res.Item.WinnerAmount)
	require.Contains(t, res.Summary, "$11.00")

	list := f.notifications(t)
	require.Len(t, list, 1)
	require.Equal(t, "carol@example.com", list[0].To)
	require.Equal(t, NotificationSubject, list[0].Subject)
	require.Equal(t, `Congrats! You won "Vintage Lamp" with a bid of $11.00.`, list[0].Body)
	require.Equal(t, f.itemID, list[0].ItemID)

	require.ErrorIs(t, f.bid(t, "dave", "50"), biddingerrors.ErrBiddingClosed)
}

func TestSettlement_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Quilt")
	require.NoError(t, f.bid(t, "alice", "20"))

	first, err := f.settle.CloseAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	second, err := f.settle.CloseAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)

	require.Equal(t, first.Winner, second.Winner)
	require.True(t, first.NotificationSent)
	require.False(t, second.NotificationSent)
	require.Len(t, f.notifications(t), 1)

	// reopen and close again without new bids: same winner, still one notification
	_, err = f.settle.ReopenAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	third, err := f.settle.CloseAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	require.Equal(t, first.Winner, third.Winner)
	require.Len(t, f.notifications(t), 1)
}

func TestSettlement_ReopenThenBid(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Chair")
	require.NoError(t, f.bid(t, "alice", "30"))
	_, err := f.settle.CloseAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)

	res, err := f.settle.ReopenAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	require.False(t, res.Item.IsClosed)
	require.Nil(t, res.Item.WinnerUserID)
	require.Nil(t, res.Item.WinnerUserEmail)
	require.Nil(t, res.Item.WinnerAmount)
	require.Nil(t, res.Item.ClosedAt)
	require.Equal(t, 30.0, res.Item.TopBidAmount)

	require.ErrorIs(t, f.bid(t, "bob", "30"), biddingerrors.ErrBidTooLow)
	require.NoError(t, f.bid(t, "bob", "31"))

	// a new winner earns its own notification
	closed, err := f.settle.CloseAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	require.Equal(t, "bob", closed.Winner.UserID)
	require.True(t, closed.NotificationSent)
	require.Len(t, f.notifications(t), 2)
}

func TestSettlement_EmptyLedger(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Rug")

	res, err := f.settle.DeclareWinner(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	require.Nil(t, res.Winner)
	require.False(t, res.Item.IsClosed, "declare leaves the status alone")
	require.Nil(t, res.Item.WinnerUserID)

	closed, err := f.settle.CloseAuction(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	require.Nil(t, closed.Winner)
	require.True(t, closed.Item.IsClosed)
	require.False(t, closed.NotificationSent)
	require.Equal(t, "Auction closed. No bids were placed.", closed.Summary)
	require.Empty(t, f.notifications(t))

	// declaring on a closed item keeps it closed
	again, err := f.settle.DeclareWinner(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	require.True(t, again.Item.IsClosed)
}

func TestSettlement_PreviewDoesNotClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Clock")
	require.NoError(t, f.bid(t, "alice", "5"))
	require.NoError(t, f.bid(t, "bob", "9"))

	res, err := f.settle.ComputeWinnerPreview(f.ctx, admin, f.itemID)
	require.NoError(t, err)
	require.Equal(t, "bob", res.Winner.UserID)
	require.False(t, res.Item.IsClosed)
	require.Empty(t, f.notifications(t))
	require.NoError(t, f.bid(t, "carol", "10"), "preview leaves bidding open")
}

func TestSettlement_TieGoesToEarliestBid(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	mockTx := repository.NewMockAuctionTx(ctrl)

	mockRepo.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(repository.AuctionTx) error) error { return fn(mockTx) })
	mockTx.EXPECT().GetItem("item1").Return(model.AuctionItem{ItemID: "item1", TopBidAmount: 40}, nil)
	// the ledger query already orders by amount then time; the earliest of the tied bids comes back
	mockTx.EXPECT().TopBid("item1").Return(model.Bid{BidID: "early", UserID: "alice", UserEmail: "alice@example.com", Amount: 50}, nil)
	mockTx.EXPECT().PutItem(gomock.Any()).DoAndReturn(func(item model.AuctionItem) error {
		require.Equal(t, 50.0, item.TopBidAmount, "top bid resynced to the winner")
		require.Equal(t, "alice", *item.TopBidUserID)
		require.Equal(t, "alice", *item.WinnerUserID)
		return nil
	})

	res, err := NewSettlementService(mockRepo).DeclareWinner(context.Background(), admin, "item1")
	require.NoError(t, err)
	require.Equal(t, "early", res.Winner.BidID)
}

func TestSettlement_RequiresAdmin(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewSettlementService(mockRepo)
	ctx := context.Background()

	tests := []struct {
		name string
		call func(p *model.Principal) error
	}{
		{name: "declare", call: func(p *model.Principal) error { _, err := service.DeclareWinner(ctx, p, "item1"); return err }},
		{name: "preview", call: func(p *model.Principal) error { _, err := service.ComputeWinnerPreview(ctx, p, "item1"); return err }},
		{name: "close", call: func(p *model.Principal) error { _, err := service.CloseAuction(ctx, p, "item1"); return err }},
		{name: "reopen", call: func(p *model.Principal) error { _, err := service.ReopenAuction(ctx, p, "item1"); return err }},
		{name: "list_notifications", call: func(p *model.Principal) error { _, err := service.ListNotifications(ctx, p); return err }},
		{name: "watch_notifications", call: func(p *model.Principal) error { _, err := service.WatchNotifications(ctx, p); return err }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, tc.call(bidder), biddingerrors.ErrForbidden)
			require.ErrorIs(t, tc.call(nil), biddingerrors.ErrForbidden)
		})
	}
}

func TestSettlement_Failures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("missing_item", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, "x")
		_, err := f.settle.CloseAuction(ctx, admin, "nope")
		require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
		_, err = f.settle.ReopenAuction(ctx, admin, "nope")
		require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
	})

	t.Run("notification_write_fails_rolls_back_close", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		mockRepo := repository.NewMockAuctionDB(ctrl)
		mockTx := repository.NewMockAuctionTx(ctrl)
		boom := errors.New("store unavailable")

		mockRepo.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, fn func(repository.AuctionTx) error) error { return fn(mockTx) })
		mockTx.EXPECT().GetItem("item1").Return(model.AuctionItem{ItemID: "item1", Title: "Lamp"}, nil)
		mockTx.EXPECT().TopBid("item1").Return(model.Bid{BidID: "b1", UserID: "u1", UserEmail: "u1@example.com", Amount: 12}, nil)
		mockTx.EXPECT().PutItem(gomock.Any()).Return(nil)
		mockTx.EXPECT().AddNotification(gomock.Any()).Return(false, boom)

		_, err := NewSettlementService(mockRepo).CloseAuction(ctx, admin, "item1")
		require.ErrorIs(t, err, boom)
	})

	t.Run("winner_without_email_gets_no_notification", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, "Mug")
		_, err := f.bids.PlaceBid(ctx, f.itemID, &model.Identity{UserID: "anon"}, "3")
		require.NoError(t, err)

		res, err := f.settle.CloseAuction(ctx, admin, f.itemID)
		require.NoError(t, err)
		require.Equal(t, model.NoEmail, res.Winner.UserEmail)
		require.False(t, res.NotificationSent)
		require.Empty(t, f.notifications(t))
	})
}

// Bids racing a close: whatever interleaving happens, a closed item's
// winner and top bid agree with the ledger maximum
func TestSettlement_ConcurrentCloseAndBids(t *testing.T) {
	t.Parallel()

	for round := 0; round < 5; round++ {
		f := newFixture(t, fmt.Sprintf("round-%d", round))
		require.NoError(t, f.bid(t, "seed", "1"))

		g, ctx := errgroup.WithContext(f.ctx)
		for i := 0; i < 10; i++ {
			i := i
			g.Go(func() error {
				_, err := f.bids.PlaceBid(ctx, f.itemID, identity(fmt.Sprintf("u%d", i)), fmt.Sprintf("%d", 10+i*2))
				if err == nil || errors.Is(err, biddingerrors.ErrBiddingClosed) ||
					errors.Is(err, biddingerrors.ErrBidTooLow) || errors.Is(err, biddingerrors.ErrConflict) {
					return nil
				}
				return err
			})
		}
		g.Go(func() error {
			for {
				_, err := f.settle.CloseAuction(ctx, admin, f.itemID)
				if !errors.Is(err, biddingerrors.ErrConflict) {
					return err
				}
			}
		})
		require.NoError(t, g.Wait())

		item, err := f.repo.GetItem(f.ctx, f.itemID)
		require.NoError(t, err)
		require.True(t, item.IsClosed)

		top, err := f.repo.GetWinningBid(f.ctx, f.itemID)
		require.NoError(t, err)
		require.Equal(t, top.Amount, item.TopBidAmount)
		require.NotNil(t, item.WinnerAmount)
		require.Equal(t, top.Amount, *item.WinnerAmount)
		require.Equal(t, top.UserID, *item.WinnerUserID)

		require.Len(t, f.notifications(t), 1)
	}
}

func TestNotificationBody(t *testing.T) {
	t.Parallel()

	require.Equal(t, `Congrats! You won "Lamp" with a bid of $11.00.`, NotificationBody("Lamp", 11))
	require.Equal(t, "Congrats! You won with a bid of $7.50.", NotificationBody("", 7.5))
}

func TestSettlement_Clock(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	repo := repository.NewDocRepo(docstore.NewMemoryStore(nil))
	item, err := repo.CreateItem(context.Background(), model.AuctionItem{Title: "t"})
	require.NoError(t, err)

	res, err := NewSettlementService(repo, WithClock(func() time.Time { return at })).CloseAuction(context.Background(), admin, item.ItemID)
	require.NoError(t, err)
	require.Equal(t, at, *res.Item.ClosedAt)
}
