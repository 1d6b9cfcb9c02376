package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"silent-auction/internal/biddingerrors"
	"silent-auction/internal/docstore"
	model "silent-auction/internal/models"
)

// Helper to create a new item
func newItem(itemID, title string) model.AuctionItem {
	return model.AuctionItem{
		ItemID:      itemID,
		Title:       title,
		Description: fmt.Sprintf("%s description", title),
		Image:       "https://example.com/" + itemID + ".png",
	}
}

// Helper to create a new bid
func newBid(bidID, itemID, userID string, amount float64, createdAt time.Time) model.Bid {
	return model.Bid{
		BidID:     bidID,
		ItemID:    itemID,
		UserID:    userID,
		UserEmail: userID + "@example.com",
		Amount:    amount,
		CreatedAt: createdAt,
	}
}

func newRepo(t *testing.T) (*DocRepo, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore(nil)
	return NewDocRepo(store), store
}

// appendBids records bids on an existing item through transactions, as the engine does
func appendBids(t *testing.T, repo *DocRepo, bids ...model.Bid) {
	t.Helper()
	for _, b := range bids {
		err := repo.RunInTx(context.Background(), func(tx AuctionTx) error {
			item, err := tx.GetItem(b.ItemID)
			if err != nil {
				return err
			}
			if err := tx.AppendBid(b); err != nil {
				return err
			}
			if b.Amount > item.TopBidAmount {
				item.ApplyBid(b)
			}
			return tx.PutItem(item)
		})
		require.NoError(t, err)
	}
}

func TestDocRepo_Items(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, _ := newRepo(t)

	first, err := repo.CreateItem(ctx, newItem("item1", "Lamp"))
	require.NoError(t, err)
	require.False(t, first.CreatedAt.IsZero())

	generated, err := repo.CreateItem(ctx, newItem("", "Vase"))
	require.NoError(t, err)
	require.NotEmpty(t, generated.ItemID)

	_, err = repo.CreateItem(ctx, newItem("item1", "Duplicate"))
	require.ErrorIs(t, err, docstore.ErrAlreadyExists)

	got, err := repo.GetItem(ctx, "item1")
	require.NoError(t, err)
	require.Equal(t, "Lamp", got.Title)
	require.False(t, got.IsClosed)
	require.Zero(t, got.TopBidAmount)
	require.Nil(t, got.TopBidUserID)

	tests := []struct {
		name    string
		itemID  string
		wantErr error
	}{
		{name: "existing_item", itemID: "item1"},
		{name: "missing_item", itemID: "itemX", wantErr: biddingerrors.ErrItemNotFound},
		{name: "empty_itemID", itemID: "", wantErr: biddingerrors.ErrItemNotFound},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := repo.GetItem(ctx, tc.itemID)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.False(t, items[0].CreatedAt.Before(items[1].CreatedAt), "newest first")
}

func TestDocRepo_GetBidsByItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, _ := newRepo(t)
	_, err := repo.CreateItem(ctx, newItem("item1", "Item 1"))
	require.NoError(t, err)
	_, err = repo.CreateItem(ctx, newItem("item2", "Item 2"))
	require.NoError(t, err)

	base := time.Now().UTC()
	bid1 := newBid("bid1", "item1", "user1", 100, base)
	bid2 := newBid("bid2", "item1", "user2", 150, base.Add(time.Second))
	appendBids(t, repo, bid1, bid2)

	tests := []struct {
		name    string
		itemID  string
		wantIDs []string
	}{
		{name: "newest_first", itemID: "item1", wantIDs: []string{"bid2", "bid1"}},
		{name: "item_without_bids", itemID: "item2", wantIDs: []string{}},
		{name: "unknown_item", itemID: "itemX", wantIDs: []string{}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			bids, err := repo.GetBidsByItem(ctx, tc.itemID)
			require.NoError(t, err)
			ids := make([]string, 0, len(bids))
			for _, b := range bids {
				ids = append(ids, b.BidID)
			}
			require.Equal(t, tc.wantIDs, ids)
		})
	}

	bids, err := repo.GetBidsByItem(ctx, "item1")
	require.NoError(t, err)
	require.True(t, bids[1].CreatedAt.Equal(bid1.CreatedAt))
	require.Equal(t, bid1.UserEmail, bids[1].UserEmail)
}

func TestDocRepo_GetWinningBid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, _ := newRepo(t)
	for _, id := range []string{"item1", "item2", "item3"} {
		_, err := repo.CreateItem(ctx, newItem(id, id))
		require.NoError(t, err)
	}

	base := time.Now().UTC()
	appendBids(t, repo,
		newBid("bid1", "item1", "user1", 100, base),
		newBid("bid2", "item1", "user2", 150, base.Add(time.Second)),
		// equal amounts: the earlier bid wins
		newBid("bid-tie1", "item3", "userA", 200, base),
		newBid("bid-tie2", "item3", "userB", 200, base.Add(time.Millisecond)),
	)

	tests := []struct {
		name      string
		itemID    string
		wantBidID string
		wantErr   error
	}{
		{name: "highest_wins", itemID: "item1", wantBidID: "bid2"},
		{name: "no_bids", itemID: "item2", wantErr: biddingerrors.ErrNoBids},
		{name: "tie_earliest_wins", itemID: "item3", wantBidID: "bid-tie1"},
		{name: "unknown_item", itemID: "itemX", wantErr: biddingerrors.ErrNoBids},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			bid, err := repo.GetWinningBid(ctx, tc.itemID)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantBidID, bid.BidID)
		})
	}
}

func TestDocRepo_TxTopBidAndNotifications(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, _ := newRepo(t)
	_, err := repo.CreateItem(ctx, newItem("item1", "Lamp"))
	require.NoError(t, err)

	base := time.Now().UTC()
	appendBids(t, repo, newBid("bid1", "item1", "user1", 40, base), newBid("bid2", "item1", "user2", 55, base.Add(time.Second)))

	n := model.Notification{NotificationID: "n1", To: "user2@example.com", Subject: "s", Body: "b", ItemID: "item1", SentAt: base}
	err = repo.RunInTx(ctx, func(tx AuctionTx) error {
		top, err := tx.TopBid("item1")
		require.NoError(t, err)
		require.Equal(t, "bid2", top.BidID)

		_, err = tx.TopBid("missing")
		require.ErrorIs(t, err, biddingerrors.ErrNoBids)

		created, err := tx.AddNotification(n)
		require.NoError(t, err)
		require.True(t, created)
		return nil
	})
	require.NoError(t, err)

	err = repo.RunInTx(ctx, func(tx AuctionTx) error {
		created, err := tx.AddNotification(n)
		require.NoError(t, err)
		require.False(t, created, "write-once")
		return nil
	})
	require.NoError(t, err)

	list, err := repo.ListNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "n1", list[0].NotificationID)
}

func TestDocRepo_Users(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, _ := newRepo(t)

	_, err := repo.GetUser(ctx, "u1")
	require.ErrorIs(t, err, biddingerrors.ErrUserNotFound)

	created, err := repo.CreateUser(ctx, model.User{UserID: "u1", Email: "a@example.com", Role: model.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, created.Role)

	// an existing profile keeps its role
	again, err := repo.CreateUser(ctx, model.User{UserID: "u1", Email: "a@example.com", Role: model.RoleBidder})
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, again.Role)

	got, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", got.Email)
}

// failingStore fails deletes after a number of successful ones
type failingStore struct {
	docstore.Store
	mu        sync.Mutex
	remaining int
}

func (f *failingStore) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining == 0 {
		return errors.New("store unavailable")
	}
	f.remaining--
	return f.Store.Delete(ctx, collection, id)
}

func TestDocRepo_DeleteItemCascade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Now().UTC()

	t.Run("removes_bids_then_item", func(t *testing.T) {
		t.Parallel()
		repo, _ := newRepo(t)
		_, err := repo.CreateItem(ctx, newItem("item1", "Lamp"))
		require.NoError(t, err)
		appendBids(t, repo, newBid("b1", "item1", "u1", 10, base), newBid("b2", "item1", "u2", 20, base.Add(time.Second)))

		require.NoError(t, repo.DeleteItemCascade(ctx, "item1"))

		_, err = repo.GetItem(ctx, "item1")
		require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
		bids, err := repo.GetBidsByItem(ctx, "item1")
		require.NoError(t, err)
		require.Empty(t, bids)
	})

	t.Run("missing_item", func(t *testing.T) {
		t.Parallel()
		repo, _ := newRepo(t)
		require.ErrorIs(t, repo.DeleteItemCascade(ctx, "nope"), biddingerrors.ErrItemNotFound)
	})

	t.Run("partial_failure_is_reported", func(t *testing.T) {
		t.Parallel()
		mem := docstore.NewMemoryStore(nil)
		store := &failingStore{Store: mem, remaining: 1}
		repo := NewDocRepo(store)

		_, err := repo.CreateItem(ctx, newItem("item1", "Lamp"))
		require.NoError(t, err)
		appendBids(t, repo,
			newBid("b1", "item1", "u1", 10, base),
			newBid("b2", "item1", "u2", 20, base.Add(time.Second)),
			newBid("b3", "item1", "u3", 30, base.Add(2*time.Second)),
		)

		err = repo.DeleteItemCascade(ctx, "item1")
		var cascadeErr *biddingerrors.CascadeDeleteError
		require.ErrorAs(t, err, &cascadeErr)
		require.Equal(t, 1, cascadeErr.BidsDeleted)
		require.Equal(t, 3, cascadeErr.BidsTotal)

		// the item survives closed with its winner settled, so no new bid can
		// land on a half-deleted ledger
		item, err := repo.GetItem(ctx, "item1")
		require.NoError(t, err)
		require.True(t, item.IsClosed)
		require.NotNil(t, item.WinnerUserID)
		require.Equal(t, "u3", *item.WinnerUserID)
		require.NotNil(t, item.WinnerAmount)
		require.Equal(t, 30.0, *item.WinnerAmount)
		require.Equal(t, 30.0, item.TopBidAmount)
	})

	t.Run("closing_without_bids_leaves_no_winner", func(t *testing.T) {
		t.Parallel()
		mem := docstore.NewMemoryStore(nil)
		repo := NewDocRepo(&failingStore{Store: mem})
		_, err := repo.CreateItem(ctx, newItem("item1", "Lamp"))
		require.NoError(t, err)

		// the empty ledger means the plain sweep never runs, only the final step
		require.NoError(t, repo.DeleteItemCascade(ctx, "item1"))
		_, err = repo.GetItem(ctx, "item1")
		require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
	})

	tests := []struct {
		name string
		inTx bool
	}{
		{name: "late_bid_during_sweep_is_removed", inTx: false},
		{name: "late_bid_before_item_delete_is_removed", inTx: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mem := docstore.NewMemoryStore(nil)
			store := &interleavingStore{Store: mem, inTx: tc.inTx}
			repo := NewDocRepo(store)

			_, err := repo.CreateItem(ctx, newItem("item1", "Lamp"))
			require.NoError(t, err)
			appendBids(t, repo,
				newBid("b1", "item1", "u1", 10, base),
				newBid("b2", "item1", "u2", 20, base.Add(time.Second)),
			)

			// an admin reopens the item and a bidder gets in before the delete finishes
			store.hook = func() {
				err := repo.RunInTx(ctx, func(tx AuctionTx) error {
					item, err := tx.GetItem("item1")
					if err != nil {
						return err
					}
					now := time.Now().UTC()
					item.Reopen(now)
					bid := newBid("late", "item1", "u9", 50, item.BidTime(now))
					if err := tx.AppendBid(bid); err != nil {
						return err
					}
					item.ApplyBid(bid)
					return tx.PutItem(item)
				})
				require.NoError(t, err)
			}

			require.NoError(t, repo.DeleteItemCascade(ctx, "item1"))
			require.True(t, store.fired)

			_, err = repo.GetItem(ctx, "item1")
			require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
			left, err := mem.Query(ctx, docstore.Query{Collection: BidsCollection("item1")})
			require.NoError(t, err)
			require.Empty(t, left)
		})
	}
}

// interleavingStore runs hook once, just before the first bid delete of the
// sweep or, with inTx, just before a transaction deletes an item
type interleavingStore struct {
	docstore.Store
	inTx  bool
	hook  func()
	once  sync.Once
	fired bool
}

func (s *interleavingStore) fire() {
	s.once.Do(func() {
		s.fired = true
		s.hook()
	})
}

func (s *interleavingStore) Delete(ctx context.Context, collection, id string) error {
	if !s.inTx {
		s.fire()
	}
	return s.Store.Delete(ctx, collection, id)
}

func (s *interleavingStore) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	return s.Store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return fn(&interleavingTx{Tx: tx, store: s})
	})
}

type interleavingTx struct {
	docstore.Tx
	store *interleavingStore
}

func (t *interleavingTx) Delete(collection, id string) error {
	if t.store.inTx && collection == ItemsCollection {
		t.store.fire()
	}
	return t.Tx.Delete(collection, id)
}

func TestDocRepo_RunInTxConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, store := newRepo(t)
	_, err := repo.CreateItem(ctx, newItem("item1", "Lamp"))
	require.NoError(t, err)

	err = repo.RunInTx(ctx, func(tx AuctionTx) error {
		item, err := tx.GetItem("item1")
		require.NoError(t, err)
		// another writer commits the item in between
		require.NoError(t, store.Update(ctx, ItemsCollection, "item1", docstore.Fields{"top_bid_amount": 99}))
		item.TopBidAmount = 5
		return tx.PutItem(item)
	})
	require.ErrorIs(t, err, ErrTxConflict)
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("succeeds_after_conflicts", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := WithRetry(ctx, 3, func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("commit: %w", ErrTxConflict)
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := WithRetry(ctx, 2, func() error {
			calls++
			return ErrTxConflict
		})
		require.ErrorIs(t, err, biddingerrors.ErrConflict)
		require.Equal(t, 2, calls)
	})

	t.Run("other_errors_are_not_retried", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := WithRetry(ctx, 5, func() error {
			calls++
			return biddingerrors.ErrBiddingClosed
		})
		require.ErrorIs(t, err, biddingerrors.ErrBiddingClosed)
		require.Equal(t, 1, calls)
	})
}

func TestFeed_BidsAndCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, _ := newRepo(t)
	_, err := repo.CreateItem(ctx, newItem("item1", "Lamp"))
	require.NoError(t, err)

	feed, err := repo.WatchBids(ctx, "item1")
	require.NoError(t, err)

	select {
	case bids := <-feed.Updates():
		require.Empty(t, bids)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	appendBids(t, repo, newBid("b1", "item1", "u1", 10, time.Now().UTC()))
	select {
	case bids := <-feed.Updates():
		require.Len(t, bids, 1)
		require.Equal(t, "b1", bids[0].BidID)
	case <-time.After(2 * time.Second):
		t.Fatal("no update after bid")
	}

	feed.Cancel()
	appendBids(t, repo, newBid("b2", "item1", "u2", 20, time.Now().UTC()))
	_, ok := <-feed.Updates()
	require.False(t, ok, "nothing is delivered after cancel")
}

func TestStaticFeed(t *testing.T) {
	t.Parallel()

	feed := NewStaticFeed([]int{1}, []int{1, 2})
	require.Equal(t, []int{1}, <-feed.Updates())
	require.Equal(t, []int{1, 2}, <-feed.Updates())
	feed.Cancel()
	feed.Cancel()
	<-feed.Done()
}
