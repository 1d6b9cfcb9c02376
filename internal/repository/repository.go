package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"silent-auction/internal/biddingerrors"
	"silent-auction/internal/docstore"
	model "silent-auction/internal/models"
	"silent-auction/utils"
)

// Collection names. Each item's bids live in their own sub-collection.
const (
	ItemsCollection         = "items"
	NotificationsCollection = "notifications"
	UsersCollection         = "users"
)

// BidsCollection returns the ledger collection of an item
func BidsCollection(itemID string) string {
	return ItemsCollection + "/" + itemID + "/bids"
}

// ErrTxConflict is returned by RunInTx when a document the transaction read
// was committed by someone else first. Retrying against fresh state is safe.
var ErrTxConflict = docstore.ErrConflict

// AuctionDB defines the auction storage interface: items with their
// denormalized leaderboard, the per-item bid ledger, notifications and users
type AuctionDB interface {
	CreateItem(ctx context.Context, item model.AuctionItem) (model.AuctionItem, error)
	GetItem(ctx context.Context, itemID string) (model.AuctionItem, error)
	ListItems(ctx context.Context) ([]model.AuctionItem, error)
	WatchItems(ctx context.Context) (*Feed[[]model.AuctionItem], error)
	DeleteItemCascade(ctx context.Context, itemID string) error

	GetBidsByItem(ctx context.Context, itemID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, itemID string) (model.Bid, error)
	WatchBids(ctx context.Context, itemID string) (*Feed[[]model.Bid], error)

	ListNotifications(ctx context.Context) ([]model.Notification, error)
	WatchNotifications(ctx context.Context) (*Feed[[]model.Notification], error)

	GetUser(ctx context.Context, userID string) (model.User, error)
	CreateUser(ctx context.Context, user model.User) (model.User, error)

	// RunInTx runs fn as one atomic read-modify-write. It returns ErrTxConflict
	// when a concurrent commit invalidated what fn read.
	RunInTx(ctx context.Context, fn func(tx AuctionTx) error) error
}

// AuctionTx is the transactional view used by the bidding and settlement engines
type AuctionTx interface {
	GetItem(itemID string) (model.AuctionItem, error)
	PutItem(item model.AuctionItem) error
	AppendBid(bid model.Bid) error
	// TopBid returns the highest bid, earliest first on ties, or ErrNoBids
	TopBid(itemID string) (model.Bid, error)
	// AddNotification writes n once; it reports false if n.NotificationID already exists
	AddNotification(n model.Notification) (bool, error)
}

// DocRepo implements AuctionDB on any docstore.Store
type DocRepo struct {
	store docstore.Store
	now   func() time.Time
}

// NewDocRepo creates a repository backed by store
func NewDocRepo(store docstore.Store) *DocRepo {
	return &DocRepo{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateItem stores a new open item with no bids. An empty ItemID gets a generated one.
func (r *DocRepo) CreateItem(ctx context.Context, item model.AuctionItem) (model.AuctionItem, error) {
	if item.ItemID == "" {
		item.ItemID = utils.GenerateID()
	}
	now := r.now()
	item.CreatedAt = now
	item.UpdatedAt = now

	fields, err := docstore.Encode(item)
	if err != nil {
		return model.AuctionItem{}, err
	}
	err = r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Create(ItemsCollection, item.ItemID, fields)
	})
	if err != nil {
		return model.AuctionItem{}, fmt.Errorf("create item %s: %w", item.ItemID, err)
	}
	return item, nil
}

// GetItem returns an item by id
func (r *DocRepo) GetItem(ctx context.Context, itemID string) (model.AuctionItem, error) {
	if itemID == "" {
		return model.AuctionItem{}, fmt.Errorf("get item: %w", biddingerrors.ErrItemNotFound)
	}
	doc, err := r.store.Get(ctx, ItemsCollection, itemID)
	if err != nil {
		return model.AuctionItem{}, fmt.Errorf("get item %s: %w", itemID, mapNotFound(err, biddingerrors.ErrItemNotFound))
	}
	return decodeItem(doc)
}

func itemsQuery() docstore.Query {
	return docstore.Query{Collection: ItemsCollection}.Sort("created_at", docstore.Desc)
}

// ListItems returns every item, newest first
func (r *DocRepo) ListItems(ctx context.Context) ([]model.AuctionItem, error) {
	docs, err := r.store.Query(ctx, itemsQuery())
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return decodeAll(docs, decodeItem)
}

// WatchItems streams the item list, newest first, on every change
func (r *DocRepo) WatchItems(ctx context.Context) (*Feed[[]model.AuctionItem], error) {
	sub, err := r.store.Subscribe(ctx, itemsQuery())
	if err != nil {
		return nil, fmt.Errorf("watch items: %w", err)
	}
	return newFeed(sub, func(docs []docstore.Document) ([]model.AuctionItem, error) {
		return decodeAll(docs, decodeItem)
	}), nil
}

// DeleteItemCascade removes every bid of an item and then the item. The item
// is settled and closed first so no bid lands while the ledger is swept. The
// item goes in one transaction with whatever bids are still left, so a bid
// placed after a concurrent reopen is removed with it.
// A failure part way returns a *biddingerrors.CascadeDeleteError.
func (r *DocRepo) DeleteItemCascade(ctx context.Context, itemID string) error {
	err := WithRetry(ctx, 3, func() error {
		return r.RunInTx(ctx, func(tx AuctionTx) error {
			item, err := tx.GetItem(itemID)
			if err != nil {
				return err
			}
			if item.IsClosed {
				return nil
			}
			var winner *model.Winner
			top, err := tx.TopBid(itemID)
			switch {
			case err == nil:
				winner = model.WinnerFromBid(top)
			case !errors.Is(err, biddingerrors.ErrNoBids):
				return err
			}
			now := r.now()
			item.SettleWinner(winner, now)
			item.Close(now)
			return tx.PutItem(item)
		})
	})
	if err != nil {
		return fmt.Errorf("delete item %s: %w", itemID, err)
	}

	bids, err := r.store.Query(ctx, docstore.Query{Collection: BidsCollection(itemID)})
	if err != nil {
		return &biddingerrors.CascadeDeleteError{ItemID: itemID, Err: err}
	}

	deleted := 0
	for _, b := range bids {
		if err := r.store.Delete(ctx, BidsCollection(itemID), b.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return &biddingerrors.CascadeDeleteError{ItemID: itemID, BidsDeleted: deleted, BidsTotal: len(bids), Err: err}
		}
		deleted++
	}

	remaining, err := r.deleteItemWithLedger(ctx, itemID)
	if err != nil {
		return &biddingerrors.CascadeDeleteError{ItemID: itemID, BidsDeleted: deleted, BidsTotal: deleted + remaining, Err: err}
	}

	utils.Debug("repository: item deleted", map[string]any{"item_id": itemID, "bids_deleted": deleted + remaining})
	return nil
}

var errItemGone = errors.New("item already deleted")

// deleteItemWithLedger atomically deletes the item and the bids still in its
// ledger. The item read makes any bid committed meanwhile a conflict.
func (r *DocRepo) deleteItemWithLedger(ctx context.Context, itemID string) (int, error) {
	remaining := 0
	err := WithRetry(ctx, 3, func() error {
		err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
			if _, err := tx.Get(ItemsCollection, itemID); err != nil {
				return mapNotFound(err, errItemGone)
			}
			left, err := tx.Query(docstore.Query{Collection: BidsCollection(itemID)})
			if err != nil {
				return err
			}
			remaining = len(left)
			for _, b := range left {
				if err := tx.Delete(BidsCollection(itemID), b.ID); err != nil {
					return err
				}
			}
			return tx.Delete(ItemsCollection, itemID)
		})
		// a document removed under the transaction fails its commit
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrTxConflict, err)
		}
		return err
	})
	if errors.Is(err, errItemGone) {
		return 0, nil
	}
	return remaining, err
}

func bidsNewestFirst(itemID string) docstore.Query {
	return docstore.Query{Collection: BidsCollection(itemID)}.Sort("created_at", docstore.Desc)
}

func topBidQuery(itemID string) docstore.Query {
	return docstore.Query{Collection: BidsCollection(itemID)}.
		Sort("amount", docstore.Desc).
		Sort("created_at", docstore.Asc).
		Take(1)
}

// GetBidsByItem returns all bids for an item, newest first
func (r *DocRepo) GetBidsByItem(ctx context.Context, itemID string) ([]model.Bid, error) {
	docs, err := r.store.Query(ctx, bidsNewestFirst(itemID))
	if err != nil {
		return nil, fmt.Errorf("get bids for item %s: %w", itemID, err)
	}
	return decodeAll(docs, decodeBid)
}

// GetWinningBid returns the highest bid for an item, the earliest one on ties
func (r *DocRepo) GetWinningBid(ctx context.Context, itemID string) (model.Bid, error) {
	docs, err := r.store.Query(ctx, topBidQuery(itemID))
	if err != nil {
		return model.Bid{}, fmt.Errorf("get winning bid for item %s: %w", itemID, err)
	}
	if len(docs) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for item %s: %w", itemID, biddingerrors.ErrNoBids)
	}
	return decodeBid(docs[0])
}

// WatchBids streams an item's ledger, newest first, on every change
func (r *DocRepo) WatchBids(ctx context.Context, itemID string) (*Feed[[]model.Bid], error) {
	sub, err := r.store.Subscribe(ctx, bidsNewestFirst(itemID))
	if err != nil {
		return nil, fmt.Errorf("watch bids for item %s: %w", itemID, err)
	}
	return newFeed(sub, func(docs []docstore.Document) ([]model.Bid, error) {
		return decodeAll(docs, decodeBid)
	}), nil
}

func notificationsQuery() docstore.Query {
	return docstore.Query{Collection: NotificationsCollection}.Sort("sent_at", docstore.Desc)
}

// ListNotifications returns every notification, newest first
func (r *DocRepo) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	docs, err := r.store.Query(ctx, notificationsQuery())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return decodeAll(docs, decodeNotification)
}

// WatchNotifications streams the notification list on every change
func (r *DocRepo) WatchNotifications(ctx context.Context) (*Feed[[]model.Notification], error) {
	sub, err := r.store.Subscribe(ctx, notificationsQuery())
	if err != nil {
		return nil, fmt.Errorf("watch notifications: %w", err)
	}
	return newFeed(sub, func(docs []docstore.Document) ([]model.Notification, error) {
		return decodeAll(docs, decodeNotification)
	}), nil
}

// GetUser returns a stored user profile
func (r *DocRepo) GetUser(ctx context.Context, userID string) (model.User, error) {
	doc, err := r.store.Get(ctx, UsersCollection, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, mapNotFound(err, biddingerrors.ErrUserNotFound))
	}
	var u model.User
	if err := doc.DataTo(&u); err != nil {
		return model.User{}, err
	}
	u.UserID = doc.ID
	return u, nil
}

// CreateUser stores user unless a profile already exists, and returns the stored profile
func (r *DocRepo) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now()
	}
	fields, err := docstore.Encode(user)
	if err != nil {
		return model.User{}, err
	}

	stored := user
	err = r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		err := tx.Create(UsersCollection, user.UserID, fields)
		if !errors.Is(err, docstore.ErrAlreadyExists) {
			return err
		}
		doc, err := tx.Get(UsersCollection, user.UserID)
		if err != nil {
			return err
		}
		return doc.DataTo(&stored)
	})
	if err != nil {
		return model.User{}, fmt.Errorf("create user %s: %w", user.UserID, err)
	}
	stored.UserID = user.UserID
	return stored, nil
}

// RunInTx runs fn in a store transaction
func (r *DocRepo) RunInTx(ctx context.Context, fn func(tx AuctionTx) error) error {
	return r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return fn(&docTx{tx: tx})
	})
}

type docTx struct {
	tx docstore.Tx
}

func (t *docTx) GetItem(itemID string) (model.AuctionItem, error) {
	doc, err := t.tx.Get(ItemsCollection, itemID)
	if err != nil {
		return model.AuctionItem{}, fmt.Errorf("get item %s: %w", itemID, mapNotFound(err, biddingerrors.ErrItemNotFound))
	}
	return decodeItem(doc)
}

func (t *docTx) PutItem(item model.AuctionItem) error {
	return putItem(t.tx, item)
}

func (t *docTx) AppendBid(bid model.Bid) error {
	fields, err := docstore.Encode(bid)
	if err != nil {
		return err
	}
	if err := t.tx.Create(BidsCollection(bid.ItemID), bid.BidID, fields); err != nil {
		return fmt.Errorf("record bid for item %s: %w", bid.ItemID, err)
	}
	return nil
}

func (t *docTx) TopBid(itemID string) (model.Bid, error) {
	docs, err := t.tx.Query(topBidQuery(itemID))
	if err != nil {
		return model.Bid{}, fmt.Errorf("top bid for item %s: %w", itemID, err)
	}
	if len(docs) == 0 {
		return model.Bid{}, fmt.Errorf("top bid for item %s: %w", itemID, biddingerrors.ErrNoBids)
	}
	return decodeBid(docs[0])
}

func (t *docTx) AddNotification(n model.Notification) (bool, error) {
	fields, err := docstore.Encode(n)
	if err != nil {
		return false, err
	}
	err = t.tx.Create(NotificationsCollection, n.NotificationID, fields)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("add notification %s: %w", n.NotificationID, err)
	}
	return true, nil
}

func putItem(tx docstore.Tx, item model.AuctionItem) error {
	fields, err := docstore.Encode(item)
	if err != nil {
		return err
	}
	if err := tx.Set(ItemsCollection, item.ItemID, fields); err != nil {
		return fmt.Errorf("put item %s: %w", item.ItemID, err)
	}
	return nil
}

// WithRetry runs fn until it returns something other than a transaction
// conflict, at most attempts times. Exhaustion yields biddingerrors.ErrConflict.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		utils.Debug("repository: transaction conflict, retrying", map[string]any{"attempt": i + 1, "error": err.Error()})
	}
	return fmt.Errorf("%w: gave up after %d attempts: %v", biddingerrors.ErrConflict, attempts, err)
}

func mapNotFound(err, target error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return target
	}
	return err
}

func decodeItem(doc docstore.Document) (model.AuctionItem, error) {
	var item model.AuctionItem
	if err := doc.DataTo(&item); err != nil {
		return model.AuctionItem{}, err
	}
	item.ItemID = doc.ID
	return item, nil
}

func decodeBid(doc docstore.Document) (model.Bid, error) {
	var bid model.Bid
	if err := doc.DataTo(&bid); err != nil {
		return model.Bid{}, err
	}
	bid.BidID = doc.ID
	return bid, nil
}

func decodeNotification(doc docstore.Document) (model.Notification, error) {
	var n model.Notification
	if err := doc.DataTo(&n); err != nil {
		return model.Notification{}, err
	}
	n.NotificationID = doc.ID
	return n, nil
}

func decodeAll[T any](docs []docstore.Document, decode func(docstore.Document) (T, error)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
