package handler

import (
	"context"

	auction "silent-auction/internal/auctionService"
	model "silent-auction/internal/models"
	"silent-auction/internal/repository"
	settlement "silent-auction/internal/settlementService"
)

//go:generate mockgen -source=services.go -destination=mock_services.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, itemID string, bidder *model.Identity, rawAmount string) (model.Bid, error)
	GetBidsForItem(ctx context.Context, itemID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, itemID string) (model.Bid, error)
	WatchBids(ctx context.Context, itemID string) (*repository.Feed[[]model.Bid], error)
}

type AuctionServiceInterface interface {
	CreateItem(ctx context.Context, p *model.Principal, in auction.NewItem) (model.AuctionItem, error)
	GetItem(ctx context.Context, itemID string) (model.AuctionItem, error)
	ListItems(ctx context.Context) ([]model.AuctionItem, error)
	WatchItems(ctx context.Context) (*repository.Feed[[]model.AuctionItem], error)
	DeleteItem(ctx context.Context, p *model.Principal, itemID string) error
}

type SettlementServiceInterface interface {
	CloseAuction(ctx context.Context, p *model.Principal, itemID string) (settlement.Result, error)
	ReopenAuction(ctx context.Context, p *model.Principal, itemID string) (settlement.Result, error)
	ComputeWinnerPreview(ctx context.Context, p *model.Principal, itemID string) (settlement.Result, error)
	ListNotifications(ctx context.Context, p *model.Principal) ([]model.Notification, error)
	WatchNotifications(ctx context.Context, p *model.Principal) (*repository.Feed[[]model.Notification], error)
}

type UserServiceInterface interface {
	Register(ctx context.Context, id *model.Identity) (model.User, error)
}
