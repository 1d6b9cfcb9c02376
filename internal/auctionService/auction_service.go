// Package auction manages the item catalogue: listing, creating and deleting items.
package auction

import (
	"context"
	"fmt"
	"strings"

	"silent-auction/internal/biddingerrors"
	"silent-auction/internal/models"
	"silent-auction/internal/repository"
	"silent-auction/utils"
)

// NewItem is what an administrator submits to list an item
type NewItem struct {
	Title       string
	Description string
	Image       string
}

type AuctionService struct {
	repo repository.AuctionDB
}

func NewAuctionService(repo repository.AuctionDB) *AuctionService {
	return &AuctionService{repo: repo}
}

// CreateItem lists a new open item with no bids. Every field is trimmed and required.
func (s *AuctionService) CreateItem(ctx context.Context, p *models.Principal, in NewItem) (models.AuctionItem, error) {
	if !p.IsAdmin() {
		return models.AuctionItem{}, fmt.Errorf("service: %w - create item", biddingerrors.ErrForbidden)
	}

	item := models.AuctionItem{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Image:       strings.TrimSpace(in.Image),
	}
	if item.Title == "" || item.Description == "" || item.Image == "" {
		return models.AuctionItem{}, fmt.Errorf("service: %w - title, description and image are required", biddingerrors.ErrInvalidItem)
	}

	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return models.AuctionItem{}, fmt.Errorf("service: failed to create item: %w", err)
	}

	utils.Info("service: item created", map[string]any{"item_id": created.ItemID, "title": created.Title})
	return created, nil
}

func (s *AuctionService) GetItem(ctx context.Context, itemID string) (models.AuctionItem, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return models.AuctionItem{}, fmt.Errorf("service: failed to get item %s: %w", itemID, err)
	}
	return item, nil
}

// ListItems returns every item, newest first
func (s *AuctionService) ListItems(ctx context.Context) ([]models.AuctionItem, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list items: %w", err)
	}
	return items, nil
}

func (s *AuctionService) WatchItems(ctx context.Context) (*repository.Feed[[]models.AuctionItem], error) {
	feed, err := s.repo.WatchItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to watch items: %w", err)
	}
	return feed, nil
}

// DeleteItem removes an item together with its whole bid ledger
func (s *AuctionService) DeleteItem(ctx context.Context, p *models.Principal, itemID string) error {
	if !p.IsAdmin() {
		return fmt.Errorf("service: %w - delete item", biddingerrors.ErrForbidden)
	}
	if err := s.repo.DeleteItemCascade(ctx, itemID); err != nil {
		return fmt.Errorf("service: failed to delete item %s: %w", itemID, err)
	}

	utils.Info("service: item deleted", map[string]any{"item_id": itemID})
	return nil
}
