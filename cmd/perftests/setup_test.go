package perftests

import (
	"context"
	"fmt"
	"testing"

	bidding "silent-auction/internal/biddingService"
	"silent-auction/internal/docstore"
	model "silent-auction/internal/models"
	"silent-auction/internal/repository"
)

// setupItems creates a store with n open items and returns their ids
func setupItems(tb testing.TB, n int) (*repository.DocRepo, *bidding.BiddingService, []string) {
	tb.Helper()
	ctx := context.Background()
	repo := repository.NewDocRepo(docstore.NewMemoryStore(nil))
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item, err := repo.CreateItem(ctx, model.AuctionItem{
			Title:       fmt.Sprintf("title_%d", i),
			Description: "Load test item",
			Image:       "item.png",
		})
		if err != nil {
			tb.Fatalf("failed to create item: %v", err)
		}
		ids = append(ids, item.ItemID)
	}
	return repo, bidding.NewBiddingService(repo), ids
}

func bidder(id string) *model.Identity {
	return &model.Identity{UserID: id, Email: id + "@example.com"}
}
