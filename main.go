package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	auction "silent-auction/internal/auctionService"
	"silent-auction/internal/auth"
	bidding "silent-auction/internal/biddingService"
	"silent-auction/internal/config"
	"silent-auction/internal/docstore"
	"silent-auction/internal/docstore/gormstore"
	model "silent-auction/internal/models"
	"silent-auction/internal/realtime"
	"silent-auction/internal/repository"
	"silent-auction/internal/server"
	settlement "silent-auction/internal/settlementService"
	users "silent-auction/internal/userService"
	"silent-auction/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		utils.Fatal("auction server stopped", map[string]any{"error": err.Error()})
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := docstore.NewHub()
	if cfg.Redis.Addr != "" {
		bus, err := realtime.NewRedisBus(ctx, cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			return err
		}
		defer bus.Close()
		if err := bus.StartForwarder(ctx, func(collection string) { hub.Notify(collection) }); err != nil {
			return err
		}
		hub.SetRelay(bus)
		utils.Info("change relay enabled", map[string]any{"addr": cfg.Redis.Addr, "channel": cfg.Redis.Channel, "origin": bus.Origin()})
	}

	store, err := openStore(cfg, hub)
	if err != nil {
		return err
	}
	defer store.Close()

	repo := repository.NewDocRepo(store)
	provider, err := auth.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	auctionSvc := auction.NewAuctionService(repo)
	if cfg.SeedDemoItems {
		if err := prepopulateItems(ctx, auctionSvc); err != nil {
			return err
		}
	}

	router := server.SetupRouter(server.RouterConfig{
		Services: server.Services{
			Bidding:    bidding.NewBiddingService(repo, bidding.WithMaxAttempts(cfg.MaxBidAttempts)),
			Auction:    auctionSvc,
			Settlement: settlement.NewSettlementService(repo, settlement.WithMaxAttempts(cfg.MaxBidAttempts)),
			Users:      users.NewUserService(repo, cfg.AdminEmails),
		},
		Auth:        provider,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := newHTTPServer(cfg.Addr(), router)

	errCh := make(chan error, 1)
	go func() {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr, "store": cfg.Store.Driver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.Info("shutting down auction server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newHTTPServer builds the API server. Request contexts hang off a base
// context that Shutdown cancels, so open event streams end instead of
// holding shutdown until its deadline.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	streams, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streams },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

func openStore(cfg config.Config, hub *docstore.Hub) (docstore.Store, error) {
	if strings.EqualFold(cfg.Store.Driver, "memory") {
		return docstore.NewMemoryStore(hub), nil
	}
	db, err := gormstore.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	return gormstore.New(db, hub)
}

// prepopulateItems lists a few sample items when the catalogue is empty
func prepopulateItems(ctx context.Context, svc *auction.AuctionService) error {
	existing, err := svc.ListItems(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	seeder := &model.Principal{Identity: model.Identity{UserID: "seed"}, Role: model.RoleAdmin}
	items := []auction.NewItem{
		{Title: "Weekend Cabin Stay", Description: "Two nights at the lake cabin", Image: "https://picsum.photos/seed/cabin/640/480"},
		{Title: "Signed Guitar", Description: "Acoustic guitar signed by the band", Image: "https://picsum.photos/seed/guitar/640/480"},
		{Title: "Cooking Class", Description: "Private class for four", Image: "https://picsum.photos/seed/cooking/640/480"},
	}
	for _, in := range items {
		if _, err := svc.CreateItem(ctx, seeder, in); err != nil {
			return err
		}
	}
	utils.Info("seeded demo items", map[string]any{"count": len(items)})
	return nil
}
