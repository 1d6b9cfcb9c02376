package server

import (
	"net/http"

	"silent-auction/internal/auth"
	handler "silent-auction/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// UserService registers users and resolves their role per request
type UserService interface {
	handler.UserServiceInterface
	PrincipalResolver
}

// Services are the application services the router exposes
type Services struct {
	Bidding    handler.BiddingServiceInterface
	Auction    handler.AuctionServiceInterface
	Settlement handler.SettlementServiceInterface
	Users      UserService
}

// RouterConfig holds everything SetupRouter wires together
type RouterConfig struct {
	Services    Services
	Auth        auth.Provider
	CORSOrigins []string
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(CORSMiddleware(cfg.CORSOrigins))

	am := NewAuthMiddleware(cfg.Auth, cfg.Services.Users)
	router.Use(am.Identify())

	biddingHandler := handler.NewBiddingHandler(cfg.Services.Bidding)
	auctionHandler := handler.NewAuctionHandler(cfg.Services.Auction)
	settlementHandler := handler.NewSettlementHandler(cfg.Services.Settlement)
	userHandler := handler.NewUserHandler(cfg.Services.Users)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	users := router.Group("/users", am.RequireAuth())
	{
		users.POST("/register", userHandler.RegisterHandler)
		users.GET("/me", userHandler.MeHandler)
	}

	items := router.Group("/items")
	{
		items.GET("", auctionHandler.ListItemsHandler)
		items.GET("/stream", auctionHandler.StreamItemsHandler)
		items.GET("/:item_id", auctionHandler.GetItemHandler)
		items.GET("/:item_id/bids", biddingHandler.GetBidsByItemHandler)
		items.GET("/:item_id/bids/stream", biddingHandler.StreamBidsHandler)
		items.GET("/:item_id/winning", biddingHandler.GetWinningBidHandler)
		items.POST("/:item_id/bids", biddingHandler.RecordBidHandler)
	}

	admin := router.Group("/admin", am.RequireAdmin())
	{
		admin.POST("/items", auctionHandler.CreateItemHandler)
		admin.DELETE("/items/:item_id", auctionHandler.DeleteItemHandler)
		admin.POST("/items/:item_id/close", settlementHandler.CloseAuctionHandler)
		admin.POST("/items/:item_id/reopen", settlementHandler.ReopenAuctionHandler)
		admin.POST("/items/:item_id/preview", settlementHandler.PreviewWinnerHandler)
		admin.GET("/notifications", settlementHandler.ListNotificationsHandler)
		admin.GET("/notifications/stream", settlementHandler.StreamNotificationsHandler)
	}

	return router
}
