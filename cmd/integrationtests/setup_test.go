package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	auction "silent-auction/internal/auctionService"
	"silent-auction/internal/auth"
	bidding "silent-auction/internal/biddingService"
	"silent-auction/internal/docstore"
	model "silent-auction/internal/models"
	"silent-auction/internal/repository"
	"silent-auction/internal/server"
	settlement "silent-auction/internal/settlementService"
	users "silent-auction/internal/userService"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const adminEmail = "admin@example.com"

// testEnv is the full HTTP stack over an in-memory store
type testEnv struct {
	router   *gin.Engine
	repo     *repository.DocRepo
	provider *auth.JWTProvider
}

// SetupTestEnv initializes the router with an in-memory store for integration testing.
func SetupTestEnv(t *testing.T) testEnv {
	t.Helper()
	return setupTestEnvWithStore(t, docstore.NewMemoryStore(nil))
}

func setupTestEnvWithStore(t *testing.T, store docstore.Store) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewDocRepo(store)
	provider, err := auth.NewJWTProvider("integration-secret", time.Hour)
	require.NoError(t, err)

	router := server.SetupRouter(server.RouterConfig{
		Services: server.Services{
			Bidding:    bidding.NewBiddingService(repo),
			Auction:    auction.NewAuctionService(repo),
			Settlement: settlement.NewSettlementService(repo),
			Users:      users.NewUserService(repo, []string{adminEmail}),
		},
		Auth:        provider,
		CORSOrigins: []string{"*"},
	})
	return testEnv{router: router, repo: repo, provider: provider}
}

// Token issues a bearer token for the given user
func (e testEnv) Token(t *testing.T, userID, email string) string {
	t.Helper()
	tok, err := e.provider.Issue(model.Identity{UserID: userID, Email: email})
	require.NoError(t, err)
	return tok
}

// AdminToken registers the bootstrap admin and returns its token
func (e testEnv) AdminToken(t *testing.T) string {
	t.Helper()
	tok := e.Token(t, "admin1", adminEmail)
	_, w := e.ExecuteRequestAndParse(t, "POST", "/users/register", tok, nil)
	require.Equal(t, 200, w.Code)
	return tok
}

// SeedItem lists an item directly in the store
func (e testEnv) SeedItem(t *testing.T, title string) string {
	t.Helper()
	item, err := e.repo.CreateItem(context.Background(), model.AuctionItem{Title: title, Description: "description", Image: "image.png"})
	require.NoError(t, err)
	return item.ItemID
}

// ExecuteRequestAndParse executes an HTTP request on the router and returns
// the response envelope alongside the recorder.
func (e testEnv) ExecuteRequestAndParse(t *testing.T, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	e.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response")
	}
	return resp, w
}

func data(resp map[string]any) map[string]any {
	d, _ := resp["data"].(map[string]any)
	return d
}
